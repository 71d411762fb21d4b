// Package camera provides capture device access and frame reads.
package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrCodeEU/facewatch/pkg/logging"
	"gocv.io/x/gocv"
)

// DeviceInfo contains information about an open capture device.
type DeviceInfo struct {
	Index int
	// Codec is the FourCC the driver delivers frames in.
	Codec  string
	Width  int
	Height int
	FPS    float64
}

// Source is a frame producer the capture loop can read from.
type Source interface {
	Read(dst *gocv.Mat) error
	IsOpen() bool
	Close() error
}

// ErrCameraNotFound is returned when the camera device cannot be opened.
var ErrCameraNotFound = errors.New("camera device not found")

// ErrCameraNotOpen is returned when trying to capture from a closed camera.
var ErrCameraNotOpen = errors.New("camera not open")

// ErrNoFrame is returned when the device produced an empty frame.
var ErrNoFrame = errors.New("failed to capture frame")

// Camera wraps an OpenCV video capture.
type Camera struct {
	mu   sync.Mutex
	vc   *gocv.VideoCapture
	info DeviceInfo
}

// Open opens the capture device with the given index.
func Open(index int) (*Camera, error) {
	log := logging.Component("camera").WithField("device", index)

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraNotFound, index, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d", ErrCameraNotFound, index)
	}

	c := &Camera{vc: vc}
	c.info = DeviceInfo{
		Index:  index,
		Codec:  vc.CodecString(),
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
	}

	log.Debugf("Opened camera %dx%d @ %.0f fps", c.info.Width, c.info.Height, c.info.FPS)
	return c, nil
}

// Read grabs the next frame into dst. dst is reused across calls.
func (c *Camera) Read(dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return ErrCameraNotOpen
	}
	if ok := c.vc.Read(dst); !ok || dst.Empty() {
		return ErrNoFrame
	}
	return nil
}

// IsOpen reports whether the device is open.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc != nil && c.vc.IsOpened()
}

// Info returns the device description captured at open time.
func (c *Camera) Info() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Close releases the device. It is safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	logging.Component("camera").Debugf("Closed camera %d", c.info.Index)
	return err
}
