package recognition

import (
	"errors"
	"fmt"
	"image"

	"github.com/MrCodeEU/facewatch/pkg/camera"
	"github.com/MrCodeEU/facewatch/pkg/detection"
	"github.com/MrCodeEU/facewatch/pkg/enroll"
	"gocv.io/x/gocv"
)

// Viewer shows burst frames and pumps window events. *gocv.Window
// satisfies it.
type Viewer interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
}

// Sampler reads frames from a camera and cuts face samples for enrollment.
// It implements enroll.Sampler[gocv.Mat].
type Sampler struct {
	cam      camera.Source
	frame    *gocv.Mat
	faces    *detection.Slot
	params   detection.Params
	faceSize int
	viewer   Viewer
}

var _ enroll.Sampler[gocv.Mat] = (*Sampler)(nil)

// NewSampler creates a Sampler reading into frame, which is reused. viewer
// may be nil for headless enrollment.
func NewSampler(cam camera.Source, frame *gocv.Mat, faces *detection.Slot, params detection.Params, faceSize int, viewer Viewer) *Sampler {
	if faceSize <= 0 {
		faceSize = DefaultFaceSize
	}
	return &Sampler{
		cam:      cam,
		frame:    frame,
		faces:    faces,
		params:   params,
		faceSize: faceSize,
		viewer:   viewer,
	}
}

// Next reads one frame and returns a grayscale sample per detected face.
// Each face is boxed in blue with "Training: <name>" on the shown frame.
func (s *Sampler) Next(p enroll.Progress) ([]gocv.Mat, bool, error) {
	if !s.faces.Loaded() {
		return nil, false, ErrNoFaceCascade
	}

	if err := s.cam.Read(s.frame); err != nil {
		if errors.Is(err, camera.ErrNoFrame) {
			s.pump()
			return nil, false, nil
		}
		return nil, false, err
	}

	gray := detection.Preprocess(*s.frame)
	defer gray.Close()

	rects := s.faces.Classifier().Detect(gray, s.params)

	samples := make([]gocv.Mat, 0, len(rects))
	boxes := make([]detection.Box, 0, len(rects))
	caption := "Training: " + p.Name
	for _, r := range rects {
		samples = append(samples, Crop(gray, r, s.faceSize))
		boxes = append(boxes, detection.Box{Rect: r, Caption: caption, Color: detection.Blue})
	}

	if s.viewer != nil {
		shown := s.frame.Clone()
		detection.Annotate(&shown, boxes)
		progress := fmt.Sprintf("%s: %d/%d", p.Name, p.Collected+len(samples), p.Target)
		gocv.PutText(&shown, progress, image.Pt(10, 25), gocv.FontHersheySimplex, 0.6, detection.Blue, 2)
		s.viewer.IMShow(shown)
		shown.Close()
	}
	s.pump()

	return samples, true, nil
}

func (s *Sampler) pump() {
	if s.viewer != nil {
		s.viewer.WaitKey(1)
	}
}
