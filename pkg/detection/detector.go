package detection

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Colors used for annotations.
var (
	Green = color.RGBA{G: 255, A: 255}
	Red   = color.RGBA{R: 255, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// ErrNotLoaded is returned when a pass runs without a classifier.
var ErrNotLoaded = errors.New("no classifier loaded")

// Box is one annotation: a rectangle and the caption drawn above it.
type Box struct {
	Rect    image.Rectangle
	Caption string
	Color   color.RGBA
}

// Preprocess converts a BGR frame to an equalized grayscale image. The
// caller closes the result.
func Preprocess(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)
	return gray
}

// Annotate draws each box with thickness 2 and its caption 10 px above.
func Annotate(img *gocv.Mat, boxes []Box) {
	for _, b := range boxes {
		gocv.Rectangle(img, b.Rect, b.Color, 2)
		if b.Caption != "" {
			pt := image.Pt(b.Rect.Min.X, b.Rect.Min.Y-10)
			gocv.PutText(img, b.Caption, pt, gocv.FontHersheySimplex, 0.6, b.Color, 2)
		}
	}
}

// Detector is the object mode pass.
type Detector struct {
	slot    *Slot
	params  Params
	caption string
}

// NewDetector creates a Detector reading the classifier from slot.
func NewDetector(slot *Slot, params Params, caption string) *Detector {
	if caption == "" {
		caption = "OBJECT"
	}
	return &Detector{slot: slot, params: params, caption: caption}
}

// Process scans frame and returns an annotated copy with the boxes found.
// The caller closes the returned Mat.
func (d *Detector) Process(frame gocv.Mat) (gocv.Mat, []image.Rectangle, error) {
	if !d.slot.Loaded() {
		return gocv.NewMat(), nil, ErrNotLoaded
	}

	gray := Preprocess(frame)
	defer gray.Close()

	rects := d.slot.Classifier().Detect(gray, d.params)

	boxes := make([]Box, len(rects))
	for i, r := range rects {
		boxes[i] = Box{Rect: r, Caption: d.caption, Color: Green}
	}

	out := frame.Clone()
	Annotate(&out, boxes)
	return out, rects, nil
}
