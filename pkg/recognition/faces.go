package recognition

import (
	"errors"
	"image"

	"github.com/MrCodeEU/facewatch/pkg/detection"
	"github.com/MrCodeEU/facewatch/pkg/labels"
	"gocv.io/x/gocv"
)

// ErrNoFaceCascade is returned when face mode runs without a face cascade.
var ErrNoFaceCascade = errors.New("face cascade not loaded")

// DefaultFaceSize is the edge of the square samples fed to the model.
const DefaultFaceSize = 100

// Match is one recognized face.
type Match struct {
	Rect     image.Rectangle
	ID       int
	Distance float64
	Name     string
	Known    bool
}

// Crop cuts r out of a grayscale image and scales it to size x size.
// The caller closes the result.
func Crop(gray gocv.Mat, r image.Rectangle, size int) gocv.Mat {
	r = r.Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))

	region := gray.Region(r)
	defer region.Close()

	out := gocv.NewMat()
	gocv.Resize(region, &out, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return out
}

// Pipeline is the face mode pass: detect faces, predict each, resolve the
// name and annotate.
type Pipeline struct {
	faces    *detection.Slot
	rec      *Recognizer
	labels   *labels.Map
	params   detection.Params
	faceSize int
}

// NewPipeline creates the face mode pass.
func NewPipeline(faces *detection.Slot, rec *Recognizer, m *labels.Map, params detection.Params, faceSize int) *Pipeline {
	if faceSize <= 0 {
		faceSize = DefaultFaceSize
	}
	return &Pipeline{faces: faces, rec: rec, labels: m, params: params, faceSize: faceSize}
}

// Process recognizes the faces in frame and returns an annotated copy.
// Unknown faces are boxed in red, known ones in green with their name.
// The caller closes the returned Mat.
func (p *Pipeline) Process(frame gocv.Mat) (gocv.Mat, []Match, error) {
	if !p.faces.Loaded() {
		return gocv.NewMat(), nil, ErrNoFaceCascade
	}
	if !p.rec.IsTrained() {
		return gocv.NewMat(), nil, ErrNotTrained
	}

	gray := detection.Preprocess(frame)
	defer gray.Close()

	rects := p.faces.Classifier().Detect(gray, p.params)

	matches := make([]Match, 0, len(rects))
	boxes := make([]detection.Box, 0, len(rects))
	for _, r := range rects {
		m, err := p.predict(gray, r)
		if err != nil {
			return gocv.NewMat(), nil, err
		}
		matches = append(matches, m)

		c := detection.Red
		if m.Known {
			c = detection.Green
		}
		boxes = append(boxes, detection.Box{Rect: r, Caption: m.Name, Color: c})
	}

	out := frame.Clone()
	detection.Annotate(&out, boxes)
	return out, matches, nil
}

func (p *Pipeline) predict(gray gocv.Mat, r image.Rectangle) (Match, error) {
	sample := Crop(gray, r, p.faceSize)
	defer sample.Close()

	id, dist, err := p.rec.Predict(sample)
	if err != nil {
		return Match{}, err
	}

	name, known := p.labels.Resolve(id)
	return Match{Rect: r, ID: id, Distance: dist, Name: name, Known: known}, nil
}
