package recognition

import (
	"image"

	"github.com/MrCodeEU/facewatch/pkg/camera"
	"github.com/MrCodeEU/facewatch/pkg/detection"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// MockLBPH records calls instead of running OpenCV's recognizer.
type MockLBPH struct {
	TrainFunc   func(images []gocv.Mat, labels []int)
	UpdateFunc  func(images []gocv.Mat, labels []int)
	PredictFunc func(sample gocv.Mat) contrib.PredictResponse
	SaveFunc    func(fname string)
	LoadFunc    func(fname string)
}

func (m *MockLBPH) Train(images []gocv.Mat, labels []int) {
	if m.TrainFunc != nil {
		m.TrainFunc(images, labels)
	}
}

func (m *MockLBPH) Update(images []gocv.Mat, labels []int) {
	if m.UpdateFunc != nil {
		m.UpdateFunc(images, labels)
	}
}

func (m *MockLBPH) PredictExtendedResponse(sample gocv.Mat) contrib.PredictResponse {
	if m.PredictFunc != nil {
		return m.PredictFunc(sample)
	}
	return contrib.PredictResponse{Label: -1}
}

func (m *MockLBPH) SaveFile(fname string) {
	if m.SaveFunc != nil {
		m.SaveFunc(fname)
	}
}

func (m *MockLBPH) LoadFile(fname string) {
	if m.LoadFunc != nil {
		m.LoadFunc(fname)
	}
}

// MockClassifier returns fixed rectangles.
type MockClassifier struct {
	Rects []image.Rectangle
}

func (m *MockClassifier) Empty() bool { return false }

func (m *MockClassifier) Detect(gray gocv.Mat, p detection.Params) []image.Rectangle {
	return m.Rects
}

func (m *MockClassifier) Close() error { return nil }

// MockSource serves scripted reads. A nil entry is an empty frame.
type MockSource struct {
	Frames []func(dst *gocv.Mat) error
	reads  int
}

func (m *MockSource) Read(dst *gocv.Mat) error {
	if m.reads >= len(m.Frames) {
		m.reads++
		return camera.ErrNoFrame
	}
	f := m.Frames[m.reads]
	m.reads++
	if f == nil {
		return camera.ErrNoFrame
	}
	return f(dst)
}

func (m *MockSource) IsOpen() bool { return true }

func (m *MockSource) Close() error { return nil }

type MockViewer struct {
	shown  int
	pumped int
}

func (m *MockViewer) IMShow(img gocv.Mat) { m.shown++ }

func (m *MockViewer) WaitKey(delay int) int {
	m.pumped++
	return -1
}
