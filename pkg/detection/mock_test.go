package detection

import (
	"image"

	"gocv.io/x/gocv"
)

type MockClassifier struct {
	EmptyResult bool
	Rects       []image.Rectangle
	closed      bool
	lastParams  Params
	calls       int
}

func (m *MockClassifier) Empty() bool {
	return m.EmptyResult
}

func (m *MockClassifier) Detect(gray gocv.Mat, p Params) []image.Rectangle {
	m.calls++
	m.lastParams = p
	return m.Rects
}

func (m *MockClassifier) Close() error {
	m.closed = true
	return nil
}

// mockSlot returns a slot whose loader hands out classifiers by path.
func mockSlot(byPath map[string]*MockClassifier, errs map[string]error) *Slot {
	s := NewSlot("test")
	s.open = func(path string) (Classifier, error) {
		if err, ok := errs[path]; ok {
			return nil, err
		}
		return byPath[path], nil
	}
	return s
}
