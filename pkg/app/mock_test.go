package app

import (
	"image"

	"github.com/MrCodeEU/facewatch/pkg/detection"
	"gocv.io/x/gocv"
)

// MockCamera produces flat grey frames.
type MockCamera struct {
	Err    error
	reads  int
	closed bool
}

func (m *MockCamera) Read(dst *gocv.Mat) error {
	m.reads++
	if m.Err != nil {
		return m.Err
	}
	f := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer f.Close()
	f.SetTo(gocv.NewScalar(90, 90, 90, 0))
	f.CopyTo(dst)
	return nil
}

func (m *MockCamera) IsOpen() bool { return !m.closed }

func (m *MockCamera) Close() error {
	m.closed = true
	return nil
}

// MockWindow replays scripted key presses, then -1.
type MockWindow struct {
	Keys   []int
	shown  int
	waits  int
	closed bool
}

func (m *MockWindow) IMShow(img gocv.Mat) { m.shown++ }

func (m *MockWindow) WaitKey(delay int) int {
	m.waits++
	if len(m.Keys) == 0 {
		return -1
	}
	k := m.Keys[0]
	m.Keys = m.Keys[1:]
	return k
}

func (m *MockWindow) Close() error {
	m.closed = true
	return nil
}

// MockClassifier returns fixed rectangles, or panics when asked to.
type MockClassifier struct {
	Rects []image.Rectangle
	Panic bool
}

func (m *MockClassifier) Empty() bool { return false }

func (m *MockClassifier) Detect(gray gocv.Mat, p detection.Params) []image.Rectangle {
	if m.Panic {
		panic("cv::Exception: assertion failed")
	}
	return m.Rects
}

func (m *MockClassifier) Close() error { return nil }
