package detection

import (
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func newFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(40, 40, 40, 0))
	return m
}

func TestPreprocess(t *testing.T) {
	frame := newFrame(t)
	defer frame.Close()

	gray := Preprocess(frame)
	defer gray.Close()

	if gray.Channels() != 1 {
		t.Errorf("expected 1 channel, got %d", gray.Channels())
	}
	if gray.Rows() != frame.Rows() || gray.Cols() != frame.Cols() {
		t.Errorf("size changed: %dx%d", gray.Cols(), gray.Rows())
	}
}

func TestDetector_Process(t *testing.T) {
	r := image.Rect(50, 60, 150, 160)
	c := &MockClassifier{Rects: []image.Rectangle{r}}
	s := mockSlot(map[string]*MockClassifier{"c.xml": c}, nil)
	if err := s.Load("c.xml"); err != nil {
		t.Fatal(err)
	}

	params := Params{ScaleFactor: 1.2, MinNeighbors: 3, MinSize: image.Pt(20, 20)}
	d := NewDetector(s, params, "")

	frame := newFrame(t)
	defer frame.Close()

	out, rects, err := d.Process(frame)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	defer out.Close()

	if len(rects) != 1 || rects[0] != r {
		t.Errorf("unexpected rects %v", rects)
	}
	if c.lastParams != params {
		t.Errorf("scan used %+v, want %+v", c.lastParams, params)
	}

	// BGR order: the box edge is green on the annotated copy only.
	px := out.GetVecbAt(r.Min.Y, r.Min.X+20)
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Errorf("expected green box edge, got %v", px)
	}
	orig := frame.GetVecbAt(r.Min.Y, r.Min.X+20)
	if orig[1] != 40 {
		t.Error("input frame must not be drawn on")
	}
}

func TestDetector_NotLoaded(t *testing.T) {
	d := NewDetector(NewSlot("objects"), DefaultParams(), "OBJECT")

	frame := newFrame(t)
	defer frame.Close()

	out, rects, err := d.Process(frame)
	defer out.Close()
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
	if rects != nil {
		t.Errorf("expected no rects, got %v", rects)
	}
}

func TestDetector_StockCascadeOnBlankFrame(t *testing.T) {
	path := faceCascadePath(t)

	s := NewSlot("objects")
	if err := s.Load(path); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame := newFrame(t)
	defer frame.Close()

	out, rects, err := NewDetector(s, DefaultParams(), "OBJECT").Process(frame)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	if len(rects) != 0 {
		t.Errorf("expected nothing on a flat frame, got %v", rects)
	}
}

func TestAnnotate_CaptionAboveBox(t *testing.T) {
	img := newFrame(t)
	defer img.Close()

	b := Box{Rect: image.Rect(100, 100, 200, 200), Caption: "OBJECT", Color: Red}
	Annotate(&img, []Box{b})

	// Text is drawn between the caption baseline and the box top.
	found := false
	for y := 70; y < 95 && !found; y++ {
		for x := 100; x < 170; x++ {
			if img.GetVecbAt(y, x)[2] == 255 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("caption not drawn above the box")
	}
}
