package recognition

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrCodeEU/facewatch/pkg/labels"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// pattern returns a 100x100 grayscale sample. Different kinds give LBP
// histograms far apart from each other.
func pattern(kind int) gocv.Mat {
	m := gocv.NewMatWithSize(DefaultFaceSize, DefaultFaceSize, gocv.MatTypeCV8U)
	for y := 0; y < DefaultFaceSize; y++ {
		for x := 0; x < DefaultFaceSize; x++ {
			var v uint8
			switch kind {
			case 0:
				v = uint8(x * 255 / DefaultFaceSize)
			case 1:
				if (x/5+y/5)%2 == 0 {
					v = 230
				} else {
					v = 20
				}
			default:
				v = uint8((x*y + 7*x) % 256)
			}
			m.SetUCharAt(y, x, v)
		}
	}
	return m
}

func batch(kind, n, id int) ([]gocv.Mat, []int) {
	samples := make([]gocv.Mat, n)
	ids := make([]int, n)
	for i := range samples {
		samples[i] = pattern(kind)
		ids[i] = id
	}
	return samples, ids
}

func closeAll(mats []gocv.Mat) {
	for _, m := range mats {
		m.Close()
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Radius != 1 || s.Neighbors != 8 || s.Threshold != 200 {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestRecognizer_NotTrained(t *testing.T) {
	r := &Recognizer{model: &MockLBPH{}}

	sample := pattern(0)
	defer sample.Close()

	id, _, err := r.Predict(sample)
	if !errors.Is(err, ErrNotTrained) || id != labels.NoMatch {
		t.Errorf("expected ErrNotTrained and NoMatch, got %d %v", id, err)
	}
	if err := r.SaveModel(filepath.Join(t.TempDir(), "m.xml")); !errors.Is(err, ErrNotTrained) {
		t.Errorf("SaveModel: expected ErrNotTrained, got %v", err)
	}
}

func TestRecognizer_BatchValidation(t *testing.T) {
	r := &Recognizer{model: &MockLBPH{}}

	if err := r.Train(nil, nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}

	samples, _ := batch(0, 2, 1)
	defer closeAll(samples)
	if err := r.Update(samples, []int{1}); !errors.Is(err, ErrLabelMismatch) {
		t.Errorf("expected ErrLabelMismatch, got %v", err)
	}
	if r.IsTrained() {
		t.Error("rejected batch must not mark the model trained")
	}
}

func TestRecognizer_DelegatesToModel(t *testing.T) {
	var trained, updated []int
	mock := &MockLBPH{
		TrainFunc:  func(_ []gocv.Mat, l []int) { trained = append(trained, l...) },
		UpdateFunc: func(_ []gocv.Mat, l []int) { updated = append(updated, l...) },
		PredictFunc: func(gocv.Mat) contrib.PredictResponse {
			return contrib.PredictResponse{Label: 2, Confidence: 41.5}
		},
	}
	r := &Recognizer{model: mock}

	a, aIDs := batch(0, 3, 1)
	defer closeAll(a)
	b, bIDs := batch(1, 2, 2)
	defer closeAll(b)

	if err := r.Train(a, aIDs); err != nil {
		t.Fatal(err)
	}
	if err := r.Update(b, bIDs); err != nil {
		t.Fatal(err)
	}
	if len(trained) != 3 || len(updated) != 2 {
		t.Errorf("unexpected delegation: train %v update %v", trained, updated)
	}

	id, dist, err := r.Predict(b[0])
	if err != nil || id != 2 || dist != 41.5 {
		t.Errorf("unexpected prediction %d %.1f %v", id, dist, err)
	}

	if err := r.Close(); err != nil || r.IsTrained() {
		t.Error("Close should leave the recognizer untrained")
	}
}

func TestRecognizer_SaveModelChecksFile(t *testing.T) {
	r := &Recognizer{model: &MockLBPH{}, trained: true}
	path := filepath.Join(t.TempDir(), "m.xml")

	if err := r.SaveModel(path); !errors.Is(err, ErrModelFile) {
		t.Errorf("expected ErrModelFile when nothing was written, got %v", err)
	}

	r.model = &MockLBPH{SaveFunc: func(fname string) { _ = os.WriteFile(fname, []byte("<opencv_storage/>"), 0600) }}
	if err := r.SaveModel(path); err != nil {
		t.Errorf("SaveModel failed: %v", err)
	}
}

// lbphModelXML is the shape OpenCV writes for a trained LBPH model.
const lbphModelXML = `<?xml version="1.0"?>
<opencv_storage>
<threshold>200.</threshold>
<radius>1</radius>
<neighbors>8</neighbors>
<grid_x>8</grid_x>
<grid_y>8</grid_y>
<histograms>
  <_ type_id="opencv-matrix">
    <rows>1</rows>
    <cols>2</cols>
    <dt>f</dt>
    <data>0. 1.</data></_></histograms>
<labels type_id="opencv-matrix">
  <rows>1</rows>
  <cols>1</cols>
  <dt>i</dt>
  <data>1</data></labels>
<labelsInfo>
  </labelsInfo>
</opencv_storage>
`

func TestRecognizer_LoadModelChecksFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.xml")},
		{"empty", write("empty.xml", "")},
		{"truncated", write("truncated.xml", lbphModelXML[:len(lbphModelXML)/2])},
		{"malformed", write("malformed.xml", "<opencv_storage><x>")},
		{"foreign root", write("foreign.xml", "<html><body>model</body></html>")},
		{"cascade not model", write("cascade.xml", "<opencv_storage><cascade><stageType>BOOST</stageType></cascade></opencv_storage>")},
		{"no histograms", write("partial.xml", "<opencv_storage><radius>1</radius><neighbors>8</neighbors><labels/></opencv_storage>")},
		{"not xml", write("text.xml", "1:Ada\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded := ""
			r := &Recognizer{model: &MockLBPH{LoadFunc: func(f string) { loaded = f }}}

			if err := r.LoadModel(tt.path); !errors.Is(err, ErrModelFile) {
				t.Errorf("expected ErrModelFile, got %v", err)
			}
			if loaded != "" || r.IsTrained() {
				t.Error("bad files must not reach OpenCV")
			}
		})
	}

	loaded := ""
	r := &Recognizer{model: &MockLBPH{LoadFunc: func(f string) { loaded = f }}}
	good := write("good.xml", lbphModelXML)
	if err := r.LoadModel(good); err != nil {
		t.Fatal(err)
	}
	if loaded != good || !r.IsTrained() {
		t.Error("model not loaded")
	}
}

// TestLBPH_TrainUpdatePredict runs the real OpenCV recognizer.
func TestLBPH_TrainUpdatePredict(t *testing.T) {
	r := NewRecognizer(DefaultSettings())
	defer r.Close()

	ada, adaIDs := batch(0, 5, 1)
	defer closeAll(ada)
	if err := r.Train(ada, adaIDs); err != nil {
		t.Fatal(err)
	}

	probe := pattern(0)
	defer probe.Close()
	if id, dist, _ := r.Predict(probe); id != 1 {
		t.Fatalf("expected id 1 after training, got %d (%.2f)", id, dist)
	}

	alan, alanIDs := batch(1, 5, 2)
	defer closeAll(alan)
	if err := r.Update(alan, alanIDs); err != nil {
		t.Fatal(err)
	}

	if id, _, _ := r.Predict(probe); id != 1 {
		t.Errorf("first subject lost after update: got %d", id)
	}
	probe2 := pattern(1)
	defer probe2.Close()
	if id, _, _ := r.Predict(probe2); id != 2 {
		t.Errorf("second subject not recognized: got %d", id)
	}
}

func TestLBPH_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face_model.xml")

	r := NewRecognizer(DefaultSettings())
	samples, ids := batch(1, 4, 7)
	defer closeAll(samples)
	if err := r.Train(samples, ids); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveModel(path); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}
	_ = r.Close()

	loaded := NewRecognizer(DefaultSettings())
	defer loaded.Close()
	if err := loaded.LoadModel(path); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}

	probe := pattern(1)
	defer probe.Close()
	if id, _, err := loaded.Predict(probe); err != nil || id != 7 {
		t.Errorf("expected id 7 from reloaded model, got %d %v", id, err)
	}
}
