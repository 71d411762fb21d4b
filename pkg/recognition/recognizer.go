// Package recognition provides LBPH face recognition: the recognizer model,
// the face mode pass and the enrollment sampler.
package recognition

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/MrCodeEU/facewatch/pkg/labels"
	"github.com/MrCodeEU/facewatch/pkg/logging"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// ErrNotTrained is returned when predicting before any training.
var ErrNotTrained = errors.New("recognizer not trained")

// ErrNoSamples is returned when Train or Update gets an empty batch.
var ErrNoSamples = errors.New("no training samples")

// ErrLabelMismatch is returned when samples and ids differ in length.
var ErrLabelMismatch = errors.New("samples and labels differ in length")

// ErrModelFile is returned when the model file cannot be read or written.
var ErrModelFile = errors.New("model file error")

// Settings configure the LBPH model. The grid stays at OpenCV's 8x8.
type Settings struct {
	Radius    int
	Neighbors int
	Threshold float64
}

// DefaultSettings returns radius 1, 8 neighbours and threshold 200.
func DefaultSettings() Settings {
	return Settings{Radius: 1, Neighbors: 8, Threshold: 200}
}

// lbph is the part of the OpenCV recognizer used here.
type lbph interface {
	Train(images []gocv.Mat, labels []int)
	Update(images []gocv.Mat, labels []int)
	PredictExtendedResponse(sample gocv.Mat) contrib.PredictResponse
	SaveFile(fname string)
	LoadFile(fname string)
}

// Recognizer wraps an LBPH face recognizer.
type Recognizer struct {
	mu       sync.RWMutex
	model    lbph
	settings Settings
	trained  bool
}

// NewRecognizer creates an untrained recognizer.
func NewRecognizer(s Settings) *Recognizer {
	model := contrib.NewLBPHFaceRecognizer()
	model.SetRadius(s.Radius)
	model.SetNeighbors(s.Neighbors)
	model.SetThreshold(float32(s.Threshold))

	return &Recognizer{model: model, settings: s}
}

// Settings returns the model parameters.
func (r *Recognizer) Settings() Settings {
	return r.settings
}

// IsTrained returns true once the model holds at least one subject.
func (r *Recognizer) IsTrained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trained
}

// Train replaces the model with one built from samples.
func (r *Recognizer) Train(samples []gocv.Mat, ids []int) error {
	if err := checkBatch(samples, ids); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.model.Train(samples, ids)
	r.trained = true

	logging.Component("recognition").Infof("Trained model on %d sample(s)", len(samples))
	return nil
}

// Update adds samples to the model, keeping earlier subjects.
func (r *Recognizer) Update(samples []gocv.Mat, ids []int) error {
	if err := checkBatch(samples, ids); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.model.Update(samples, ids)
	r.trained = true

	logging.Component("recognition").Infof("Updated model with %d sample(s)", len(samples))
	return nil
}

func checkBatch(samples []gocv.Mat, ids []int) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	if len(samples) != len(ids) {
		return fmt.Errorf("%w: %d samples, %d labels", ErrLabelMismatch, len(samples), len(ids))
	}
	return nil
}

// Predict returns the closest subject id and its distance for a prepared
// face sample. The id is labels.NoMatch when the distance exceeds the
// threshold.
func (r *Recognizer) Predict(sample gocv.Mat) (int, float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.trained {
		return labels.NoMatch, math.MaxFloat64, ErrNotTrained
	}

	resp := r.model.PredictExtendedResponse(sample)
	return int(resp.Label), float64(resp.Confidence), nil
}

// SaveModel writes the model to path. It matches storage.SaveFunc.
func (r *Recognizer) SaveModel(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.trained {
		return ErrNotTrained
	}

	r.model.SaveFile(path)

	// OpenCV reports nothing on failure, so check the file landed.
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelFile, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrModelFile, path)
	}
	return nil
}

// LoadModel reads the model from path. It matches storage.LoadFunc.
// A file that is not a complete LBPH model is rejected before OpenCV reads
// it, and the recognizer is left as it was.
func (r *Recognizer) LoadModel(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelFile, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrModelFile, path)
	}
	if err := checkModelFile(path); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.model.LoadFile(path)
	r.trained = true

	logging.Component("recognition").Debugf("Loaded model from %s", path)
	return nil
}

// lbphNodes must all appear in a saved LBPH model.
var lbphNodes = []string{"radius", "neighbors", "histograms", "labels"}

// checkModelFile streams the whole file: OpenCV terminates the process on
// malformed XML and crashes predicting from a model without histograms.
func checkModelFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelFile, err)
	}
	defer f.Close()

	seen := make(map[string]bool, len(lbphNodes))
	dec := xml.NewDecoder(f)
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: malformed: %v", ErrModelFile, path, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 && el.Name.Local != "opencv_storage" {
				return fmt.Errorf("%w: %s: root element is <%s>", ErrModelFile, path, el.Name.Local)
			}
			seen[el.Name.Local] = true
		case xml.EndElement:
			depth--
		}
	}

	if depth != 0 {
		return fmt.Errorf("%w: %s: truncated", ErrModelFile, path)
	}
	for _, name := range lbphNodes {
		if !seen[name] {
			return fmt.Errorf("%w: %s: not an LBPH model, no <%s>", ErrModelFile, path, name)
		}
	}
	return nil
}

// Close marks the recognizer unusable. The gocv binding has no release call
// for the native model, so the App keeps one recognizer for its lifetime.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trained = false
	return nil
}
