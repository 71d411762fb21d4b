// Package detection loads cascade classifiers and runs the object detection
// pass: grayscale, histogram equalization, multi-scale scan, annotation.
package detection

import (
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/MrCodeEU/facewatch/pkg/logging"
	"gocv.io/x/gocv"
)

// ErrCascadeMissing is returned when the cascade file does not exist.
var ErrCascadeMissing = errors.New("cascade file not found")

// ErrClassifierLoad is returned when OpenCV refuses the cascade file.
var ErrClassifierLoad = errors.New("failed to load classifier")

// ErrEmptyClassifier is returned for files that load but hold no cascade.
var ErrEmptyClassifier = errors.New("classifier is empty")

// Params are the multi-scale scan settings.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

// DefaultParams returns scale 1.1, 5 neighbours and a 30x30 minimum.
func DefaultParams() Params {
	return Params{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSize:      image.Pt(30, 30),
	}
}

// Classifier is a loaded cascade.
type Classifier interface {
	// Empty reports whether the classifier has no stages.
	Empty() bool
	Detect(gray gocv.Mat, p Params) []image.Rectangle
	Close() error
}

// Cascade is a Haar or LBP cascade backed by OpenCV.
type Cascade struct {
	cc     gocv.CascadeClassifier
	loaded bool
}

// OpenCascade loads the cascade at path.
func OpenCascade(path string) (*Cascade, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCascadeMissing, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrClassifierLoad, err)
	}

	// OpenCV aborts the process on malformed XML, so the file is checked
	// before it gets there.
	if err := sniffCascade(path); err != nil {
		return nil, err
	}

	cc := gocv.NewCascadeClassifier()
	if !cc.Load(path) {
		_ = cc.Close()
		return nil, fmt.Errorf("%w: %s", ErrClassifierLoad, path)
	}
	return &Cascade{cc: cc, loaded: true}, nil
}

// Empty reports whether the cascade failed to load any stages.
func (c *Cascade) Empty() bool {
	return c == nil || !c.loaded
}

// Detect scans a grayscale image.
func (c *Cascade) Detect(gray gocv.Mat, p Params) []image.Rectangle {
	if c.Empty() {
		return nil
	}
	return c.cc.DetectMultiScaleWithParams(gray, p.ScaleFactor, p.MinNeighbors, 0, p.MinSize, image.Point{})
}

// Close releases the cascade.
func (c *Cascade) Close() error {
	if c == nil || !c.loaded {
		return nil
	}
	c.loaded = false
	return c.cc.Close()
}

// sniffCascade checks that path is an OpenCV storage document carrying a
// cascade, in either the current or the old Haar layout.
func sniffCascade(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClassifierLoad, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: not an OpenCV XML file: %v", ErrEmptyClassifier, path, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 && el.Name.Local != "opencv_storage" {
				return fmt.Errorf("%w: %s: root element is <%s>", ErrEmptyClassifier, path, el.Name.Local)
			}
			if depth == 2 && isCascadeNode(el) {
				return nil
			}
		case xml.EndElement:
			depth--
		}
	}

	return fmt.Errorf("%w: %s: no cascade stages", ErrEmptyClassifier, path)
}

func isCascadeNode(el xml.StartElement) bool {
	if el.Name.Local == "cascade" {
		return true
	}
	for _, a := range el.Attr {
		if a.Name.Local == "type_id" && strings.Contains(a.Value, "haar-classifier") {
			return true
		}
	}
	return false
}

// Slot holds the active classifier. A rejected load leaves the previous
// classifier in place.
type Slot struct {
	name    string
	current Classifier
	path    string
	open    func(path string) (Classifier, error)
}

// NewSlot returns an empty slot backed by OpenCascade. name is used for
// logging only.
func NewSlot(name string) *Slot {
	return &Slot{
		name: name,
		open: func(path string) (Classifier, error) { return OpenCascade(path) },
	}
}

// Load replaces the active classifier with the cascade at path.
func (s *Slot) Load(path string) error {
	c, err := s.open(path)
	if err != nil {
		logging.Component("detection").WithField("slot", s.name).WithError(err).Warnf("Rejected cascade %s", path)
		return err
	}
	return s.Use(c, path)
}

// Use installs an already opened classifier. An empty classifier is closed
// and rejected with ErrEmptyClassifier.
func (s *Slot) Use(c Classifier, path string) error {
	log := logging.Component("detection").WithField("slot", s.name)

	if c == nil || c.Empty() {
		if c != nil {
			_ = c.Close()
		}
		err := fmt.Errorf("%w: %s", ErrEmptyClassifier, path)
		log.WithError(err).Warnf("Rejected cascade %s", path)
		return err
	}

	if s.current != nil {
		_ = s.current.Close()
	}
	s.current = c
	s.path = path

	log.Infof("Loaded cascade %s", path)
	return nil
}

// Loaded reports whether a usable classifier is active.
func (s *Slot) Loaded() bool {
	return s.current != nil && !s.current.Empty()
}

// Classifier returns the active classifier or nil.
func (s *Slot) Classifier() Classifier {
	return s.current
}

// Path returns the file the active classifier was loaded from.
func (s *Slot) Path() string {
	return s.path
}

// Close releases the active classifier.
func (s *Slot) Close() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.path = ""
	return err
}
