// Package app wires the capture loop, the two pipelines, enrollment and the
// window into one application.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/MrCodeEU/facewatch/pkg/camera"
	"github.com/MrCodeEU/facewatch/pkg/config"
	"github.com/MrCodeEU/facewatch/pkg/detection"
	"github.com/MrCodeEU/facewatch/pkg/enroll"
	"github.com/MrCodeEU/facewatch/pkg/labels"
	"github.com/MrCodeEU/facewatch/pkg/logging"
	"github.com/MrCodeEU/facewatch/pkg/recognition"
	"github.com/MrCodeEU/facewatch/pkg/session"
	"github.com/MrCodeEU/facewatch/pkg/storage"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrCameraNotStarted is returned by capture actions when no camera is open.
var ErrCameraNotStarted = errors.New("camera not started")

// ErrTrainFirst is returned when face mode starts with no enrolled subject.
var ErrTrainFirst = errors.New("train a face first")

// ErrNoWindow is returned by Run for a headless App.
var ErrNoWindow = errors.New("no window attached")

// Keys understood by the window.
const (
	KeyObjects    = 'o'
	KeyFaces      = 'f'
	KeyStop       = 's'
	KeyClassifier = 'l'
	KeyEnroll     = 'e'
	KeyQuit       = 'q'
	KeyEsc        = 27
)

// Window is the display surface. *gocv.Window satisfies it.
type Window interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
	Close() error
}

// Deps are the collaborators opened by the caller.
type Deps struct {
	// Camera is nil when the device could not be opened; CameraErr says why.
	Camera    camera.Source
	CameraErr error
	// Window is nil for headless use.
	Window   Window
	Prompter *Prompter
	// Terminal receives the coloured status echo.
	Terminal io.Writer
}

// App is the running application.
type App struct {
	cfg    *config.Config
	cam    camera.Source
	window Window
	prompt *Prompter
	status *Status
	log    *logrus.Entry

	frame   gocv.Mat
	blank   gocv.Mat
	machine *session.Machine

	objects  *detection.Slot
	faces    *detection.Slot
	detector *detection.Detector

	rec      *recognition.Recognizer
	labels   *labels.Map
	store    *storage.FileStorage
	pipeline *recognition.Pipeline
	enroller *enroll.Enroller[gocv.Mat]
}

// New builds the application. Missing assets and an absent camera are
// reported on the status line; only storage setup errors are returned.
func New(cfg *config.Config, deps Deps) (*App, error) {
	a := &App{
		cfg:     cfg,
		cam:     deps.Camera,
		window:  deps.Window,
		prompt:  deps.Prompter,
		status:  NewStatus(deps.Terminal),
		log:     logging.Component("app"),
		frame:   gocv.NewMat(),
		blank:   gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3),
		machine: session.New(),
		objects: detection.NewSlot("objects"),
		faces:   detection.NewSlot("faces"),
	}
	a.blank.SetTo(gocv.NewScalar(0, 0, 0, 0))

	store, err := storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.ModelFile, cfg.Storage.LabelsFile, cfg.Storage.EncryptionEnabled)
	if err != nil {
		a.release()
		return nil, err
	}
	a.store = store

	settings := recognition.Settings{
		Radius:    cfg.Recognition.Radius,
		Neighbors: cfg.Recognition.Neighbors,
		Threshold: cfg.Recognition.Threshold,
	}
	a.rec = recognition.NewRecognizer(settings)
	a.labels = a.restore()

	params := detection.Params{
		ScaleFactor:  cfg.Detection.ScaleFactor,
		MinNeighbors: cfg.Detection.MinNeighbors,
		MinSize:      image.Pt(cfg.Detection.MinSize, cfg.Detection.MinSize),
	}
	a.detector = detection.NewDetector(a.objects, params, cfg.Detection.ObjectCaption)
	a.pipeline = recognition.NewPipeline(a.faces, a.rec, a.labels, params, cfg.Recognition.FaceSize)

	var viewer recognition.Viewer
	if a.window != nil {
		viewer = a.window
	}
	sampler := recognition.NewSampler(a.cam, &a.frame, a.faces, params, cfg.Recognition.FaceSize, viewer)
	a.enroller = enroll.New[gocv.Mat](sampler, a.rec, modelStore{fs: store, rec: a.rec}, a.machine, a.labels, enroll.Options{
		Samples:        cfg.Enrollment.SampleCount,
		FrameDelay:     cfg.FrameDelay(),
		MaxEmptyReads:  cfg.Enrollment.MaxEmptyReads,
		SingleFaceOnly: cfg.Enrollment.SingleFaceOnly,
	})
	a.enroller.Release = func(m gocv.Mat) { _ = m.Close() }

	if err := a.faces.Load(cfg.Detection.FaceCascade); err != nil {
		a.status.Warnf("Face cascade unavailable, face features disabled: %v", err)
	}
	if cfg.Detection.Classifier != "" {
		_ = a.LoadClassifier(cfg.Detection.Classifier)
	}

	if a.cam == nil {
		msg := ErrCameraNotStarted.Error()
		if deps.CameraErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, deps.CameraErr)
		}
		a.status.Warnf("%s", msg)
	} else if a.status.Level() == LevelInfo {
		if a.labels.Len() > 0 {
			a.status.Infof("Face model loaded: %d person(s)", a.labels.Len())
		} else {
			a.status.Infof("Camera ready - load a classifier")
		}
	}

	return a, nil
}

// restore loads a saved enrollment. The recognizer is only touched once the
// label file and the model file have both checked out, so any failure leaves
// it untrained.
func (a *App) restore() *labels.Map {
	m, err := a.store.Load(a.rec.LoadModel)
	switch {
	case err == nil:
		return m
	case errors.Is(err, storage.ErrNoEnrollment):
		a.log.Debug("No saved enrollment")
	default:
		a.status.Warnf("Could not load saved faces: %v", err)
	}
	return labels.New()
}

// modelStore saves the recognizer and the labels together.
type modelStore struct {
	fs  *storage.FileStorage
	rec *recognition.Recognizer
}

func (s modelStore) Save(m *labels.Map) error {
	return s.fs.Save(s.rec.SaveModel, m)
}

// Status returns the status line.
func (a *App) Status() *Status {
	return a.status
}

// Labels returns the enrolled subjects.
func (a *App) Labels() *labels.Map {
	return a.labels
}

// State returns the capture loop mode.
func (a *App) State() session.State {
	return a.machine.State()
}

// OnProgress installs a callback for enrollment progress.
func (a *App) OnProgress(fn func(enroll.Progress)) {
	a.enroller.OnProgress = fn
}

// StartObjectDetection switches the loop to object mode.
func (a *App) StartObjectDetection() error {
	if a.cam == nil {
		a.status.Warnf("%s", ErrCameraNotStarted)
		return ErrCameraNotStarted
	}
	if !a.objects.Loaded() {
		a.status.Warnf("Load a classifier first")
		return detection.ErrNotLoaded
	}
	if err := a.machine.Start(session.Detecting); err != nil {
		return err
	}
	a.status.Infof("Object detection started")
	return nil
}

// StartFaceRecognition switches the loop to face mode.
func (a *App) StartFaceRecognition() error {
	if a.cam == nil {
		a.status.Warnf("%s", ErrCameraNotStarted)
		return ErrCameraNotStarted
	}
	if !a.faces.Loaded() {
		a.status.Warnf("Face cascade not loaded")
		return recognition.ErrNoFaceCascade
	}
	if a.labels.Len() == 0 || !a.rec.IsTrained() {
		a.status.Warnf("Train a face first")
		return ErrTrainFirst
	}
	if err := a.machine.Start(session.Recognizing); err != nil {
		return err
	}
	a.status.Infof("Face recognition started")
	return nil
}

// Stop returns the loop to plain preview.
func (a *App) Stop() error {
	if err := a.machine.Stop(); err != nil {
		return err
	}
	a.status.Infof("Stopped - a new classifier can be loaded")
	return nil
}

// LoadClassifier replaces the object cascade. A rejected file keeps the
// previous cascade.
func (a *App) LoadClassifier(path string) error {
	path = config.ExpandPath(strings.TrimSpace(path))
	if path == "" {
		return nil
	}

	if err := a.objects.Load(path); err != nil {
		if errors.Is(err, detection.ErrEmptyClassifier) {
			a.status.Errorf("Classifier is empty or not a cascade file: %s", filepath.Base(path))
		} else {
			a.status.Errorf("Failed to load classifier: %v", err)
		}
		return err
	}

	a.status.Infof("Classifier loaded: %s", filepath.Base(path))
	return nil
}

// Enroll runs a capture burst for name and trains the recognizer. It blocks
// until the burst is over.
func (a *App) Enroll(name string) (enroll.Result, error) {
	if a.cam == nil {
		a.status.Warnf("%s", ErrCameraNotStarted)
		return enroll.Result{}, ErrCameraNotStarted
	}
	if !a.faces.Loaded() {
		a.status.Warnf("Face cascade not loaded")
		return enroll.Result{}, recognition.ErrNoFaceCascade
	}

	if n, err := labels.ValidateName(name); err == nil {
		a.status.Infof("Face training started: %s. Please look at the camera...", n)
	}

	res, err := a.enroller.Run(name)
	switch {
	case err == nil:
		a.status.Infof("Training complete: %s - %d images", res.Name, res.Samples)
	case errors.Is(err, labels.ErrInvalidName):
		a.status.Warnf("Enter a name of up to %d bytes without ':' to enroll", labels.MaxNameLen)
	case errors.Is(err, enroll.ErrNoSamples):
		a.status.Warnf("No faces captured for %s", res.Name)
	case errors.Is(err, enroll.ErrPersist):
		a.status.Errorf("Training complete: %s - %d images, but saving failed: %v", res.Name, res.Samples, err)
	default:
		a.status.Errorf("Enrollment failed: %v", err)
	}
	return res, err
}

// Tick reads one frame and runs the active pass on it. Errors and OpenCV
// panics end up on the status line; the loop keeps going.
func (a *App) Tick() {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorf("Recovered panic in frame handler: %v", r)
			a.processingError(fmt.Errorf("%v", r))
		}
	}()

	if a.cam == nil {
		idle := a.blank.Clone()
		defer idle.Close()
		a.show(idle)
		return
	}

	if err := a.cam.Read(&a.frame); err != nil {
		if !errors.Is(err, camera.ErrNoFrame) {
			a.log.WithError(err).Debug("Frame read failed")
		}
		return
	}

	var (
		out gocv.Mat
		err error
	)
	switch {
	case a.machine.Active(session.Detecting):
		var rects []image.Rectangle
		out, rects, err = a.detector.Process(a.frame)
		if err == nil {
			a.status.Frame(fmt.Sprintf("Objects detected: %d", len(rects)))
		}
	case a.machine.Active(session.Recognizing):
		var matches []recognition.Match
		out, matches, err = a.pipeline.Process(a.frame)
		if err == nil {
			a.status.Frame(fmt.Sprintf("Faces recognized: %d", len(matches)))
		}
	default:
		out = a.frame.Clone()
	}
	defer out.Close()

	if err != nil {
		a.processingError(err)
		return
	}
	a.show(out)
}

func (a *App) processingError(err error) {
	if errors.Is(err, detection.ErrEmptyClassifier) || errors.Is(err, detection.ErrNotLoaded) {
		a.status.Errorf("Processing error: the classifier is empty. Load a valid cascade file.")
		return
	}
	a.status.Errorf("Processing error: %v", err)
}

func (a *App) show(img gocv.Mat) {
	if a.window == nil {
		return
	}
	if a.cfg.UI.ShowStatus && a.status.Text() != "" {
		pt := image.Pt(10, img.Rows()-12)
		gocv.PutText(&img, a.status.Text(), pt, gocv.FontHersheySimplex, 0.6, a.status.Color(), 2)
	}
	a.window.IMShow(img)
}

// HandleKey runs the action bound to key and reports whether to quit.
func (a *App) HandleKey(key int) bool {
	if key < 0 {
		return false
	}

	switch key & 0xff {
	case KeyQuit, KeyEsc:
		return true
	case KeyObjects:
		_ = a.StartObjectDetection()
	case KeyFaces:
		_ = a.StartFaceRecognition()
	case KeyStop:
		_ = a.Stop()
	case KeyClassifier:
		path, err := a.prompt.Ask("Cascade file (.xml)")
		if err != nil {
			a.status.Warnf("No classifier path: %v", err)
			return false
		}
		_ = a.LoadClassifier(path)
	case KeyEnroll:
		if a.cam == nil {
			a.status.Warnf("%s", ErrCameraNotStarted)
			return false
		}
		name, err := a.prompt.Ask("Name to enroll")
		if err != nil {
			a.status.Warnf("No name entered: %v", err)
			return false
		}
		_, _ = a.Enroll(name)
	}
	return false
}

// Run drives the capture loop until quit is pressed or ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.window == nil {
		return ErrNoWindow
	}

	delay := a.cfg.Camera.TickMS
	if delay < 1 {
		delay = 1
	}

	a.log.Infof("Capture loop running, keys: o objects, f faces, s stop, l load, e enroll, q quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		a.Tick()
		if a.HandleKey(a.window.WaitKey(delay)) {
			return nil
		}
	}
}

// Close releases the camera, the window and all OpenCV resources.
func (a *App) Close() error {
	var errs []error
	if a.cam != nil {
		errs = append(errs, a.cam.Close())
	}
	if a.window != nil {
		errs = append(errs, a.window.Close())
	}
	errs = append(errs, a.release())
	return errors.Join(errs...)
}

func (a *App) release() error {
	var errs []error
	errs = append(errs, a.objects.Close(), a.faces.Close())
	if a.rec != nil {
		errs = append(errs, a.rec.Close())
	}
	errs = append(errs, a.frame.Close(), a.blank.Close())
	return errors.Join(errs...)
}
