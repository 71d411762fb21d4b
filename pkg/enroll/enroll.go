// Package enroll runs the face enrollment workflow: a blocking capture burst
// that collects face samples for one named subject, followed by a train or
// update of the recognizer and a save of model and labels.
//
// The workflow is generic over the sample type so the capture and model
// sides can be backed by OpenCV matrices in production and by plain values
// in tests.
package enroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrCodeEU/facewatch/pkg/labels"
	"github.com/MrCodeEU/facewatch/pkg/logging"
)

// ErrNoSamples is returned when a burst ended without a single face sample.
// Nothing is trained or saved in that case.
var ErrNoSamples = errors.New("no face samples captured")

// ErrPersist wraps save failures that happen after the model and the label
// map were already updated in memory.
var ErrPersist = errors.New("enrollment not saved")

// Progress describes a burst in flight.
type Progress struct {
	ID        int
	Name      string
	Collected int
	Target    int
}

// Sampler grabs one frame and returns the face samples found in it.
// ok is false when the camera produced an empty frame.
type Sampler[S any] interface {
	Next(p Progress) (samples []S, ok bool, err error)
}

// Model is the recognizer side of enrollment.
type Model[S any] interface {
	Train(samples []S, ids []int) error
	Update(samples []S, ids []int) error
}

// Store persists the model together with the label map.
type Store interface {
	Save(m *labels.Map) error
}

// Guard brackets the burst so that no other frame handler runs during it.
type Guard interface {
	Enroll(burst func() error) error
}

// Options tune the burst.
type Options struct {
	// Samples is the number of face samples that ends the burst.
	Samples    int
	FrameDelay time.Duration
	// MaxEmptyReads ends the burst early after that many consecutive empty
	// frames. Zero disables the limit.
	MaxEmptyReads int
	// SingleFaceOnly drops frames that contain more than one face.
	SingleFaceOnly bool
}

// Result summarizes a finished enrollment.
type Result struct {
	ID      int
	Name    string
	Samples int
	// Trained is true when the model was trained from scratch (first
	// subject) rather than updated.
	Trained bool
}

// Enroller wires the burst to a sampler, a model, storage and the labels.
type Enroller[S any] struct {
	sampler Sampler[S]
	model   Model[S]
	store   Store
	guard   Guard
	labels  *labels.Map
	opts    Options

	// Release frees a sample once the workflow is done with it.
	Release func(S)
	// OnProgress is called after every frame that yielded samples.
	OnProgress func(Progress)
	sleep      func(time.Duration)
}

// New creates an Enroller. labels is updated in place on success.
func New[S any](sampler Sampler[S], model Model[S], store Store, guard Guard, m *labels.Map, opts Options) *Enroller[S] {
	if opts.Samples <= 0 {
		opts.Samples = 20
	}
	return &Enroller[S]{
		sampler: sampler,
		model:   model,
		store:   store,
		guard:   guard,
		labels:  m,
		opts:    opts,
		sleep:   time.Sleep,
	}
}

// Run enrolls name. An invalid or empty name returns labels.ErrInvalidName
// before anything else happens.
func (e *Enroller[S]) Run(name string) (Result, error) {
	name, err := labels.ValidateName(name)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = e.guard.Enroll(func() error {
		var burstErr error
		res, burstErr = e.run(name)
		return burstErr
	})
	return res, err
}

func (e *Enroller[S]) run(name string) (Result, error) {
	log := logging.Component("enroll").WithField("subject", name)

	id, err := e.labels.NextID()
	if err != nil {
		return Result{Name: name}, err
	}

	p := Progress{
		ID:     id,
		Name:   name,
		Target: e.opts.Samples,
	}
	res := Result{ID: p.ID, Name: name, Trained: e.labels.Len() == 0}

	log.Infof("Starting capture burst for id %d, %d samples", p.ID, p.Target)

	samples, err := e.collect(p)
	defer e.release(samples)
	res.Samples = len(samples)
	if err != nil {
		return res, err
	}
	if len(samples) == 0 {
		log.Warnf("Burst ended without face samples")
		return res, ErrNoSamples
	}

	ids := make([]int, len(samples))
	for i := range ids {
		ids[i] = p.ID
	}

	if res.Trained {
		err = e.model.Train(samples, ids)
	} else {
		err = e.model.Update(samples, ids)
	}
	if err != nil {
		return res, fmt.Errorf("failed to train recognizer: %w", err)
	}

	e.labels.Set(p.ID, name)

	if err := e.store.Save(e.labels); err != nil {
		log.WithError(err).Error("Failed to save enrollment")
		return res, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	log.Infof("Enrollment complete with %d samples", len(samples))
	return res, nil
}

func (e *Enroller[S]) collect(p Progress) ([]S, error) {
	var samples []S
	empty := 0

	for len(samples) < p.Target {
		p.Collected = len(samples)
		batch, ok, err := e.sampler.Next(p)
		if err != nil {
			e.release(batch)
			return samples, err
		}

		if !ok {
			empty++
			if e.opts.MaxEmptyReads > 0 && empty >= e.opts.MaxEmptyReads {
				logging.Component("enroll").Warnf("Ending burst after %d empty frames", empty)
				break
			}
		} else {
			empty = 0
			if e.opts.SingleFaceOnly && len(batch) > 1 {
				e.release(batch)
			} else if len(batch) > 0 {
				samples = append(samples, batch...)
				if e.OnProgress != nil {
					p.Collected = len(samples)
					e.OnProgress(p)
				}
			}
		}

		if e.opts.FrameDelay > 0 {
			e.sleep(e.opts.FrameDelay)
		}
	}

	return samples, nil
}

func (e *Enroller[S]) release(samples []S) {
	if e.Release == nil {
		return
	}
	for _, s := range samples {
		e.Release(s)
	}
}
