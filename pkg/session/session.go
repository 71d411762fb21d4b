// Package session tracks which pipeline the capture loop is running.
package session

import (
	"errors"
	"fmt"
)

// State is the capture loop mode.
type State int

const (
	Idle State = iota
	Detecting
	Recognizing
	Enrolling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Detecting:
		return "detecting"
	case Recognizing:
		return "recognizing"
	case Enrolling:
		return "enrolling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrEnrolling is returned when a mode change is requested during a burst.
var ErrEnrolling = errors.New("enrollment in progress")

// ErrInvalidMode is returned by Start for states that are not capture modes.
var ErrInvalidMode = errors.New("not a capture mode")

// Machine holds the current state. Enrolling can only be entered through
// Enroll, which restores the previous mode when the burst ends.
type Machine struct {
	state State
}

// New returns a machine in Idle.
func New() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Start switches to Detecting or Recognizing, replacing the other mode.
func (m *Machine) Start(mode State) error {
	if mode != Detecting && mode != Recognizing {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	if m.state == Enrolling {
		return ErrEnrolling
	}
	m.state = mode
	return nil
}

// Stop returns to Idle.
func (m *Machine) Stop() error {
	if m.state == Enrolling {
		return ErrEnrolling
	}
	m.state = Idle
	return nil
}

// Active reports whether the per-tick handler for mode should run.
// It is false for every mode while a burst is in progress.
func (m *Machine) Active(mode State) bool {
	return m.state != Enrolling && m.state == mode
}

// Enroll runs burst in the Enrolling state. The previous state is restored
// when burst returns or panics.
func (m *Machine) Enroll(burst func() error) error {
	if m.state == Enrolling {
		return ErrEnrolling
	}

	previous := m.state
	m.state = Enrolling
	defer func() { m.state = previous }()

	return burst()
}
