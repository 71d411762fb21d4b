package session

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	m := New()
	if m.State() != Idle {
		t.Errorf("expected idle, got %s", m.State())
	}
	for _, mode := range []State{Detecting, Recognizing} {
		if m.Active(mode) {
			t.Errorf("%s should not be active in idle", mode)
		}
	}
}

func TestStartAndStop(t *testing.T) {
	m := New()

	if err := m.Start(Detecting); err != nil {
		t.Fatalf("Start(Detecting) failed: %v", err)
	}
	if !m.Active(Detecting) || m.Active(Recognizing) {
		t.Error("only detection should be active")
	}

	if err := m.Start(Recognizing); err != nil {
		t.Fatalf("Start(Recognizing) failed: %v", err)
	}
	if m.Active(Detecting) || !m.Active(Recognizing) {
		t.Error("recognition should replace detection")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.State() != Idle {
		t.Errorf("expected idle after stop, got %s", m.State())
	}
}

func TestStart_InvalidMode(t *testing.T) {
	m := New()
	for _, mode := range []State{Idle, Enrolling, State(9)} {
		if err := m.Start(mode); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("Start(%s): expected ErrInvalidMode, got %v", mode, err)
		}
	}
}

func TestEnroll_ExcludesTickHandlers(t *testing.T) {
	for _, prior := range []State{Idle, Detecting, Recognizing} {
		t.Run(prior.String(), func(t *testing.T) {
			m := New()
			if prior != Idle {
				_ = m.Start(prior)
			}

			ran := false
			err := m.Enroll(func() error {
				ran = true
				if m.State() != Enrolling {
					t.Errorf("expected enrolling during burst, got %s", m.State())
				}
				if m.Active(Detecting) || m.Active(Recognizing) {
					t.Error("tick handlers must not run during a burst")
				}
				if err := m.Start(Detecting); !errors.Is(err, ErrEnrolling) {
					t.Errorf("Start during burst: expected ErrEnrolling, got %v", err)
				}
				if err := m.Stop(); !errors.Is(err, ErrEnrolling) {
					t.Errorf("Stop during burst: expected ErrEnrolling, got %v", err)
				}
				if err := m.Enroll(func() error { return nil }); !errors.Is(err, ErrEnrolling) {
					t.Errorf("nested Enroll: expected ErrEnrolling, got %v", err)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Enroll failed: %v", err)
			}
			if !ran {
				t.Fatal("burst did not run")
			}
			if m.State() != prior {
				t.Errorf("expected %s restored, got %s", prior, m.State())
			}
		})
	}
}

func TestEnroll_RestoresOnError(t *testing.T) {
	m := New()
	_ = m.Start(Recognizing)

	boom := errors.New("camera lost")
	if err := m.Enroll(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected burst error, got %v", err)
	}
	if !m.Active(Recognizing) {
		t.Errorf("expected recognizing restored, got %s", m.State())
	}
}

func TestEnroll_RestoresOnPanic(t *testing.T) {
	m := New()
	_ = m.Start(Detecting)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = m.Enroll(func() error { panic("opencv assertion") })
	}()

	if m.State() != Detecting {
		t.Errorf("expected detecting restored after panic, got %s", m.State())
	}
}

func TestStateString(t *testing.T) {
	if Enrolling.String() != "enrolling" || State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}
