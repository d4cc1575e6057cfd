package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrDeadlineExceeded is returned by a DeadlineListener once its time is up.
var ErrDeadlineExceeded = errors.New("optimization deadline exceeded")

// Event describes a performed step.
type Event struct {
	Optimizer Optimizer
	Step      int
	Value     float64
}

// Listener is notified synchronously after every step. Returning an error
// aborts the optimization. Listeners that move the function's parameters
// must report it through ModifiesParameters.
type Listener interface {
	StepPerformed(ev Event) error
	ModifiesParameters() bool
}

// ListenerFunc adapts a function to a read-only Listener.
type ListenerFunc func(ev Event) error

func (f ListenerFunc) StepPerformed(ev Event) error { return f(ev) }
func (f ListenerFunc) ModifiesParameters() bool     { return false }

// LogListener logs every Every-th step.
type LogListener struct {
	Logger *slog.Logger
	Every  int
}

func (l *LogListener) StepPerformed(ev Event) error {
	every := max(l.Every, 1)
	if ev.Step%every != 0 {
		return nil
	}
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("Optimization progress",
		"step", ev.Step,
		"value", ev.Value,
		"evaluations", ev.Optimizer.NumEvaluations(),
		"tolerance", ev.Optimizer.StopCondition().CurrentTolerance(),
	)
	return nil
}

func (l *LogListener) ModifiesParameters() bool { return false }

// DeadlineListener aborts the optimization once Deadline has passed.
type DeadlineListener struct {
	Deadline time.Time
	now      func() time.Time
}

// NewDeadlineListener stops an optimization d after now.
func NewDeadlineListener(d time.Duration) *DeadlineListener {
	return &DeadlineListener{Deadline: time.Now().Add(d)}
}

func (l *DeadlineListener) StepPerformed(ev Event) error {
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	if now().After(l.Deadline) {
		return fmt.Errorf("%w after %d steps", ErrDeadlineExceeded, ev.Step)
	}
	return nil
}

func (l *DeadlineListener) ModifiesParameters() bool { return false }
