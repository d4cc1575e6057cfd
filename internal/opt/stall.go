package opt

import (
	"errors"
	"fmt"
	"math"
)

// ErrStalled is returned by a StallListener when the value stopped
// improving. Optimize treats it as a regular stop and keeps the best point.
var ErrStalled = errors.New("optimization stalled")

// StallListener stops an optimization after Patience consecutive steps
// without a significant improvement. A step is significant when it
// lowers the value by at least Threshold relative to the last
// significant value.
type StallListener struct {
	Patience  int
	Threshold float64

	best            float64
	lastSignificant float64
	stale           int
	started         bool
}

// NewStallListener creates a listener with the given patience and
// relative threshold.
func NewStallListener(patience int, threshold float64) *StallListener {
	return &StallListener{Patience: patience, Threshold: threshold}
}

func (l *StallListener) StepPerformed(ev Event) error {
	if l.Patience <= 0 {
		return nil
	}
	if !l.started {
		l.Reset()
		l.started = true
		l.best, l.lastSignificant = ev.Value, ev.Value
		return nil
	}
	l.best = math.Min(l.best, ev.Value)

	scale := math.Max(math.Abs(l.lastSignificant), math.SmallestNonzeroFloat64)
	if (l.lastSignificant-ev.Value)/scale >= l.Threshold && ev.Value < l.lastSignificant {
		l.lastSignificant = ev.Value
		l.stale = 0
		return nil
	}
	l.stale++
	if l.stale >= l.Patience {
		return fmt.Errorf("%w: no improvement above %g in %d steps", ErrStalled, l.Threshold, l.stale)
	}
	return nil
}

func (l *StallListener) ModifiesParameters() bool { return false }

// Best returns the lowest value seen.
func (l *StallListener) Best() float64 { return l.best }

// StaleCount returns the number of steps since the last significant improvement.
func (l *StallListener) StaleCount() int { return l.stale }

// Reset clears the listener so it can watch another run.
func (l *StallListener) Reset() {
	l.best = math.Inf(1)
	l.lastSignificant = math.Inf(1)
	l.stale = 0
	l.started = false
}
