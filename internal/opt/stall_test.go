package opt

import (
	"errors"
	"testing"
)

func TestStallListener_Sequence(t *testing.T) {
	l := NewStallListener(3, 0.01)

	tests := []struct {
		value float64
		stale int
		stop  bool
	}{
		{100, 0, false},
		{50, 0, false},
		{49.9, 1, false},
		{49.8, 2, false},
		{40, 0, false},
		{39.99, 1, false},
		{39.98, 2, false},
		{39.97, 3, true},
	}
	for i, tt := range tests {
		err := l.StepPerformed(Event{Step: i + 1, Value: tt.value})
		if got := errors.Is(err, ErrStalled); got != tt.stop {
			t.Fatalf("step %d: stalled = %v, want %v (err %v)", i+1, got, tt.stop, err)
		}
		if l.StaleCount() != tt.stale {
			t.Errorf("step %d: StaleCount = %d, want %d", i+1, l.StaleCount(), tt.stale)
		}
	}
	if l.Best() != 39.97 {
		t.Errorf("Best = %g, want 39.97", l.Best())
	}

	l.Reset()
	if l.StaleCount() != 0 {
		t.Error("Reset should clear the stale count")
	}
}

func TestStallListener_NegativeValues(t *testing.T) {
	l := NewStallListener(1, 0.1)
	for i, v := range []float64{-10, -12} {
		if err := l.StepPerformed(Event{Step: i + 1, Value: v}); err != nil {
			t.Fatalf("step %d: unexpected stop %v", i+1, err)
		}
	}
	if err := l.StepPerformed(Event{Step: 3, Value: -12.5}); !errors.Is(err, ErrStalled) {
		t.Errorf("Expected a stall on a 4%% improvement, got %v", err)
	}
}

func TestStallListener_Disabled(t *testing.T) {
	l := NewStallListener(0, 0.5)
	for i := 0; i < 10; i++ {
		if err := l.StepPerformed(Event{Step: i + 1, Value: 1}); err != nil {
			t.Fatalf("Disabled listener stopped: %v", err)
		}
	}
}

func TestBase_StallStopsGracefully(t *testing.T) {
	f := bowl(0, 0, 0.5, 0.01, 5)
	o := NewDownhillSimplex(f)
	o.SetLogger(quietLogger())
	o.StopCondition().SetTolerance(1e-300)
	// Any step counts as stale.
	o.AddListener(NewStallListener(5, 2))
	if err := o.Init(f.Parameters()); err != nil {
		t.Fatal(err)
	}
	v, err := o.Optimize()
	if err != nil {
		t.Fatalf("A stall should not be an error: %v", err)
	}
	if o.IsToleranceReached() {
		t.Error("A stalled run has not reached its tolerance")
	}
	if o.NumSteps() != 6 {
		t.Errorf("Expected 6 steps, got %d", o.NumSteps())
	}
	if v != o.Value() {
		t.Errorf("Optimize returned %g, optimizer holds %g", v, o.Value())
	}
}
