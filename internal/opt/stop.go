package opt

import (
	"math"
)

// DefaultTolerance is the tolerance of stop conditions created by optimizer constructors.
const DefaultTolerance = 1e-6

// StopCondition decides when an optimizer has converged. It is bound to a
// single optimizer and keeps the state it needs between calls.
type StopCondition interface {
	// Init resets the state. Optimizers call it at the end of their own Init.
	Init()
	// IsToleranceReached is called once after each step.
	IsToleranceReached() bool
	Tolerance() float64
	SetTolerance(tol float64)
	// BurnIn is the number of calls that always report "not reached".
	BurnIn() int
	SetBurnIn(n int)
	// CurrentTolerance returns the quantity compared against the tolerance
	// at the optimizer's current state.
	CurrentTolerance() float64
}

type stopBase struct {
	tol    float64
	burnIn int
	calls  int
}

func newStopBase(tol float64) stopBase {
	return stopBase{tol: tol}
}

func (s *stopBase) Tolerance() float64       { return s.tol }
func (s *stopBase) SetTolerance(tol float64) { s.tol = tol }
func (s *stopBase) BurnIn() int              { return s.burnIn }
func (s *stopBase) SetBurnIn(n int)          { s.burnIn = n }

func (s *stopBase) reset() { s.calls = 0 }

// burningIn counts a call and reports whether it falls within the burn-in.
func (s *stopBase) burningIn() bool {
	s.calls++
	return s.calls <= s.burnIn
}

// ParametersStopCondition is reached when no parameter moved by more than
// the tolerance since the previous check.
type ParametersStopCondition struct {
	stopBase
	o     Optimizer
	last  map[string]float64
	delta float64
}

// NewParametersStopCondition binds a parameter-delta condition to o.
func NewParametersStopCondition(o Optimizer, tol float64) *ParametersStopCondition {
	return &ParametersStopCondition{stopBase: newStopBase(tol), o: o, delta: math.Inf(1)}
}

func (s *ParametersStopCondition) Init() {
	s.reset()
	s.delta = math.Inf(1)
	s.last = nil
	if s.o.IsInitialized() {
		s.last = snapshot(s.o)
	}
}

func (s *ParametersStopCondition) IsToleranceReached() bool {
	cur := snapshot(s.o)
	if s.last != nil {
		s.delta = 0
		for name, v := range cur {
			prev, ok := s.last[name]
			if !ok {
				s.delta = math.Inf(1)
				break
			}
			s.delta = math.Max(s.delta, math.Abs(v-prev))
		}
	}
	s.last = cur
	if s.burningIn() {
		return false
	}
	return s.delta <= s.tol
}

func (s *ParametersStopCondition) CurrentTolerance() float64 { return s.delta }

func snapshot(o Optimizer) map[string]float64 {
	p := o.Parameters()
	m := make(map[string]float64, p.Len())
	for i := 0; i < p.Len(); i++ {
		m[p.At(i).Name] = p.At(i).Value
	}
	return m
}

// FunctionStopCondition is reached when the function value changed by no
// more than the tolerance since the previous check.
type FunctionStopCondition struct {
	stopBase
	o     Optimizer
	last  float64
	delta float64
}

// NewFunctionStopCondition binds a function-delta condition to o.
func NewFunctionStopCondition(o Optimizer, tol float64) *FunctionStopCondition {
	return &FunctionStopCondition{stopBase: newStopBase(tol), o: o, last: math.Inf(1), delta: math.Inf(1)}
}

func (s *FunctionStopCondition) Init() {
	s.reset()
	s.last = math.Inf(1)
	s.delta = math.Inf(1)
}

func (s *FunctionStopCondition) IsToleranceReached() bool {
	v := s.o.Value()
	s.delta = math.Abs(v - s.last)
	if math.IsNaN(s.delta) {
		s.delta = math.Inf(1)
	}
	s.last = v
	if s.burningIn() {
		return false
	}
	return s.delta <= s.tol
}

func (s *FunctionStopCondition) CurrentTolerance() float64 { return s.delta }

// rangeStop is reached when the relative range of the values an optimizer
// keeps (simplex vertices, Powell iterates) falls below the tolerance.
type rangeStop struct {
	stopBase
	rangeOf func() float64
}

func (s *rangeStop) Init() { s.reset() }

func (s *rangeStop) IsToleranceReached() bool {
	r := s.rangeOf()
	if s.burningIn() {
		return false
	}
	return r <= s.tol
}

func (s *rangeStop) CurrentTolerance() float64 { return s.rangeOf() }

// rangeTiny keeps the relative range defined when the values vanish.
const rangeTiny = 1e-10

// relativeRange returns 2|high-low| / (|high|+|low|).
func relativeRange(high, low float64) float64 {
	r := 2 * math.Abs(high-low) / (math.Abs(high) + math.Abs(low) + rangeTiny)
	if math.IsNaN(r) {
		return math.Inf(1)
	}
	return r
}
