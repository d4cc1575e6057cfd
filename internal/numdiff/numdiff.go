// Package numdiff turns a value-only function into a derivable one using
// finite differences.
//
// The step used for parameter x is h·(1+|x|). Near a constraint bound the
// central formulas fall back to one-sided ones so that the wrapped function
// is never evaluated outside its domain.
package numdiff

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// DefaultStep is the default relative step scale.
const DefaultStep = 1e-4

// ErrProbe is returned when no admissible probe point can be found.
var ErrProbe = errors.New("cannot probe function for derivatives")

// Method selects a finite difference scheme.
type Method int

const (
	// TwoPoints uses one extra evaluation per parameter, first order only.
	TwoPoints Method = iota
	// ThreePoints uses central differences, with optional cross derivatives.
	ThreePoints
	// FivePoints uses the central 5-point stencil.
	FivePoints
)

// ParseMethod maps "two-point", "three-point" and "five-point" to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "two-point", "2":
		return TwoPoints, nil
	case "three-point", "3":
		return ThreePoints, nil
	case "five-point", "5":
		return FivePoints, nil
	default:
		return 0, fmt.Errorf("unknown finite difference method: %s", s)
	}
}

func (m Method) String() string {
	switch m {
	case TwoPoints:
		return "two-point"
	case ThreePoints:
		return "three-point"
	case FivePoints:
		return "five-point"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Wrapper is a numerically derivable function.
type Wrapper interface {
	function.SecondOrder
	SetStep(h float64)
	Step() float64
	SetVariables(names ...string) error
	Variables() []string
	Inner() function.Function
}

// New wraps f with the given method.
func New(m Method, f function.Function) (Wrapper, error) {
	switch m {
	case TwoPoints:
		return NewTwoPoints(f), nil
	case ThreePoints:
		return NewThreePoints(f), nil
	case FivePoints:
		return NewFivePoints(f), nil
	default:
		return nil, fmt.Errorf("unknown finite difference method: %d", int(m))
	}
}

// updater computes the derivatives of the variables at the cached point.
type updater interface {
	update() error
}

// base holds the state shared by all schemes: the wrapped function, the
// cached point with its value and the derivative tables.
type base struct {
	f         function.Function
	self      updater
	h         float64
	variables []string

	d1Enabled, d2Enabled bool

	last     *param.List
	f0       float64
	computed bool
	hasF0    bool

	d1    map[string]float64
	d2    map[string]float64
	cross map[[2]string]float64
}

func newBase(f function.Function, self updater) base {
	return base{
		f:         f,
		self:      self,
		h:         DefaultStep,
		variables: f.Parameters().Names(),
		d1:        make(map[string]float64),
		d2:        make(map[string]float64),
		cross:     make(map[[2]string]float64),
	}
}

func (b *base) SetStep(h float64) {
	b.h = h
	b.computed = false
}

func (b *base) Step() float64 { return b.h }

// SetVariables restricts the parameters derivatives are computed for.
func (b *base) SetVariables(names ...string) error {
	p := b.f.Parameters()
	for _, name := range names {
		if !p.Has(name) {
			return fmt.Errorf("%w: %s", function.ErrUnknownParameter, name)
		}
	}
	b.variables = append([]string(nil), names...)
	b.computed = false
	return nil
}

func (b *base) Variables() []string { return append([]string(nil), b.variables...) }

func (b *base) Inner() function.Function { return b.f }

func (b *base) EnableFirstOrderDerivatives(yes bool)  { b.d1Enabled = yes }
func (b *base) FirstOrderDerivativesEnabled() bool    { return b.d1Enabled }
func (b *base) EnableSecondOrderDerivatives(yes bool) { b.d2Enabled = yes }
func (b *base) SecondOrderDerivativesEnabled() bool   { return b.d2Enabled }

func (b *base) SetParameters(p *param.List) error {
	if err := b.f.SetParameters(p); err != nil {
		return err
	}
	full := b.f.Parameters()
	if b.last == nil || !b.last.SameValues(full) {
		b.last = full
		b.computed = false
		b.hasF0 = false
	}
	if (b.d1Enabled || b.d2Enabled) && !b.computed {
		return b.refresh()
	}
	return nil
}

func (b *base) Parameters() *param.List {
	return b.f.Parameters()
}

func (b *base) Value() float64 {
	if b.hasF0 {
		return b.f0
	}
	return b.f.Value()
}

// refresh recomputes the derivative tables at the cached point and moves the
// wrapped function back there.
func (b *base) refresh() error {
	if b.last == nil {
		b.last = b.f.Parameters()
	}
	b.f0 = b.f.Value()
	b.hasF0 = true
	err := b.self.update()
	if rerr := b.f.SetParameters(b.last); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return err
	}
	b.computed = true
	return nil
}

// ensure computes derivatives lazily when they were disabled at the last SetParameters.
func (b *base) ensure() error {
	if b.last == nil || !b.last.SameValues(b.f.Parameters()) {
		b.last = b.f.Parameters()
		b.computed = false
		b.hasF0 = false
	}
	if b.computed {
		return nil
	}
	return b.refresh()
}

func (b *base) isVariable(name string) bool {
	for _, v := range b.variables {
		if v == name {
			return true
		}
	}
	return false
}

func (b *base) FirstOrderDerivative(name string) (float64, error) {
	if !b.isVariable(name) {
		if d, ok := b.f.(function.FirstOrder); ok {
			return d.FirstOrderDerivative(name)
		}
		return 0, fmt.Errorf("%w: first order derivative for %s", function.ErrUnsupported, name)
	}
	if err := b.ensure(); err != nil {
		return 0, err
	}
	return b.d1[name], nil
}

func (b *base) SecondOrderDerivative(name string) (float64, error) {
	if !b.isVariable(name) {
		if d, ok := b.f.(function.SecondOrder); ok {
			return d.SecondOrderDerivative(name)
		}
		return 0, fmt.Errorf("%w: second order derivative for %s", function.ErrUnsupported, name)
	}
	if err := b.ensure(); err != nil {
		return 0, err
	}
	v, ok := b.d2[name]
	if !ok {
		return 0, fmt.Errorf("%w: second order derivative for %s", function.ErrUnsupported, name)
	}
	return v, nil
}

// probe evaluates the wrapped function with the named parameters moved to
// vs, all other parameters staying at the cached point.
func (b *base) probe(names []string, vs []float64) (float64, error) {
	sub, err := b.last.Subset(names...)
	if err != nil {
		return 0, err
	}
	if err := sub.SetValues(vs); err != nil {
		return 0, err
	}
	if err := b.f.SetParameters(sub); err != nil {
		return 0, err
	}
	return b.f.Value(), nil
}

// probe1 is probe for a single parameter. ok is false on a constraint
// violation; other failures are returned as errors.
func (b *base) probe1(name string, v float64) (fv float64, ok bool, err error) {
	fv, err = b.probe([]string{name}, []float64{v})
	if err != nil {
		if param.IsConstraintError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return fv, true, nil
}

func (b *base) stepFor(x float64) float64 {
	return b.h * (1 + math.Abs(x))
}

func crossKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
