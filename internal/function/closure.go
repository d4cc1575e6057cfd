package function

import (
	"fmt"

	"github.com/cwbudde/numopt/internal/param"
)

// EvalFunc computes a function value at p.
type EvalFunc func(p *param.List) float64

// PartialFunc computes the partial derivative with respect to name at p.
type PartialFunc func(p *param.List, name string) float64

// CrossFunc computes the second order derivative with respect to name1 and name2 at p.
// name1 == name2 asks for the diagonal term.
type CrossFunc func(p *param.List, name1, name2 string) float64

// Simple is a Function backed by a closure.
type Simple struct {
	params *param.List
	eval   EvalFunc
	value  float64
	valid  bool
	evals  int
}

// New creates a Function evaluating eval, starting at a copy of params.
func New(params *param.List, eval EvalFunc) *Simple {
	return &Simple{params: params.Clone(), eval: eval}
}

func (s *Simple) SetParameters(p *param.List) error {
	changed, err := s.params.Match(p)
	if err != nil {
		return err
	}
	if changed {
		s.valid = false
	}
	return nil
}

func (s *Simple) Parameters() *param.List {
	return s.params.Clone()
}

func (s *Simple) Value() float64 {
	if !s.valid {
		s.value = s.eval(s.params)
		s.valid = true
		s.evals++
	}
	return s.value
}

// Evaluations returns how many times the closure has been called.
func (s *Simple) Evaluations() int {
	return s.evals
}

// Derivable is a SecondOrder function backed by closures for the value and
// analytic derivatives. A nil cross closure makes second order derivatives
// unsupported.
type Derivable struct {
	*Simple
	first  PartialFunc
	second CrossFunc
	d1, d2 bool
}

// NewDerivable creates a SecondOrder function. second may be nil.
func NewDerivable(params *param.List, eval EvalFunc, first PartialFunc, second CrossFunc) *Derivable {
	return &Derivable{Simple: New(params, eval), first: first, second: second}
}

func (d *Derivable) EnableFirstOrderDerivatives(yes bool)  { d.d1 = yes }
func (d *Derivable) FirstOrderDerivativesEnabled() bool    { return d.d1 }
func (d *Derivable) EnableSecondOrderDerivatives(yes bool) { d.d2 = yes }
func (d *Derivable) SecondOrderDerivativesEnabled() bool   { return d.d2 }

func (d *Derivable) FirstOrderDerivative(name string) (float64, error) {
	if !d.params.Has(name) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return d.first(d.params, name), nil
}

func (d *Derivable) SecondOrderDerivative(name string) (float64, error) {
	return d.SecondOrderCrossDerivative(name, name)
}

func (d *Derivable) SecondOrderCrossDerivative(name1, name2 string) (float64, error) {
	if d.second == nil {
		return 0, ErrUnsupported
	}
	for _, name := range []string{name1, name2} {
		if !d.params.Has(name) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
	}
	return d.second(d.params, name1, name2), nil
}
