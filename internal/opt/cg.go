package opt

import (
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
	"gonum.org/v1/gonum/floats"
)

// ConjugateGradient is the Polak-Ribiere conjugate gradient method.
type ConjugateGradient struct {
	Base
	f   function.FirstOrder
	dir *function.Direction

	names    []string
	g, h, xi []float64
}

// NewConjugateGradient creates a conjugate gradient optimizer over f.
func NewConjugateGradient(f function.FirstOrder) *ConjugateGradient {
	o := &ConjugateGradient{f: f, dir: function.NewDirection(f)}
	o.setup(o, f, NewFunctionStopCondition(o, DefaultTolerance))
	return o
}

func (o *ConjugateGradient) doInit(p *param.List) error {
	o.names = p.Names()
	n := len(o.names)
	o.f.EnableFirstOrderDerivatives(true)
	if err := o.f.SetParameters(p); err != nil {
		return err
	}
	var err error
	if o.xi, err = function.Gradient(o.f, o.names, nil); err != nil {
		return err
	}
	o.g = make([]float64, n)
	o.h = make([]float64, n)
	for j := range o.xi {
		o.g[j] = -o.xi[j]
		o.h[j] = o.g[j]
		o.xi[j] = o.h[j]
	}
	o.dir.SetConstraintPolicy(o.policy)
	return nil
}

func (o *ConjugateGradient) doStep() (float64, error) {
	o.f.EnableFirstOrderDerivatives(false)
	nb, err := LineMinimization(o.dir, o.params, o.xi, o.stop.Tolerance(), o.remaining(), o.log)
	o.nbEval += nb
	o.f.EnableFirstOrderDerivatives(true)
	if err != nil {
		return o.currentValue, err
	}

	fret, err := o.evaluate(o.params)
	if err != nil {
		return o.currentValue, err
	}
	if _, err := function.Gradient(o.f, o.names, o.xi); err != nil {
		return fret, err
	}

	gg := floats.Dot(o.g, o.g)
	if gg == 0 {
		return fret, nil
	}
	// Polak-Ribiere: (grad' + grad)·grad' / grad·grad, with g = -grad.
	dgg := 0.0
	for j := range o.xi {
		dgg += (o.xi[j] + o.g[j]) * o.xi[j]
	}
	gam := dgg / gg
	if math.IsNaN(gam) || math.IsInf(gam, 0) {
		o.log.Warn("Non finite conjugate gradient coefficient, keeping the previous direction", "gamma", gam)
		copy(o.xi, o.h)
		return fret, nil
	}
	for j := range o.xi {
		o.g[j] = -o.xi[j]
		o.h[j] = o.g[j] + gam*o.h[j]
		o.xi[j] = o.h[j]
	}
	return fret, nil
}
