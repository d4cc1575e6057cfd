package opt

import (
	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// axisSeed is the width of the initial interval of each axis search.
const axisSeed = 0.01

// SimpleMultiDimensions optimizes one parameter at a time with a fresh
// one-dimensional optimizer, cycling over all parameters at each step. Each
// axis search gets an equal share of the evaluation budget.
type SimpleMultiDimensions struct {
	Base
	sub     Optimizer
	prepare func(v float64)
}

// NewSimpleMultiDimensions cycles Brent searches over the parameters of f.
func NewSimpleMultiDimensions(f function.Function) *SimpleMultiDimensions {
	brent := NewBrent(f)
	o := &SimpleMultiDimensions{
		sub: brent,
		prepare: func(v float64) {
			brent.SetInitialInterval(v, v+axisSeed)
		},
	}
	o.setup(o, f, NewFunctionStopCondition(o, DefaultTolerance))
	return o
}

// NewSimpleNewtonMultiDimensions cycles Newton searches over the parameters of f.
func NewSimpleNewtonMultiDimensions(f function.SecondOrder) *SimpleMultiDimensions {
	o := &SimpleMultiDimensions{sub: NewNewtonOneDimension(f)}
	o.setup(o, f, NewFunctionStopCondition(o, DefaultTolerance))
	return o
}

// Sub returns the one-dimensional optimizer run on each axis.
func (o *SimpleMultiDimensions) Sub() Optimizer { return o.sub }

func (o *SimpleMultiDimensions) doInit(p *param.List) error {
	o.sub.SetLogger(o.log)
	o.sub.SetConstraintPolicy(o.policy)
	return nil
}

func (o *SimpleMultiDimensions) doStep() (float64, error) {
	n := o.params.Len()
	f := o.currentValue
	o.sub.StopCondition().SetTolerance(o.stop.Tolerance())
	for i := 0; i < n; i++ {
		// The axis search only moves one parameter; the others must be in place.
		if err := o.fn.SetParameters(o.params); err != nil {
			return f, err
		}
		axis, err := o.params.Subset(o.params.At(i).Name)
		if err != nil {
			return f, err
		}
		if o.prepare != nil {
			o.prepare(axis.At(0).Value)
		}
		o.sub.SetMaxEvaluations(max(o.nbEvalMax/n, 2))
		if err := o.sub.Init(axis); err != nil {
			return f, err
		}
		v, err := o.sub.Optimize()
		o.nbEval += o.sub.NumEvaluations()
		if err != nil {
			return f, err
		}
		if _, err := o.params.Match(o.sub.Parameters()); err != nil {
			return f, err
		}
		f = v
	}
	o.tolIsReached = n <= 1
	return f, nil
}
