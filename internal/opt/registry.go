package opt

import (
	"fmt"
	"sort"

	"github.com/cwbudde/numopt/internal/function"
)

// Bracketed is implemented by the one-dimensional optimizers that start
// from an initial interval.
type Bracketed interface {
	Optimizer
	SetInitialInterval(a, b float64)
	SetBracketing(kind BracketType, n int)
}

type constructor struct {
	order int
	build func(f function.Function) Optimizer
}

var registry = map[string]constructor{
	"brent":  {0, func(f function.Function) Optimizer { return NewBrent(f) }},
	"golden": {0, func(f function.Function) Optimizer { return NewGoldenSection(f) }},
	"newton": {2, func(f function.Function) Optimizer {
		return NewNewtonOneDimension(f.(function.SecondOrder))
	}},
	"simplex": {0, func(f function.Function) Optimizer { return NewDownhillSimplex(f) }},
	"powell":  {0, func(f function.Function) Optimizer { return NewPowell(f) }},
	"cg": {1, func(f function.Function) Optimizer {
		return NewConjugateGradient(f.(function.FirstOrder))
	}},
	"bfgs": {1, func(f function.Function) Optimizer {
		return NewBFGS(f.(function.FirstOrder))
	}},
	"simple": {0, func(f function.Function) Optimizer { return NewSimpleMultiDimensions(f) }},
	"simple-newton": {2, func(f function.Function) Optimizer {
		return NewSimpleNewtonMultiDimensions(f.(function.SecondOrder))
	}},
}

// Names lists the optimizers known to New.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DerivativeOrder returns the derivative order the named optimizer needs.
func DerivativeOrder(name string) (int, error) {
	c, ok := registry[name]
	if !ok {
		return 0, fmt.Errorf("unknown optimizer: %q", name)
	}
	return c.order, nil
}

// New builds the named optimizer over f. It fails when f lacks the
// derivatives the optimizer needs.
func New(name string, f function.Function) (Optimizer, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown optimizer: %q", name)
	}
	switch c.order {
	case 1:
		if _, ok := f.(function.FirstOrder); !ok {
			return nil, fmt.Errorf("optimizer %q needs first order derivatives: %w", name, function.ErrUnsupported)
		}
	case 2:
		if _, ok := f.(function.SecondOrder); !ok {
			return nil, fmt.Errorf("optimizer %q needs second order derivatives: %w", name, function.ErrUnsupported)
		}
	}
	return c.build(f), nil
}
