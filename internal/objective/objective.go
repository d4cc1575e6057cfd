// Package objective provides benchmark objective functions with analytic
// first and second order derivatives.
//
// Objectives work on the parameter values in list order, so the parameters
// may carry any names.
package objective

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// ErrUnknown is returned for an objective name that is not registered.
var ErrUnknown = errors.New("unknown objective")

// Options are objective specific settings, keyed by name.
type Options map[string]float64

type definition struct {
	description string
	// minDim and maxDim bound the number of parameters; maxDim 0 means unbounded.
	minDim, maxDim int
	defaults       Options
	start          func(dim int) []param.Parameter

	eval func(x []float64, o Options) float64
	grad func(x []float64, i int, o Options) float64
	hess func(x []float64, i, j int, o Options) float64
}

var registry = map[string]definition{
	"sphere": {
		description: "sum of (x_i - center)^2",
		minDim:      1,
		defaults:    Options{"center": 0},
		start:       indexed(func(int) float64 { return 1 }),
		eval: func(x []float64, o Options) float64 {
			s := 0.0
			for _, v := range x {
				d := v - o["center"]
				s += d * d
			}
			return s
		},
		grad: func(x []float64, i int, o Options) float64 { return 2 * (x[i] - o["center"]) },
		hess: func(_ []float64, i, j int, _ Options) float64 {
			if i == j {
				return 2
			}
			return 0
		},
	},
	"cossin": {
		description: "cos(x) + sin(y), minimum -2 at (pi, -pi/2) in the default box",
		minDim:      2,
		maxDim:      2,
		start: func(int) []param.Parameter {
			return []param.Parameter{
				{Name: "x", Value: 1, Constraint: param.Closed(-1, 7)},
				{Name: "y", Value: 0, Constraint: param.Closed(-4, 4)},
			}
		},
		eval: func(x []float64, _ Options) float64 { return math.Cos(x[0]) + math.Sin(x[1]) },
		grad: func(x []float64, i int, _ Options) float64 {
			if i == 0 {
				return -math.Sin(x[0])
			}
			return math.Cos(x[1])
		},
		hess: func(x []float64, i, j int, _ Options) float64 {
			switch {
			case i != j:
				return 0
			case i == 0:
				return -math.Cos(x[0])
			default:
				return -math.Sin(x[1])
			}
		},
	},
	"rosenbrock": {
		description: "sum of a(x_{i+1} - x_i^2)^2 + (1 - x_i)^2, minimum 0 at (1, ..., 1)",
		minDim:      2,
		defaults:    Options{"a": 100},
		start: indexed(func(i int) float64 {
			if i%2 == 0 {
				return -1.2
			}
			return 1
		}),
		eval:  rosenbrock,
		grad:  rosenbrockGrad,
		hess:  rosenbrockHess,
	},
	"jc69": {
		description: "negative log-likelihood of a Jukes-Cantor branch length t given same/diff site counts",
		minDim:      1,
		maxDim:      1,
		defaults:    Options{"same": 90, "diff": 10},
		start: func(int) []param.Parameter {
			return []param.Parameter{{Name: "t", Value: 0.5, Constraint: param.Positive()}}
		},
		eval: jc69,
		grad: func(x []float64, _ int, o Options) float64 { return jc69Grad(x[0], o) },
		hess: func(x []float64, _, _ int, o Options) float64 { return jc69Hess(x[0], o) },
	},
}

// indexed builds unbounded parameters x0..x{dim-1} with the given start values.
func indexed(value func(i int) float64) func(dim int) []param.Parameter {
	return func(dim int) []param.Parameter {
		ps := make([]param.Parameter, dim)
		for i := range ps {
			ps[i] = param.Parameter{Name: fmt.Sprintf("x%d", i), Value: value(i)}
		}
		return ps
	}
}

// Names lists the registered objectives.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description of the named objective.
func Describe(name string) (string, error) {
	d, err := lookup(name)
	if err != nil {
		return "", err
	}
	return d.description, nil
}

func lookup(name string) (definition, error) {
	d, ok := registry[name]
	if !ok {
		return definition{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return d, nil
}

func (d definition) checkDim(name string, n int) error {
	if n < d.minDim || (d.maxDim > 0 && n > d.maxDim) {
		if d.minDim == d.maxDim {
			return fmt.Errorf("objective %q takes %d parameters, got %d", name, d.minDim, n)
		}
		return fmt.Errorf("objective %q takes at least %d parameters, got %d", name, d.minDim, n)
	}
	return nil
}

func (d definition) options(name string, o Options) (Options, error) {
	merged := make(Options, len(d.defaults))
	for k, v := range d.defaults {
		merged[k] = v
	}
	for k, v := range o {
		if _, ok := d.defaults[k]; !ok {
			return nil, fmt.Errorf("objective %q has no option %q", name, k)
		}
		merged[k] = v
	}
	return merged, nil
}

// DefaultParameters returns the usual starting point of the named objective.
// dim is ignored by objectives of fixed dimension; 0 picks the smallest one.
func DefaultParameters(name string, dim int) (*param.List, error) {
	d, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if dim == 0 || d.minDim == d.maxDim {
		dim = d.minDim
	}
	if err := d.checkDim(name, dim); err != nil {
		return nil, err
	}
	return param.NewList(d.start(dim)...)
}

// New returns the named objective over p with analytic derivatives.
func New(name string, p *param.List, o Options) (*function.Derivable, error) {
	d, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := d.checkDim(name, p.Len()); err != nil {
		return nil, err
	}
	opts, err := d.options(name, o)
	if err != nil {
		return nil, err
	}
	return function.NewDerivable(p,
		func(p *param.List) float64 { return d.eval(p.Values(), opts) },
		func(p *param.List, name string) float64 { return d.grad(p.Values(), p.Index(name), opts) },
		func(p *param.List, a, b string) float64 { return d.hess(p.Values(), p.Index(a), p.Index(b), opts) },
	), nil
}

// Vector returns the named objective as a plain function of dim values.
func Vector(name string, dim int, o Options) (func([]float64) float64, error) {
	d, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := d.checkDim(name, dim); err != nil {
		return nil, err
	}
	opts, err := d.options(name, o)
	if err != nil {
		return nil, err
	}
	return func(x []float64) float64 { return d.eval(x, opts) }, nil
}
