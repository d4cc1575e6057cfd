package opt

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/numdiff"
	"github.com/cwbudde/numopt/internal/param"
)

// BoxAdapter runs a named optimizer on a plain objective over a box.
// Optimizers that need derivatives get three-point numerical ones.
type BoxAdapter struct {
	name      string
	maxEvals  int
	tol       float64
	log       *slog.Logger
	listeners []Listener
	last      Optimizer
}

// NewBoxAdapter creates an adapter for the named optimizer.
func NewBoxAdapter(name string, maxEvals int, tol float64) (*BoxAdapter, error) {
	if _, err := DerivativeOrder(name); err != nil {
		return nil, err
	}
	return &BoxAdapter{name: name, maxEvals: maxEvals, tol: tol, log: slog.Default()}, nil
}

// SetLogger sets the logger handed to the optimizer.
func (b *BoxAdapter) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log = l
	}
}

// AddListener registers a listener on the optimizer of every Run.
func (b *BoxAdapter) AddListener(l Listener) {
	b.listeners = append(b.listeners, l)
}

// Run minimizes eval over [lower, upper] starting from the centre of the
// box. Infinite bounds are allowed; a dimension unbounded on both sides
// starts at zero. It returns the best point and its value.
func (b *BoxAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if len(lower) != dim || len(upper) != dim {
		return nil, 0, fmt.Errorf("%w: bounds have %d and %d entries, expected %d", ErrWrongParameterCount, len(lower), len(upper), dim)
	}
	p := &param.List{}
	for i := 0; i < dim; i++ {
		var c *param.Interval
		if !math.IsInf(lower[i], -1) || !math.IsInf(upper[i], 1) {
			iv, err := param.NewInterval(lower[i], upper[i], false, false)
			if err != nil {
				return nil, 0, fmt.Errorf("dimension %d: %w", i, err)
			}
			c = iv
		}
		if err := p.Add(param.Parameter{Name: fmt.Sprintf("x%d", i), Value: boxStart(lower[i], upper[i]), Constraint: c}); err != nil {
			return nil, 0, err
		}
	}

	var f function.Function = function.New(p, func(p *param.List) float64 { return eval(p.Values()) })
	order, _ := DerivativeOrder(b.name)
	if order > 0 {
		f = numdiff.NewThreePoints(f)
	}
	o, err := New(b.name, f)
	if err != nil {
		return nil, 0, err
	}
	if br, ok := o.(Bracketed); ok {
		if dim != 1 {
			return nil, 0, fmt.Errorf("%w: %s is one-dimensional, got %d dimensions", ErrWrongParameterCount, b.name, dim)
		}
		br.SetInitialInterval(lower[0], upper[0])
		if !math.IsInf(lower[0], 0) && !math.IsInf(upper[0], 0) {
			br.SetBracketing(BracketInward, DefaultInwardPoints)
		} else {
			br.SetInitialInterval(p.At(0).Value, p.At(0).Value+axisSeed)
		}
	}
	o.SetLogger(b.log)
	for _, l := range b.listeners {
		o.AddListener(l)
	}
	if b.maxEvals > 0 {
		o.SetMaxEvaluations(b.maxEvals)
	}
	if b.tol > 0 {
		o.StopCondition().SetTolerance(b.tol)
	}
	b.last = o
	if err := o.Init(p); err != nil {
		return nil, 0, err
	}
	v, err := o.Optimize()
	if err != nil {
		return nil, 0, err
	}
	return o.Parameters().Values(), v, nil
}

// Last returns the optimizer of the latest Run, or nil.
func (b *BoxAdapter) Last() Optimizer { return b.last }

func boxStart(lo, hi float64) float64 {
	switch {
	case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
		return (lo + hi) / 2
	case !math.IsInf(lo, 0):
		return lo + 1
	case !math.IsInf(hi, 0):
		return hi - 1
	default:
		return 0
	}
}
