package opt

import (
	"io"
	"log/slog"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

var bowlCenter = map[string]float64{"x": 5, "y": -2, "z": 3}

// bowl is f(x,y,z) = (x-5)² + (y+2)² + (z-3)² with z in [zlo, zhi],
// starting at (x, y, z).
func bowl(x, y, z, zlo, zhi float64) *function.Derivable {
	p := param.MustList(
		param.Parameter{Name: "x", Value: x},
		param.Parameter{Name: "y", Value: y},
		param.Parameter{Name: "z", Value: z, Constraint: param.Closed(zlo, zhi)},
	)
	return function.NewDerivable(p,
		func(p *param.List) float64 {
			s := 0.0
			for i := 0; i < p.Len(); i++ {
				d := p.At(i).Value - bowlCenter[p.At(i).Name]
				s += d * d
			}
			return s
		},
		func(p *param.List, name string) float64 {
			v, _ := p.Value(name)
			return 2 * (v - bowlCenter[name])
		},
		func(p *param.List, a, b string) float64 {
			if a == b {
				return 2
			}
			return 0
		},
	)
}

// bowlError is |f| + |x-5| + |y+2| + |z-3| at the optimizer's point.
func bowlError(o Optimizer) float64 {
	p := o.Parameters()
	e := math.Abs(o.Value())
	for i := 0; i < p.Len(); i++ {
		e += math.Abs(p.At(i).Value - bowlCenter[p.At(i).Name])
	}
	return e
}

// scalar is a one-parameter function backed by f with analytic derivatives d1, d2.
func scalar(x0 float64, c *param.Interval, f, d1, d2 func(float64) float64) *function.Derivable {
	p := param.MustList(param.Parameter{Name: "x", Value: x0, Constraint: c})
	at := func(p *param.List) float64 { return p.At(0).Value }
	return function.NewDerivable(p,
		func(p *param.List) float64 { return f(at(p)) },
		func(p *param.List, _ string) float64 { return d1(at(p)) },
		func(p *param.List, _, _ string) float64 { return d2(at(p)) },
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
