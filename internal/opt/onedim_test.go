package opt

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

func parabola(x0 float64, c *param.Interval) *function.Derivable {
	return scalar(x0, c,
		func(x float64) float64 { return (x-2)*(x-2) + 1 },
		func(x float64) float64 { return 2 * (x - 2) },
		func(float64) float64 { return 2 },
	)
}

func TestOneDimension_Convergence(t *testing.T) {
	tests := []struct {
		name  string
		build func(f function.SecondOrder) Optimizer
	}{
		{"brent", func(f function.SecondOrder) Optimizer {
			o := NewBrent(f)
			o.SetInitialInterval(0, 1)
			return o
		}},
		{"golden", func(f function.SecondOrder) Optimizer {
			o := NewGoldenSection(f)
			o.SetInitialInterval(0, 1)
			return o
		}},
		{"newton", func(f function.SecondOrder) Optimizer { return NewNewtonOneDimension(f) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parabola(0, nil)
			o := tt.build(f)
			o.SetLogger(quietLogger())
			if err := o.Init(f.Parameters()); err != nil {
				t.Fatal(err)
			}
			v, err := o.Optimize()
			if err != nil {
				t.Fatal(err)
			}
			x := o.Parameters().At(0).Value
			if math.Abs(x-2) > 1e-4 {
				t.Errorf("x = %g, want 2", x)
			}
			if math.Abs(v-1) > 1e-8 {
				t.Errorf("value = %g, want 1", v)
			}
			if !o.IsToleranceReached() {
				t.Error("Expected convergence")
			}
		})
	}
}

func TestBrent_MinimumOnBound(t *testing.T) {
	f := parabola(0, param.Closed(0, 1))
	o := NewBrent(f)
	o.SetLogger(quietLogger())
	o.SetInitialInterval(0, 0.5)
	if err := o.Init(f.Parameters()); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Optimize(); err != nil {
		t.Fatal(err)
	}
	if x := o.Parameters().At(0).Value; x != 1 {
		t.Errorf("x = %g, want the bound 1", x)
	}
}

func TestBrent_InwardBracketing(t *testing.T) {
	f := scalar(1, param.Closed(0, 2*math.Pi), math.Sin, math.Cos, func(x float64) float64 { return -math.Sin(x) })
	o := NewBrent(f)
	o.SetLogger(quietLogger())
	o.SetInitialInterval(0, 2*math.Pi)
	o.SetBracketing(BracketInward, 10)
	if err := o.Init(f.Parameters()); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Optimize(); err != nil {
		t.Fatal(err)
	}
	if x := o.Parameters().At(0).Value; math.Abs(x-1.5*math.Pi) > 1e-4 {
		t.Errorf("x = %g, want 3π/2", x)
	}
	if a, b := o.Interval(); a < 0 || b > 2*math.Pi {
		t.Errorf("Interval [%g, %g] left the domain", a, b)
	}
}

func TestOneDimension_UsageErrors(t *testing.T) {
	f := parabola(0, nil)
	o := NewBrent(f)
	if _, err := o.Step(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if err := o.Init(f.Parameters()); !errors.Is(err, ErrNoInterval) {
		t.Errorf("Expected ErrNoInterval, got %v", err)
	}
	o.SetInitialInterval(0, 1)
	two := param.MustList(param.Parameter{Name: "x"}, param.Parameter{Name: "y"})
	if err := o.Init(two); !errors.Is(err, ErrWrongParameterCount) {
		t.Errorf("Expected ErrWrongParameterCount, got %v", err)
	}
	if err := NewNewtonOneDimension(f).Init(two); !errors.Is(err, ErrWrongParameterCount) {
		t.Errorf("Expected ErrWrongParameterCount from Newton, got %v", err)
	}
}

func TestNewton_NegativeCurvatureMovesDownhill(t *testing.T) {
	f := scalar(0.5, nil, math.Cos,
		func(x float64) float64 { return -math.Sin(x) },
		func(x float64) float64 { return -math.Cos(x) },
	)
	o := NewNewtonOneDimension(f)
	o.SetLogger(quietLogger())
	if err := o.Init(f.Parameters()); err != nil {
		t.Fatal(err)
	}
	v0 := o.Value()
	v1, err := o.Step()
	if err != nil {
		t.Fatal(err)
	}
	if v1 >= v0 {
		t.Errorf("Step went from %g to %g", v0, v1)
	}
	if _, err := o.Optimize(); err != nil {
		t.Fatal(err)
	}
	if x := o.Parameters().At(0).Value; math.Abs(x-math.Pi) > 1e-3 {
		t.Errorf("x = %g, want π", x)
	}
}

func TestNewton_GivesUpAfterCorrections(t *testing.T) {
	for _, corrections := range []int{0, 3, DefaultMaxCorrections} {
		t.Run(fmt.Sprint(corrections), func(t *testing.T) {
			// The derivative points the wrong way, so every step increases f.
			f := scalar(1, nil,
				func(x float64) float64 { return x * x },
				func(float64) float64 { return -1 },
				func(float64) float64 { return 1 },
			)
			o := NewNewtonOneDimension(f)
			o.MaxCorrections = corrections
			o.SetLogger(quietLogger())
			if err := o.Init(f.Parameters()); err != nil {
				t.Fatal(err)
			}
			v, err := o.Step()
			if err != nil {
				t.Fatal(err)
			}
			if v != 1 || o.Parameters().At(0).Value != 1 {
				t.Errorf("Expected to stay at x=1, f=1, got x=%g, f=%g", o.Parameters().At(0).Value, v)
			}
			if !o.IsToleranceReached() {
				t.Error("Expected the optimizer to stop")
			}
			// Initial point, full step, then one evaluation per halving.
			if got, want := o.NumEvaluations(), 2+corrections; got != want {
				t.Errorf("NumEvaluations = %d, want %d", got, want)
			}
		})
	}
}

func TestLineMinimization(t *testing.T) {
	f := bowl(0, 0, 0.5, 0.01, 5)
	p := f.Parameters()
	xi := []float64{1, 0, 0}
	nb, err := LineMinimization(function.NewDirection(f), p, xi, 1e-8, 1000, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if nb == 0 {
		t.Error("Expected evaluations to be counted")
	}
	if x, _ := p.Value("x"); math.Abs(x-5) > 1e-4 {
		t.Errorf("x = %g, want 5", x)
	}
	if math.Abs(xi[0]-5) > 1e-4 || xi[1] != 0 || xi[2] != 0 {
		t.Errorf("Displacement = %v, want [5 0 0]", xi)
	}
}

func TestLineSearch(t *testing.T) {
	f := bowl(0, 0, 3, 0.01, 5)
	p := f.Parameters()
	grad := []float64{-10, 4, 0}
	xi := []float64{5, -2, 0}
	if _, err := LineSearch(function.NewDirection(f), p, xi, grad, 1e-6, 100, quietLogger()); err != nil {
		t.Fatal(err)
	}
	if x, _ := p.Value("x"); math.Abs(x-5) > 1e-12 {
		t.Errorf("Expected the full Newton step, got x=%g", x)
	}

	// Uphill direction.
	p = f.Parameters()
	xi = []float64{-1, 0, 0}
	nb, err := LineSearch(function.NewDirection(f), p, xi, grad, 1e-6, 100, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if nb != 0 || xi[0] != 0 {
		t.Errorf("Expected no move, got %d evaluations and displacement %v", nb, xi)
	}
	if x, _ := p.Value("x"); x != 0 {
		t.Errorf("x moved to %g", x)
	}
}
