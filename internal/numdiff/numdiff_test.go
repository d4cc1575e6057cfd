package numdiff

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// bowl is f(x,y,z) = (x-5)² + (y+2)² + (z-3)² with z in [0.01, 5].
func bowl(x, y, z float64) *function.Simple {
	p := param.MustList(
		param.Parameter{Name: "x", Value: x},
		param.Parameter{Name: "y", Value: y},
		param.Parameter{Name: "z", Value: z, Constraint: param.Closed(0.01, 5)},
	)
	return function.New(p, func(p *param.List) float64 {
		v := p.Values()
		return (v[0]-5)*(v[0]-5) + (v[1]+2)*(v[1]+2) + (v[2]-3)*(v[2]-3)
	})
}

var centers = map[string]float64{"x": 5, "y": -2, "z": 3}

func analyticD1(p *param.List, name string) float64 {
	v, _ := p.Value(name)
	return 2 * (v - centers[name])
}

func TestDerivatives_AgreeWithAnalytic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tol := math.Sqrt(DefaultStep)

	for _, m := range []Method{TwoPoints, ThreePoints, FivePoints} {
		t.Run(m.String(), func(t *testing.T) {
			for trial := 0; trial < 50; trial++ {
				x := rng.Float64()*20 - 10
				y := rng.Float64()*20 - 10
				z := 0.01 + rng.Float64()*4.99
				f := bowl(x, y, z)
				d, err := New(m, f)
				if err != nil {
					t.Fatal(err)
				}
				d.EnableFirstOrderDerivatives(true)
				d.EnableSecondOrderDerivatives(true)

				p := f.Parameters()
				if err := d.SetParameters(p); err != nil {
					t.Fatalf("SetParameters failed at %v: %v", p, err)
				}
				for _, name := range []string{"x", "y", "z"} {
					got, err := d.FirstOrderDerivative(name)
					if err != nil {
						t.Fatal(err)
					}
					v, _ := p.Value(name)
					want := analyticD1(p, name)
					if math.Abs(got-want) > tol*(1+math.Abs(v)) {
						t.Errorf("d/d%s at %v = %g, want %g", name, p, got, want)
					}
					if m == TwoPoints {
						continue
					}
					got2, err := d.SecondOrderDerivative(name)
					if err != nil {
						t.Fatal(err)
					}
					if math.Abs(got2-2) > 1e-3 {
						t.Errorf("d²/d%s² at %v = %g, want 2", name, p, got2)
					}
				}
			}
		})
	}
}

func TestDerivatives_OneSidedAtBound(t *testing.T) {
	for _, m := range []Method{TwoPoints, ThreePoints, FivePoints} {
		t.Run(m.String(), func(t *testing.T) {
			for _, z := range []float64{0.01, 5} {
				f := bowl(1, 1, z)
				d, _ := New(m, f)
				d.EnableFirstOrderDerivatives(true)
				if err := d.SetParameters(f.Parameters()); err != nil {
					t.Fatalf("SetParameters failed at z=%g: %v", z, err)
				}
				got, err := d.FirstOrderDerivative("z")
				if err != nil {
					t.Fatal(err)
				}
				want := 2 * (z - 3)
				if math.Abs(got-want) > 1e-2 {
					t.Errorf("d/dz at z=%g = %g, want %g", z, got, want)
				}
			}
		})
	}
}

func TestDerivatives_RestoreAndCache(t *testing.T) {
	f := bowl(1, 2, 3)
	d := NewThreePoints(f)
	d.EnableFirstOrderDerivatives(true)

	p := f.Parameters()
	if err := d.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	if !f.Parameters().SameValues(p) {
		t.Errorf("Wrapped function not restored: %v, want %v", f.Parameters(), p)
	}
	if v := d.Value(); v != 16+16 {
		t.Errorf("Value = %g, want 32", v)
	}

	evals := f.Evaluations()
	if err := d.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	d.FirstOrderDerivative("x")
	d.FirstOrderDerivative("y")
	d.Value()
	if f.Evaluations() != evals {
		t.Errorf("Expected cached derivatives, evaluations went from %d to %d", evals, f.Evaluations())
	}
}

func TestDerivatives_LazyWhenDisabled(t *testing.T) {
	f := bowl(0, 0, 1)
	d := NewFivePoints(f)
	if err := d.SetParameters(f.Parameters()); err != nil {
		t.Fatal(err)
	}
	if f.Evaluations() != 0 {
		t.Errorf("Expected no evaluation with derivatives disabled, got %d", f.Evaluations())
	}
	got, err := d.FirstOrderDerivative("x")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got+10) > 1e-6 {
		t.Errorf("d/dx = %g, want -10", got)
	}
}

func TestThreePoints_CrossDerivatives(t *testing.T) {
	p := param.MustList(
		param.Parameter{Name: "x", Value: 1.5},
		param.Parameter{Name: "y", Value: -0.5, Constraint: param.Closed(-0.5, 2)},
	)
	f := function.New(p, func(p *param.List) float64 {
		v := p.Values()
		return v[0] * v[0] * v[1]
	})
	d := NewThreePoints(f)
	d.EnableCrossDerivatives(true)
	d.EnableSecondOrderDerivatives(true)
	if err := d.SetParameters(p); err != nil {
		t.Fatal(err)
	}
	// d²/dxdy = 2x = 3, with y on its lower bound
	got, err := d.SecondOrderCrossDerivative("x", "y")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-3) > 1e-3 {
		t.Errorf("d²/dxdy = %g, want 3", got)
	}
}

func TestFivePoints_NoCrossDerivatives(t *testing.T) {
	d := NewFivePoints(bowl(0, 0, 1))
	if _, err := d.SecondOrderCrossDerivative("x", "y"); !errors.Is(err, function.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestSetVariables(t *testing.T) {
	d := NewTwoPoints(bowl(0, 0, 1))
	if err := d.SetVariables("x"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.FirstOrderDerivative("y"); !errors.Is(err, function.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for non-variable, got %v", err)
	}
	if err := d.SetVariables("w"); err == nil {
		t.Error("Expected error for unknown variable")
	}
}

// pinned only accepts its starting point and rejects every other one as a
// constraint violation.
type pinned struct {
	*function.Simple
	x0       float64
	rejected int
}

func (p *pinned) SetParameters(l *param.List) error {
	if v, err := l.Value("x"); err == nil && v != p.x0 {
		p.rejected++
		return &param.ConstraintError{Name: "x", Value: v, Constraint: param.Closed(p.x0, p.x0)}
	}
	return p.Simple.SetParameters(l)
}

func TestTwoPoints_GivesUpWithoutAdmissibleStep(t *testing.T) {
	t.Run("degenerate interval", func(t *testing.T) {
		p := param.MustList(param.Parameter{Name: "x", Value: 1, Constraint: param.Closed(1, 1)})
		d := NewTwoPoints(function.New(p, func(p *param.List) float64 { return p.At(0).Value }))
		d.EnableFirstOrderDerivatives(true)
		if err := d.SetParameters(p); !errors.Is(err, ErrProbe) {
			t.Errorf("Expected ErrProbe, got %v", err)
		}
	})

	t.Run("halvings", func(t *testing.T) {
		p := param.MustList(param.Parameter{Name: "x", Value: 1})
		f := &pinned{Simple: function.New(p, func(p *param.List) float64 { return p.At(0).Value }), x0: 1}
		d := NewTwoPoints(f)
		if err := d.SetParameters(p); err != nil {
			t.Fatal(err)
		}
		_, err := d.FirstOrderDerivative("x")
		if !errors.Is(err, ErrProbe) {
			t.Fatalf("Expected ErrProbe, got %v", err)
		}
		// x+h, x-h, then maxHalvings halved backward steps.
		if want := maxHalvings + 2; f.rejected != want {
			t.Errorf("Tried %d steps, want %d", f.rejected, want)
		}
		if x := f.Parameters().At(0).Value; x != 1 {
			t.Errorf("Function left at %g, want 1", x)
		}
	})
}
