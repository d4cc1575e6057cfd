package objective

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/numdiff"
	"github.com/cwbudde/numopt/internal/param"
)

func TestNames(t *testing.T) {
	want := []string{"cossin", "jc69", "rosenbrock", "sphere"}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
		if d, err := Describe(want[i]); err != nil || d == "" {
			t.Errorf("Describe(%s) = %q, %v", want[i], d, err)
		}
	}
}

func TestMinima(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		point []float64
		want  float64
	}{
		{"sphere", nil, []float64{0, 0, 0}, 0},
		{"sphere", Options{"center": 2}, []float64{2, 2}, 0},
		{"cossin", nil, []float64{math.Pi, -math.Pi / 2}, -2},
		{"rosenbrock", nil, []float64{1, 1, 1, 1}, 0},
		{"jc69", nil, []float64{JC69Distance(90, 10)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Vector(tt.name, len(tt.point), tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if tt.name == "jc69" {
				// The likelihood has no closed-form value; check stationarity.
				if g := jc69Grad(tt.point[0], Options{"same": 90, "diff": 10}); math.Abs(g) > 1e-9 {
					t.Errorf("Gradient at the ML distance = %g", g)
				}
				return
			}
			if got := f(tt.point); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("f(%v) = %g, want %g", tt.point, got, tt.want)
			}
		})
	}
}

func TestDerivativesMatchFiniteDifferences(t *testing.T) {
	tests := []struct {
		name  string
		point []float64
	}{
		{"sphere", []float64{1.5, -0.3, 2}},
		{"cossin", []float64{0.7, -1.1}},
		{"rosenbrock", []float64{-1.2, 1, 0.4}},
		{"jc69", []float64{0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DefaultParameters(tt.name, len(tt.point))
			if err != nil {
				t.Fatal(err)
			}
			if err := p.SetValues(tt.point); err != nil {
				t.Fatal(err)
			}
			f, err := New(tt.name, p, nil)
			if err != nil {
				t.Fatal(err)
			}
			nd := numdiff.NewThreePoints(function.New(p, func(q *param.List) float64 {
				g, _ := Vector(tt.name, q.Len(), nil)
				return g(q.Values())
			}))
			nd.SetStep(1e-5)
			nd.EnableCrossDerivatives(true)
			nd.EnableFirstOrderDerivatives(true)
			nd.EnableSecondOrderDerivatives(true)
			if err := nd.SetParameters(p); err != nil {
				t.Fatal(err)
			}

			names := p.Names()
			for _, a := range names {
				want, err := nd.FirstOrderDerivative(a)
				if err != nil {
					t.Fatal(err)
				}
				got, _ := f.FirstOrderDerivative(a)
				if !near(got, want, 1e-5) {
					t.Errorf("df/d%s = %g, numerical %g", a, got, want)
				}
				for _, b := range names {
					want, err := nd.SecondOrderCrossDerivative(a, b)
					if err != nil {
						t.Fatal(err)
					}
					got, _ := f.SecondOrderCrossDerivative(a, b)
					if !near(got, want, 1e-3) {
						t.Errorf("d2f/d%sd%s = %g, numerical %g", a, b, got, want)
					}
				}
			}
		})
	}
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func TestDimensionsAndOptions(t *testing.T) {
	if _, err := Vector("cossin", 3, nil); err == nil {
		t.Error("Expected an error for 3 parameters on cossin")
	}
	if _, err := Vector("rosenbrock", 1, nil); err == nil {
		t.Error("Expected an error for 1 parameter on rosenbrock")
	}
	if _, err := Vector("sphere", 2, Options{"radius": 1}); err == nil {
		t.Error("Expected an error for an unknown option")
	}
	if _, err := DefaultParameters("himmelblau", 2); !errors.Is(err, ErrUnknown) {
		t.Errorf("Expected ErrUnknown, got %v", err)
	}

	p, err := DefaultParameters("rosenbrock", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 || p.At(0).Value != -1.2 || p.At(1).Value != 1 {
		t.Errorf("Default Rosenbrock start = %v", p)
	}
	p, err = DefaultParameters("jc69", 5)
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 || p.At(0).Name != "t" || p.At(0).Constraint == nil {
		t.Errorf("Default JC69 parameters = %v", p)
	}
}

func TestJC69(t *testing.T) {
	if d := JC69Distance(1, 3); !math.IsInf(d, 1) {
		t.Errorf("Saturated distance = %g, want +Inf", d)
	}
	f, err := Vector("jc69", 1, Options{"same": 50, "diff": 50})
	if err != nil {
		t.Fatal(err)
	}
	best := JC69Distance(50, 50)
	v := f([]float64{best})
	if v >= f([]float64{best / 2}) || v >= f([]float64{2 * best}) {
		t.Errorf("Distance %g is not a minimum", best)
	}
}
