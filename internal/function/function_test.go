package function

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/numopt/internal/param"
)

func sumSquares(p *param.List) float64 {
	var sum float64
	for _, v := range p.Values() {
		sum += v * v
	}
	return sum
}

func TestSimple_ValueIsMemoized(t *testing.T) {
	f := New(param.MustList(param.Parameter{Name: "x", Value: 3}), sumSquares)

	v1 := f.Value()
	v2 := f.Value()
	if v1 != v2 || v1 != 9 {
		t.Fatalf("Expected 9 twice, got %g and %g", v1, v2)
	}
	if f.Evaluations() != 1 {
		t.Errorf("Expected 1 evaluation, got %d", f.Evaluations())
	}

	// Same point again: no recomputation
	if err := f.SetParameters(param.MustList(param.Parameter{Name: "x", Value: 3})); err != nil {
		t.Fatal(err)
	}
	f.Value()
	if f.Evaluations() != 1 {
		t.Errorf("Expected memoized value, got %d evaluations", f.Evaluations())
	}

	if _, err := Eval(f, param.MustList(param.Parameter{Name: "x", Value: 2})); err != nil {
		t.Fatal(err)
	}
	if f.Evaluations() != 2 {
		t.Errorf("Expected 2 evaluations, got %d", f.Evaluations())
	}
}

func TestSimple_RejectsUnknownParameter(t *testing.T) {
	f := New(param.MustList(param.Parameter{Name: "x"}), sumSquares)
	err := f.SetParameters(param.MustList(param.Parameter{Name: "y"}))
	if !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("Expected ErrUnknownParameter, got %v", err)
	}
}

func TestDerivable_Capabilities(t *testing.T) {
	p := param.MustList(param.Parameter{Name: "x", Value: 2}, param.Parameter{Name: "y", Value: -1})
	first := func(p *param.List, name string) float64 {
		v, _ := p.Value(name)
		return 2 * v
	}
	d := NewDerivable(p, sumSquares, first, nil)

	var f Function = d
	if _, ok := f.(FirstOrder); !ok {
		t.Fatal("Derivable must be FirstOrder")
	}

	g, err := Gradient(d, []string{"x", "y"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g[0] != 4 || g[1] != -2 {
		t.Errorf("Gradient = %v, expected [4 -2]", g)
	}

	if _, err := d.SecondOrderDerivative("x"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
	if _, err := d.FirstOrderDerivative("z"); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("Expected ErrUnknownParameter, got %v", err)
	}

	if !EnableDerivatives(d, 1, true) || !d.FirstOrderDerivativesEnabled() {
		t.Error("Expected first order derivatives enabled")
	}
	if EnableDerivatives(New(p, sumSquares), 1, true) {
		t.Error("Simple function must not report derivative support")
	}
}

func TestDirection_ProjectsAndClamps(t *testing.T) {
	p := param.MustList(
		param.Parameter{Name: "x", Value: 1},
		param.Parameter{Name: "z", Value: 1, Constraint: param.Closed(0, 2)},
	)
	f := New(p, sumSquares)
	d := NewDirection(f)
	d.Init(p)
	if err := d.SetDirection([]float64{1, 1}); err != nil {
		t.Fatal(err)
	}

	alpha := param.MustList(param.Parameter{Name: DirectionParameter, Value: 3})
	v, err := Eval(d, alpha)
	if err != nil {
		t.Fatal(err)
	}
	// x = 4, z clamped to 2
	if math.Abs(v-20) > 1e-12 {
		t.Errorf("Value = %g, expected 20", v)
	}

	d.SetConstraintPolicy(ConstraintsKeep)
	if _, err := Eval(d, alpha); !param.IsConstraintError(err) {
		t.Errorf("Expected constraint error with keep policy, got %v", err)
	}

	if err := d.SetDirection([]float64{1}); err == nil {
		t.Error("Expected dimension error")
	}
}

func TestParseConstraintPolicy(t *testing.T) {
	for s, want := range map[string]ConstraintPolicy{"": ConstraintsAuto, "auto": ConstraintsAuto, "keep": ConstraintsKeep} {
		got, err := ParseConstraintPolicy(s)
		if err != nil || got != want {
			t.Errorf("ParseConstraintPolicy(%q) = %v, %v; want %v", s, got, err, want)
		}
		if s != "" && got.String() != s {
			t.Errorf("String() = %q, want %q", got.String(), s)
		}
	}
	if _, err := ParseConstraintPolicy("clip"); err == nil {
		t.Error("Expected an error for an unknown policy")
	}
}
