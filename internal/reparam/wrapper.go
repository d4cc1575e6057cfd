package reparam

import (
	"fmt"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// Wrapper exposes f over unconstrained parameters. Parameters keep their
// names; only their values live in the transformed space.
type Wrapper struct {
	f          function.Function
	original   *param.List
	transforms []Transform
	params     *param.List
}

// New reparametrizes the named parameters of f, or all of them when names is
// empty. Parameters left out keep their values and constraints.
func New(f function.Function, names ...string) (*Wrapper, error) {
	orig := f.Parameters()
	selected := make(map[string]bool, len(names))
	for _, name := range names {
		if !orig.Has(name) {
			return nil, fmt.Errorf("%w: %s", function.ErrUnknownParameter, name)
		}
		selected[name] = true
	}
	w := &Wrapper{
		f:          f,
		original:   orig,
		transforms: make([]Transform, orig.Len()),
		params:     &param.List{},
	}
	for i := 0; i < orig.Len(); i++ {
		p := orig.At(i)
		if len(names) > 0 && !selected[p.Name] {
			w.transforms[i] = Identity{}
			if err := w.params.Add(p); err != nil {
				return nil, err
			}
			continue
		}
		tr := For(p.Constraint)
		w.transforms[i] = tr
		if err := w.params.Add(param.Parameter{Name: p.Name, Value: tr.Transformed(p.Value)}); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// SetParameters takes transformed values and forwards the original ones to
// the wrapped function.
func (w *Wrapper) SetParameters(p *param.List) error {
	next := w.params.Clone()
	if _, err := next.Match(p); err != nil {
		return err
	}
	orig, err := w.pullBack(next)
	if err != nil {
		return err
	}
	if err := w.f.SetParameters(orig); err != nil {
		return err
	}
	w.params = next
	w.original = orig
	return nil
}

// pullBack maps transformed values to original ones, clamped into their constraints.
func (w *Wrapper) pullBack(tp *param.List) (*param.List, error) {
	orig := w.original.Clone()
	for i := 0; i < tp.Len(); i++ {
		x := w.transforms[i].Original(tp.At(i).Value)
		if c := orig.At(i).Constraint; c != nil {
			x = c.Clamp(x)
		}
		if err := orig.SetValue(i, x); err != nil {
			return nil, fmt.Errorf("reparametrized value out of range: %w", err)
		}
	}
	return orig, nil
}

func (w *Wrapper) Parameters() *param.List {
	return w.params.Clone()
}

func (w *Wrapper) Value() float64 {
	return w.f.Value()
}

// OriginalParameters returns the current point in the original space.
func (w *Wrapper) OriginalParameters() *param.List {
	return w.original.Clone()
}

// Transform returns the transform applied to name.
func (w *Wrapper) Transform(name string) (Transform, bool) {
	i := w.params.Index(name)
	if i < 0 {
		return nil, false
	}
	return w.transforms[i], true
}

// Inner returns the wrapped function.
func (w *Wrapper) Inner() function.Function {
	return w.f
}

// Derivable adds chain-rule derivatives to a Wrapper over a derivable function.
type Derivable struct {
	*Wrapper
	f function.FirstOrder
}

// NewDerivable reparametrizes a derivable function. Second order derivatives
// are available when f is a function.SecondOrder.
func NewDerivable(f function.FirstOrder, names ...string) (*Derivable, error) {
	w, err := New(f, names...)
	if err != nil {
		return nil, err
	}
	return &Derivable{Wrapper: w, f: f}, nil
}

func (d *Derivable) EnableFirstOrderDerivatives(yes bool) { d.f.EnableFirstOrderDerivatives(yes) }
func (d *Derivable) FirstOrderDerivativesEnabled() bool   { return d.f.FirstOrderDerivativesEnabled() }

func (d *Derivable) EnableSecondOrderDerivatives(yes bool) {
	if s, ok := d.f.(function.SecondOrder); ok {
		s.EnableSecondOrderDerivatives(yes)
	}
}

func (d *Derivable) SecondOrderDerivativesEnabled() bool {
	s, ok := d.f.(function.SecondOrder)
	return ok && s.SecondOrderDerivativesEnabled()
}

func (d *Derivable) slope(name string) (Transform, float64, error) {
	i := d.params.Index(name)
	if i < 0 {
		return nil, 0, fmt.Errorf("%w: %s", function.ErrUnknownParameter, name)
	}
	return d.transforms[i], d.params.At(i).Value, nil
}

// FirstOrderDerivative returns df/dt = df/dx · dx/dt.
func (d *Derivable) FirstOrderDerivative(name string) (float64, error) {
	tr, t, err := d.slope(name)
	if err != nil {
		return 0, err
	}
	df, err := d.f.FirstOrderDerivative(name)
	if err != nil {
		return 0, err
	}
	return df * tr.D1(t), nil
}

// SecondOrderDerivative returns d²f/dx² · (dx/dt)² + df/dx · d²x/dt².
func (d *Derivable) SecondOrderDerivative(name string) (float64, error) {
	s, ok := d.f.(function.SecondOrder)
	if !ok {
		return 0, function.ErrUnsupported
	}
	tr, t, err := d.slope(name)
	if err != nil {
		return 0, err
	}
	df, err := s.FirstOrderDerivative(name)
	if err != nil {
		return 0, err
	}
	d2f, err := s.SecondOrderDerivative(name)
	if err != nil {
		return 0, err
	}
	d1 := tr.D1(t)
	return d2f*d1*d1 + df*tr.D2(t), nil
}

// SecondOrderCrossDerivative returns d²f/dxdy · dx/dt · dy/du.
func (d *Derivable) SecondOrderCrossDerivative(name1, name2 string) (float64, error) {
	if name1 == name2 {
		return d.SecondOrderDerivative(name1)
	}
	s, ok := d.f.(function.SecondOrder)
	if !ok {
		return 0, function.ErrUnsupported
	}
	tr1, t1, err := d.slope(name1)
	if err != nil {
		return 0, err
	}
	tr2, t2, err := d.slope(name2)
	if err != nil {
		return 0, err
	}
	c, err := s.SecondOrderCrossDerivative(name1, name2)
	if err != nil {
		return 0, err
	}
	return c * tr1.D1(t1) * tr2.D1(t2), nil
}
