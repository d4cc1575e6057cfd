package function

import (
	"errors"
	"fmt"

	"github.com/cwbudde/numopt/internal/param"
)

// ConstraintPolicy decides what happens when a probe leaves a parameter's constraint.
type ConstraintPolicy int

const (
	// ConstraintsAuto moves the probe to the closest admissible value.
	ConstraintsAuto ConstraintPolicy = iota
	// ConstraintsKeep reports the violation as an error.
	ConstraintsKeep
)

func (cp ConstraintPolicy) String() string {
	switch cp {
	case ConstraintsAuto:
		return "auto"
	case ConstraintsKeep:
		return "keep"
	default:
		return fmt.Sprintf("ConstraintPolicy(%d)", int(cp))
	}
}

// ParseConstraintPolicy maps "auto" and "keep" to a ConstraintPolicy.
func ParseConstraintPolicy(s string) (ConstraintPolicy, error) {
	switch s {
	case "", "auto":
		return ConstraintsAuto, nil
	case "keep":
		return ConstraintsKeep, nil
	default:
		return ConstraintsAuto, fmt.Errorf("unknown constraint policy: %q", s)
	}
}

// DirectionParameter is the name of the single parameter of a Direction.
const DirectionParameter = "alpha"

// Direction projects an n-dimensional function onto the line p0 + alpha·xi.
type Direction struct {
	f      Function
	p0     *param.List
	point  *param.List
	xi     []float64
	alpha  *param.List
	policy ConstraintPolicy
	evals  int
}

// NewDirection creates a line function over f. Call Init and SetDirection before use.
func NewDirection(f Function) *Direction {
	return &Direction{
		f:     f,
		alpha: param.MustList(param.Parameter{Name: DirectionParameter}),
	}
}

// SetConstraintPolicy sets how points outside the constraints are handled.
func (d *Direction) SetConstraintPolicy(cp ConstraintPolicy) {
	d.policy = cp
}

// Init sets the origin of the line.
func (d *Direction) Init(p *param.List) {
	d.p0 = p.Clone()
	d.point = p.Clone()
	_ = d.alpha.SetValue(0, 0)
}

// SetDirection sets the direction vector; it must have one entry per origin parameter.
func (d *Direction) SetDirection(xi []float64) error {
	if d.p0 == nil {
		return errors.New("direction origin not initialized")
	}
	if len(xi) != d.p0.Len() {
		return fmt.Errorf("direction has %d components, expected %d", len(xi), d.p0.Len())
	}
	d.xi = append(d.xi[:0], xi...)
	return nil
}

// SetParameters moves to p0 + alpha·xi, where alpha is read from p.
func (d *Direction) SetParameters(p *param.List) error {
	alpha, err := p.Value(DirectionParameter)
	if err != nil {
		return err
	}
	pt, err := d.PointAt(alpha)
	if err != nil {
		return err
	}
	if err := d.f.SetParameters(pt); err != nil {
		return err
	}
	d.point = pt
	d.evals++
	return d.alpha.SetValue(0, alpha)
}

// PointAt returns p0 + alpha·xi, handled according to the constraint policy.
func (d *Direction) PointAt(alpha float64) (*param.List, error) {
	pt := d.p0.Clone()
	for i := 0; i < pt.Len(); i++ {
		p := pt.At(i)
		v := p.Value + alpha*d.xi[i]
		if d.policy == ConstraintsAuto && p.Constraint != nil {
			v = p.Constraint.Clamp(v)
		}
		if err := pt.SetValue(i, v); err != nil {
			return nil, err
		}
	}
	return pt, nil
}

func (d *Direction) Parameters() *param.List {
	return d.alpha.Clone()
}

func (d *Direction) Value() float64 {
	return d.f.Value()
}

// Point returns a copy of the last n-dimensional point set on the wrapped function.
func (d *Direction) Point() *param.List {
	return d.point.Clone()
}

// Origin returns a copy of p0.
func (d *Direction) Origin() *param.List {
	return d.p0.Clone()
}

// Function returns the wrapped function.
func (d *Direction) Function() Function {
	return d.f
}

// Evaluations counts the points set since creation.
func (d *Direction) Evaluations() int {
	return d.evals
}
