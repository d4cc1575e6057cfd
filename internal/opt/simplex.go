package opt

import (
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

const (
	// simplexStep is the relative displacement of the initial vertices.
	simplexStep = 0.05
	// simplexZeroStep is the displacement used for parameters equal to zero.
	simplexZeroStep = 0.00025
)

// DownhillSimplex is the Nelder-Mead simplex method.
type DownhillSimplex struct {
	Base

	simplex []*param.List
	y       []float64
	psum    []float64

	ihi, inhi, ilo int
}

// NewDownhillSimplex creates a simplex optimizer over f.
func NewDownhillSimplex(f function.Function) *DownhillSimplex {
	o := &DownhillSimplex{}
	o.setup(o, f, &rangeStop{stopBase: newStopBase(DefaultTolerance), rangeOf: o.valueRange})
	return o
}

func (o *DownhillSimplex) doInit(p *param.List) error {
	n := p.Len()
	o.simplex = make([]*param.List, n+1)
	o.y = make([]float64, n+1)
	o.simplex[0] = p.Clone()
	o.y[0] = o.currentValue
	for i := 0; i < n; i++ {
		vertex, err := o.initialVertex(p, i)
		if err != nil {
			return err
		}
		o.simplex[i+1] = vertex
		if o.y[i+1], err = o.evaluate(vertex); err != nil {
			return err
		}
	}
	o.updateSum()
	o.order()
	o.currentValue = o.y[o.ilo]
	return o.params.SetValues(o.simplex[o.ilo].Values())
}

// initialVertex moves parameter i away from p by a few percent, stepping
// backwards when the constraint does not leave room forward.
func (o *DownhillSimplex) initialVertex(p *param.List, i int) (*param.List, error) {
	vertex := p.Clone()
	cur := p.At(i)
	step := simplexStep * cur.Value
	if cur.Value == 0 {
		step = simplexZeroStep
	}
	v := cur.Value + step
	if c := cur.Constraint; c != nil && !c.Contains(v) {
		v = cur.Value - step
		if !c.Contains(v) && o.policy == function.ConstraintsAuto {
			v = c.Clamp(v)
		}
	}
	if err := vertex.SetValue(i, v); err != nil {
		return nil, err
	}
	return vertex, nil
}

func (o *DownhillSimplex) updateSum() {
	n := o.params.Len()
	o.psum = make([]float64, n)
	for _, vertex := range o.simplex {
		for j := 0; j < n; j++ {
			o.psum[j] += vertex.At(j).Value
		}
	}
}

// order finds the lowest, highest and next highest vertices.
func (o *DownhillSimplex) order() {
	o.ilo = 0
	if o.y[0] > o.y[1] {
		o.ihi, o.inhi = 0, 1
	} else {
		o.ihi, o.inhi = 1, 0
	}
	for i, yi := range o.y {
		if yi <= o.y[o.ilo] {
			o.ilo = i
		}
		if yi > o.y[o.ihi] {
			o.inhi = o.ihi
			o.ihi = i
		} else if yi > o.y[o.inhi] && i != o.ihi {
			o.inhi = i
		}
	}
}

func (o *DownhillSimplex) doStep() (float64, error) {
	o.order()

	ytry, err := o.tryMove(-1)
	if err != nil {
		return o.currentValue, err
	}
	switch {
	case ytry <= o.y[o.ilo]:
		// Better than the best point: try going further.
		if _, err := o.tryMove(2); err != nil {
			return o.currentValue, err
		}
	case ytry >= o.y[o.inhi]:
		ysave := o.y[o.ihi]
		if ytry, err = o.tryMove(0.5); err != nil {
			return o.currentValue, err
		}
		if ytry >= ysave {
			if err := o.shrink(); err != nil {
				return o.currentValue, err
			}
		}
	}

	o.order()
	if err := o.params.SetValues(o.simplex[o.ilo].Values()); err != nil {
		return o.currentValue, err
	}
	return o.y[o.ilo], nil
}

// tryMove extrapolates the highest vertex through the opposite face by fac
// and replaces it when the new point is better.
func (o *DownhillSimplex) tryMove(fac float64) (float64, error) {
	n := o.params.Len()
	fac1 := (1 - fac) / float64(n)
	fac2 := fac1 - fac
	ptry := o.simplex[o.ihi].Clone()
	for j := 0; j < n; j++ {
		v := o.psum[j]*fac1 - o.simplex[o.ihi].At(j).Value*fac2
		if c := ptry.At(j).Constraint; c != nil && o.policy == function.ConstraintsAuto {
			v = c.Clamp(v)
		}
		if err := ptry.SetValue(j, v); err != nil {
			return 0, err
		}
	}
	ytry, err := o.evaluate(ptry)
	if err != nil {
		return 0, err
	}
	if ytry < o.y[o.ihi] {
		o.y[o.ihi] = ytry
		for j := 0; j < n; j++ {
			o.psum[j] += ptry.At(j).Value - o.simplex[o.ihi].At(j).Value
		}
		o.simplex[o.ihi] = ptry
	}
	return ytry, nil
}

// shrink contracts every vertex towards the best one.
func (o *DownhillSimplex) shrink() error {
	best := o.simplex[o.ilo]
	for i, vertex := range o.simplex {
		if i == o.ilo {
			continue
		}
		for j := 0; j < vertex.Len(); j++ {
			if err := vertex.SetValue(j, 0.5*(vertex.At(j).Value+best.At(j).Value)); err != nil {
				return err
			}
		}
		v, err := o.evaluate(vertex)
		if err != nil {
			return err
		}
		o.y[i] = v
	}
	o.updateSum()
	return nil
}

// valueRange returns the relative range between the highest and lowest vertices.
func (o *DownhillSimplex) valueRange() float64 {
	if len(o.y) == 0 {
		return math.Inf(1)
	}
	lo, hi := o.y[0], o.y[0]
	for _, v := range o.y[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return relativeRange(hi, lo)
}

// Vertices returns copies of the simplex vertices.
func (o *DownhillSimplex) Vertices() []*param.List {
	out := make([]*param.List, len(o.simplex))
	for i, v := range o.simplex {
		out[i] = v.Clone()
	}
	return out
}
