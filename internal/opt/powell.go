package opt

import (
	"errors"
	"fmt"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
	"gonum.org/v1/gonum/mat"
)

// ErrValueIncreased is returned by Powell when a line minimization ends
// above its starting value.
var ErrValueIncreased = errors.New("line minimization increased the function value")

// Powell is Powell's direction set method. The direction set starts with
// the coordinate axes; after each sweep the direction of largest decrease
// may be replaced by the net displacement of the sweep.
type Powell struct {
	Base

	dir      *function.Direction
	xi       *mat.Dense
	pt       *param.List
	fp, fret float64
}

// NewPowell creates a Powell optimizer over f.
func NewPowell(f function.Function) *Powell {
	o := &Powell{dir: function.NewDirection(f)}
	o.setup(o, f, &rangeStop{stopBase: newStopBase(DefaultTolerance), rangeOf: o.valueRange})
	return o
}

func (o *Powell) doInit(p *param.List) error {
	n := p.Len()
	o.xi = mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		o.xi.Set(i, i, 1)
	}
	o.pt = p.Clone()
	o.fret = o.currentValue
	o.fp = o.currentValue
	o.dir.SetConstraintPolicy(o.policy)
	return nil
}

func (o *Powell) doStep() (float64, error) {
	n := o.params.Len()
	o.fp = o.fret
	ibig := 0
	del := 0.0
	xit := make([]float64, n)

	for i := 0; i < n; i++ {
		mat.Col(xit, i, o.xi)
		fptt := o.fret
		if err := o.minimizeAlong(xit); err != nil {
			return o.fret, err
		}
		if o.fret > fptt {
			return o.fret, fmt.Errorf("%w: direction %d went from %g to %g", ErrValueIncreased, i, fptt, o.fret)
		}
		if fptt-o.fret > del {
			del = fptt - o.fret
			ibig = i
		}
	}

	// Extrapolated point and net displacement of the sweep.
	ptt := o.params.Clone()
	for j := 0; j < n; j++ {
		cur, start := o.params.At(j).Value, o.pt.At(j).Value
		v := 2*cur - start
		if c := ptt.At(j).Constraint; c != nil && o.policy == function.ConstraintsAuto {
			v = c.Clamp(v)
		}
		if err := ptt.SetValue(j, v); err != nil {
			return o.fret, err
		}
		xit[j] = cur - start
	}
	o.pt = o.params.Clone()

	fptt, err := o.evaluate(ptt)
	if err != nil {
		return o.fret, err
	}
	if fptt < o.fp {
		d1 := o.fp - o.fret - del
		d2 := o.fp - fptt
		t := 2*(o.fp-2*o.fret+fptt)*d1*d1 - del*d2*d2
		if t < 0 {
			before := o.fret
			if err := o.minimizeAlong(xit); err != nil {
				return o.fret, err
			}
			if o.fret > before {
				return o.fret, fmt.Errorf("%w: extrapolated direction went from %g to %g", ErrValueIncreased, before, o.fret)
			}
			o.xi.SetCol(ibig, mat.Col(nil, n-1, o.xi))
			o.xi.SetCol(n-1, xit)
		}
	}
	return o.fret, nil
}

// minimizeAlong runs a line minimization from the working point along xi and
// updates the working value.
func (o *Powell) minimizeAlong(xi []float64) error {
	nb, err := LineMinimization(o.dir, o.params, xi, o.stop.Tolerance(), o.remaining(), o.log)
	o.nbEval += nb
	if err != nil {
		return err
	}
	o.fret, err = o.evaluate(o.params)
	return err
}

func (o *Powell) valueRange() float64 {
	return relativeRange(o.fp, o.fret)
}

// Directions returns a copy of the current direction set, one direction per column.
func (o *Powell) Directions() *mat.Dense {
	if o.xi == nil {
		return nil
	}
	return mat.DenseCopyOf(o.xi)
}
