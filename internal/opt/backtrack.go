package opt

import (
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// alf is the sufficient decrease factor of the backtracking line search.
const alf = 1e-4

// NewtonBacktrack searches along a direction function for a step length
// satisfying the sufficient decrease condition, starting with the full
// Newton step and backtracking with quadratic then cubic models. It expects
// a function of the single parameter function.DirectionParameter, zero at
// the origin of the line.
//
// It is a building block of LineSearch rather than a general optimizer.
type NewtonBacktrack struct {
	Base
	oneDimension
	slope, test float64

	fold        float64
	alam, alam2 float64
	f2          float64
	alamin      float64
}

// NewNewtonBacktrack creates a backtracking search over f. slope is the
// directional derivative at the origin and test the largest relative
// component of the step; the smallest step tried is tolerance/test.
func NewNewtonBacktrack(f function.Function, slope, test float64) *NewtonBacktrack {
	o := &NewtonBacktrack{slope: slope, test: test}
	o.setup(o, f, &backtrackStop{stopBase: newStopBase(DefaultTolerance), o: o})
	return o
}

func (o *NewtonBacktrack) doInit(p *param.List) error {
	o.fold = o.currentValue
	o.alam = 1
	o.alam2, o.f2 = 0, 0
	o.alamin = o.stop.Tolerance() / math.Max(o.test, tiny)
	return nil
}

func (o *NewtonBacktrack) doStep() (float64, error) {
	if o.alam < o.alamin {
		return o.giveUp()
	}
	fv, err := o.scalarAt(o.alam)
	if err != nil {
		return o.currentValue, err
	}
	if err := o.params.SetValue(0, o.alam); err != nil {
		return o.currentValue, err
	}
	if fv <= o.fold+alf*o.alam*o.slope {
		o.tolIsReached = true
		return fv, nil
	}

	var tmplam float64
	if o.alam == 1 {
		tmplam = -o.slope / (2 * (fv - o.fold - o.slope))
	} else {
		rhs1 := fv - o.fold - o.alam*o.slope
		rhs2 := o.f2 - o.fold - o.alam2*o.slope
		a := (rhs1/(o.alam*o.alam) - rhs2/(o.alam2*o.alam2)) / (o.alam - o.alam2)
		b := (-o.alam2*rhs1/(o.alam*o.alam) + o.alam*rhs2/(o.alam2*o.alam2)) / (o.alam - o.alam2)
		if a == 0 {
			tmplam = -o.slope / (2 * b)
		} else {
			disc := b*b - 3*a*o.slope
			switch {
			case disc < 0:
				tmplam = 0.5 * o.alam
			case b <= 0:
				tmplam = (-b + math.Sqrt(disc)) / (3 * a)
			default:
				tmplam = -o.slope / (b + math.Sqrt(disc))
			}
		}
		tmplam = math.Min(tmplam, 0.5*o.alam)
	}
	if math.IsNaN(tmplam) {
		tmplam = 0.5 * o.alam
	}
	o.alam2, o.f2 = o.alam, fv
	o.alam = math.Max(tmplam, 0.1*o.alam)
	if o.alam < o.alamin {
		return o.giveUp()
	}
	return fv, nil
}

// giveUp returns to the origin of the line.
func (o *NewtonBacktrack) giveUp() (float64, error) {
	o.log.Debug("Backtracking reached the smallest step, staying at the origin",
		"step", o.alam, "min_step", o.alamin)
	o.tolIsReached = true
	if err := o.params.SetValue(0, 0); err != nil {
		return o.currentValue, err
	}
	return o.fold, nil
}

// backtrackStop is reached once the step length falls below its minimum.
type backtrackStop struct {
	stopBase
	o *NewtonBacktrack
}

func (s *backtrackStop) Init() { s.reset() }

func (s *backtrackStop) IsToleranceReached() bool {
	if s.burningIn() {
		return false
	}
	return s.o.alam < s.o.alamin
}

// CurrentTolerance returns the next step length to try.
func (s *backtrackStop) CurrentTolerance() float64 { return s.o.alam }
