package opt

import (
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

const (
	goldenR = 0.61803399
	goldenC = 1 - goldenR
)

// GoldenSection minimizes a function of one parameter by keeping four points
// spaced at the golden ratio and discarding the worse outer subinterval.
type GoldenSection struct {
	Base
	oneDimension
	bracketing

	x0, x1, x2, x3 float64
	f1, f2         float64
}

// NewGoldenSection creates a golden section optimizer over f. Call
// SetInitialInterval before Init.
func NewGoldenSection(f function.Function) *GoldenSection {
	o := &GoldenSection{}
	o.setup(o, f, &goldenStop{stopBase: newStopBase(DefaultTolerance), o: o})
	return o
}

func (o *GoldenSection) doInit(p *param.List) error {
	br, err := o.bracket(o.scalarAt)
	if err != nil {
		return err
	}
	a, b, c := br.A.X, br.B.X, br.C.X
	o.x0, o.x3 = a, c
	if math.Abs(c-b) > math.Abs(b-a) {
		o.x1 = b
		o.x2 = b + goldenC*(c-b)
		o.f1 = br.B.F
		if o.f2, err = o.scalarAt(o.x2); err != nil {
			return err
		}
	} else {
		o.x2 = b
		o.x1 = b - goldenC*(b-a)
		o.f2 = br.B.F
		if o.f1, err = o.scalarAt(o.x1); err != nil {
			return err
		}
	}
	x, fx := o.best()
	o.currentValue = fx
	return o.setScalar(x)
}

func (o *GoldenSection) reseed(p param.Parameter) {
	o.reseedWithin(p, math.Min(o.x0, o.x3), math.Max(o.x0, o.x3))
}

func (o *GoldenSection) doStep() (float64, error) {
	var err error
	if o.f2 < o.f1 {
		o.x0, o.x1 = o.x1, o.x2
		o.x2 = goldenR*o.x2 + goldenC*o.x3
		o.f1 = o.f2
		o.f2, err = o.scalarAt(o.x2)
	} else {
		o.x3, o.x2 = o.x2, o.x1
		o.x1 = goldenR*o.x1 + goldenC*o.x0
		o.f2 = o.f1
		o.f1, err = o.scalarAt(o.x1)
	}
	if err != nil {
		return o.currentValue, err
	}
	x, fx := o.best()
	if err := o.setScalar(x); err != nil {
		return o.currentValue, err
	}
	return fx, nil
}

func (o *GoldenSection) best() (float64, float64) {
	if o.f1 < o.f2 {
		return o.x1, o.f1
	}
	return o.x2, o.f2
}

// goldenStop compares |x3 - x0| with tol·(|x1| + |x2|).
type goldenStop struct {
	stopBase
	o *GoldenSection
}

func (s *goldenStop) Init() { s.reset() }

func (s *goldenStop) IsToleranceReached() bool {
	o := s.o
	reached := math.Abs(o.x3-o.x0) <= s.tol*(math.Abs(o.x1)+math.Abs(o.x2))
	if s.burningIn() {
		return false
	}
	return reached
}

// CurrentTolerance returns |x3 - x0| / (|x1| + |x2|).
func (s *goldenStop) CurrentTolerance() float64 {
	o := s.o
	return math.Abs(o.x3-o.x0) / (math.Abs(o.x1) + math.Abs(o.x2))
}
