package opt

import (
	"errors"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// ErrNoInterval is returned by Init when no initial interval was set.
var ErrNoInterval = errors.New("initial interval not set")

const (
	// cgold is the golden section ratio used by Brent's fallback steps.
	cgold = 0.3819660
	// zeps keeps Brent's tolerance meaningful at zero.
	zeps = 1.0e-10
)

// BracketType selects how a one-dimensional optimizer brackets its minimum.
type BracketType int

const (
	// BracketOutward expands downhill from the two initial points.
	BracketOutward BracketType = iota
	// BracketInward samples the inside of the initial interval, which is
	// then treated as a hard domain.
	BracketInward
)

// DefaultInwardPoints is the number of interior samples of BracketInward.
const DefaultInwardPoints = 10

// bracketing holds the interval setup shared by Brent and GoldenSection.
type bracketing struct {
	a, b        float64
	intervalSet bool
	kind        BracketType
	inward      int

	// around is where the next bracketing starts after a resynchronization;
	// inward bracketing then samples [lo, hi].
	around, aroundStep float64
	lo, hi             float64
	reseeded           bool
}

// reseeder is implemented by optimizers that must restart their bracketing
// at the resynchronized point.
type reseeder interface {
	reseed(p param.Parameter)
}

// reseedWithin makes the next bracketing start at p instead of the initial
// interval. Outward bracketing seeds [x, x+axisSeed] towards the inside of
// the constraint. Inward bracketing adds x to its samples and samples
// (lo, hi) when x lies inside it, the initial range otherwise.
func (s *bracketing) reseedWithin(p param.Parameter, lo, hi float64) {
	s.around = p.Value
	s.aroundStep = axisSeed
	if c := p.Constraint; c != nil && !c.Contains(p.Value+axisSeed) {
		s.aroundStep = -axisSeed
	}
	s.lo, s.hi = s.a, s.b
	if lo < p.Value && p.Value < hi {
		s.lo, s.hi = lo, hi
	}
	s.reseeded = true
}

func (s *bracketing) bracket(f ScalarFunc) (Bracket, error) {
	if !s.intervalSet {
		return Bracket{}, ErrNoInterval
	}
	reseeded := s.reseeded
	s.reseeded = false
	if s.kind == BracketInward {
		n := s.inward
		if n <= 0 {
			n = DefaultInwardPoints
		}
		if reseeded {
			return inwardBracket(s.lo, s.hi, f, n, s.around)
		}
		return InwardBracketMinimum(s.a, s.b, f, n)
	}
	if reseeded {
		return BracketMinimum(s.around, s.around+s.aroundStep, f)
	}
	return BracketMinimum(s.a, s.b, f)
}

// Brent minimizes a function of one parameter by parabolic interpolation,
// falling back to golden section steps.
type Brent struct {
	Base
	oneDimension
	bracketing

	a, b, d, e float64
	v, w, x    float64
	fv, fw, fx float64
}

// NewBrent creates a Brent optimizer over f. Call SetInitialInterval before Init.
func NewBrent(f function.Function) *Brent {
	o := &Brent{}
	o.setup(o, f, &brentStop{stopBase: newStopBase(DefaultTolerance), o: o})
	return o
}

func (o *Brent) doInit(p *param.List) error {
	br, err := o.bracket(o.scalarAt)
	if err != nil {
		return err
	}
	o.a = math.Min(br.A.X, br.C.X)
	o.b = math.Max(br.A.X, br.C.X)
	o.x, o.w, o.v = br.B.X, br.B.X, br.B.X
	o.fx, o.fw, o.fv = br.B.F, br.B.F, br.B.F
	o.d, o.e = 0, 0
	o.currentValue = o.fx
	return o.setScalar(o.x)
}

func (o *Brent) reseed(p param.Parameter) { o.reseedWithin(p, o.a, o.b) }

func (o *Brent) doStep() (float64, error) {
	tol1 := o.stop.Tolerance()*math.Abs(o.x) + zeps
	tol2 := 2 * tol1
	xm := 0.5 * (o.a + o.b)

	if math.Abs(o.e) > tol1 {
		r := (o.x - o.w) * (o.fx - o.fv)
		q := (o.x - o.v) * (o.fx - o.fw)
		p := (o.x-o.v)*q - (o.x-o.w)*r
		q = 2 * (q - r)
		if q > 0 {
			p = -p
		}
		q = math.Abs(q)
		etemp := o.e
		o.e = o.d
		if math.Abs(p) >= math.Abs(0.5*q*etemp) || p <= q*(o.a-o.x) || p >= q*(o.b-o.x) {
			o.goldenStep(xm)
		} else {
			o.d = p / q
			u := o.x + o.d
			if u-o.a < tol2 || o.b-u < tol2 {
				o.d = math.Copysign(tol1, xm-o.x)
			}
		}
	} else {
		o.goldenStep(xm)
	}

	u := o.x + math.Copysign(tol1, o.d)
	if math.Abs(o.d) >= tol1 {
		u = o.x + o.d
	}
	fu, err := o.scalarAt(u)
	if err != nil {
		return o.fx, err
	}

	if fu <= o.fx {
		if u >= o.x {
			o.a = o.x
		} else {
			o.b = o.x
		}
		o.v, o.w, o.x = o.w, o.x, u
		o.fv, o.fw, o.fx = o.fw, o.fx, fu
	} else {
		if u < o.x {
			o.a = u
		} else {
			o.b = u
		}
		if fu <= o.fw || o.w == o.x {
			o.v, o.w = o.w, u
			o.fv, o.fw = o.fw, fu
		} else if fu <= o.fv || o.v == o.x || o.v == o.w {
			o.v = u
			o.fv = fu
		}
	}
	if err := o.setScalar(o.x); err != nil {
		return o.fx, err
	}
	return o.fx, nil
}

func (o *Brent) goldenStep(xm float64) {
	if o.x >= xm {
		o.e = o.a - o.x
	} else {
		o.e = o.b - o.x
	}
	o.d = cgold * o.e
}

// Interval returns the current bracketing interval.
func (o *Brent) Interval() (a, b float64) { return o.a, o.b }

// brentStop is reached when x is within the tolerance of the interval middle.
type brentStop struct {
	stopBase
	o *Brent
}

func (s *brentStop) Init() { s.reset() }

func (s *brentStop) IsToleranceReached() bool {
	if s.burningIn() {
		return false
	}
	return s.CurrentTolerance() <= 0
}

// CurrentTolerance returns |x - xm| - (2·tol1 - (b-a)/2); the condition is
// reached when it is not positive.
func (s *brentStop) CurrentTolerance() float64 {
	o := s.o
	tol1 := s.tol*math.Abs(o.x) + zeps
	xm := 0.5 * (o.a + o.b)
	return math.Abs(o.x-xm) - (2*tol1 - 0.5*(o.b-o.a))
}
