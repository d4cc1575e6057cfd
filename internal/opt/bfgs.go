package opt

import (
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// curvatureEps gates the BFGS update on the curvature condition.
	curvatureEps = 3.0e-8
	// activeBound is the relative distance under which a bound is active.
	activeBound = 1e-10
)

// BFGS is the Broyden-Fletcher-Goldfarb-Shanno quasi-Newton method. The step
// is shortened so that no bounded parameter crosses its limit, and its
// components pushing against an active bound are dropped; the function is
// never evaluated outside the constraints.
type BFGS struct {
	Base
	f   function.FirstOrder
	dir *function.Direction

	names  []string
	lo, up []float64
	p      []float64
	grad   []float64
	xi     []float64
	hess   *mat.SymDense
}

// NewBFGS creates a BFGS optimizer over f.
func NewBFGS(f function.FirstOrder) *BFGS {
	o := &BFGS{f: f, dir: function.NewDirection(f)}
	o.setup(o, f, NewFunctionStopCondition(o, DefaultTolerance))
	return o
}

func (o *BFGS) doInit(p *param.List) error {
	n := p.Len()
	o.names = p.Names()
	o.lo = make([]float64, n)
	o.up = make([]float64, n)
	o.p = p.Values()
	o.xi = make([]float64, n)
	for i := 0; i < n; i++ {
		o.lo[i], o.up[i] = math.Inf(-1), math.Inf(1)
		if c := p.At(i).Constraint; c != nil {
			o.lo[i], o.up[i] = c.EffectiveLower(), c.EffectiveUpper()
		}
	}

	o.f.EnableFirstOrderDerivatives(true)
	if err := o.f.SetParameters(p); err != nil {
		return err
	}
	var err error
	if o.grad, err = function.Gradient(o.f, o.names, nil); err != nil {
		return err
	}
	o.hess = identity(n)
	// Rounding in the projected step is absorbed by clamping.
	o.dir.SetConstraintPolicy(function.ConstraintsAuto)
	return nil
}

func identity(n int) *mat.SymDense {
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		h.SetSym(i, i, 1)
	}
	return h
}

func (o *BFGS) doStep() (float64, error) {
	n := len(o.p)
	copy(o.p, o.params.Values())

	if !o.setDirection() {
		o.log.Debug("No feasible descent direction left", "gradient", o.grad)
		o.tolIsReached = true
		return o.currentValue, nil
	}

	o.f.EnableFirstOrderDerivatives(false)
	nb, err := LineSearch(o.dir, o.params, o.xi, o.grad, o.stop.Tolerance(), o.remaining(), o.log)
	o.nbEval += nb
	o.f.EnableFirstOrderDerivatives(true)
	if err != nil {
		return o.currentValue, err
	}

	fv, err := o.evaluate(o.params)
	if err != nil {
		return o.currentValue, err
	}
	if fv > o.currentValue {
		o.log.Warn("Function value increased", "from", o.currentValue, "to", fv)
	}

	dg := make([]float64, n)
	copy(dg, o.grad)
	if _, err := function.Gradient(o.f, o.names, o.grad); err != nil {
		return fv, err
	}
	floats.SubTo(dg, o.grad, dg)

	hdg := mat.NewVecDense(n, nil)
	hdg.MulVec(o.hess, mat.NewVecDense(n, dg))

	fac := floats.Dot(dg, o.xi)
	fae := mat.Dot(mat.NewVecDense(n, dg), hdg)
	sumdg := floats.Dot(dg, dg)
	sumxi := floats.Dot(o.xi, o.xi)
	if fac > math.Sqrt(curvatureEps*sumdg*sumxi) {
		fac = 1 / fac
		fad := 1 / fae
		u := make([]float64, n)
		for i := range u {
			u[i] = fac*o.xi[i] - fad*hdg.AtVec(i)
		}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := o.hess.At(i, j) +
					fac*o.xi[i]*o.xi[j] -
					fad*hdg.AtVec(i)*hdg.AtVec(j) +
					fae*u[i]*u[j]
				o.hess.SetSym(i, j, v)
			}
		}
	}
	return fv, nil
}

// setDirection computes xi = -H·grad, projected on the box. When that is not
// a descent direction it falls back to projected steepest descent. It
// reports false when no feasible descent direction exists.
func (o *BFGS) setDirection() bool {
	n := len(o.p)
	v := mat.NewVecDense(n, o.xi)
	v.MulVec(o.hess, mat.NewVecDense(n, o.grad))
	floats.Scale(-1, o.xi)
	if o.project() && floats.Dot(o.xi, o.grad) < 0 {
		return true
	}

	for i := range o.xi {
		o.xi[i] = -o.grad[i]
	}
	return o.project() && floats.Dot(o.xi, o.grad) < 0
}

// project drops the components of xi pushing against an active bound and
// scales the rest by the largest alpha <= 1 keeping p + alpha·xi inside the
// box, so the direction of the free components is kept. It reports whether
// any movement is left.
func (o *BFGS) project() bool {
	alpha := 1.0
	moving := false
	for i, d := range o.xi {
		room := math.Inf(1)
		switch {
		case d > 0:
			room = o.up[i] - o.p[i]
		case d < 0:
			room = o.p[i] - o.lo[i]
		}
		if math.IsNaN(d) || room <= activeBound*math.Max(1, math.Abs(o.p[i])) {
			o.xi[i] = 0
			continue
		}
		if d != 0 {
			alpha = math.Min(alpha, room/math.Abs(d))
			moving = true
		}
	}
	if alpha < 1 {
		floats.Scale(alpha, o.xi)
	}
	return moving
}

// InverseHessian returns a copy of the current inverse Hessian approximation.
func (o *BFGS) InverseHessian() *mat.SymDense {
	if o.hess == nil {
		return nil
	}
	h := mat.NewSymDense(o.hess.SymmetricDim(), nil)
	h.CopySym(o.hess)
	return h
}
