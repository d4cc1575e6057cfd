package opt

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
	"gonum.org/v1/gonum/floats"
)

// lineSeed is the second point of the initial bracket of LineMinimization.
const lineSeed = 0.01

// LineMinimization minimizes dir's function from params along xi with
// Brent's method. On return params holds the minimum and xi the
// displacement actually performed. It returns the number of evaluations.
func LineMinimization(dir *function.Direction, params *param.List, xi []float64, tol float64, maxEval int, log *slog.Logger) (int, error) {
	dir.Init(params)
	if err := dir.SetDirection(xi); err != nil {
		return 0, err
	}
	bod := NewBrent(dir)
	bod.SetLogger(log)
	bod.StopCondition().SetTolerance(tol)
	bod.SetMaxEvaluations(maxEval)
	bod.SetInitialInterval(0, lineSeed)
	if err := bod.Init(param.MustList(param.Parameter{Name: function.DirectionParameter})); err != nil {
		return bod.NumEvaluations(), fmt.Errorf("line minimization: %w", err)
	}
	if _, err := bod.Optimize(); err != nil {
		return bod.NumEvaluations(), fmt.Errorf("line minimization: %w", err)
	}
	return bod.NumEvaluations(), moveAlong(dir, params, xi, bod.Parameters().At(0).Value)
}

// LineSearch backtracks from the full step params + xi until the function
// decreases sufficiently. grad is the gradient at params; a direction that
// is not a descent direction leaves params unchanged. It returns the number
// of evaluations.
func LineSearch(dir *function.Direction, params *param.List, xi, grad []float64, tol float64, maxEval int, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	slope := floats.Dot(grad, xi)
	if slope >= 0 || math.IsNaN(slope) {
		log.Warn("Line search direction is not a descent direction, no move performed", "slope", slope)
		for i := range xi {
			xi[i] = 0
		}
		return 0, nil
	}
	test := 0.0
	for i := 0; i < params.Len(); i++ {
		test = math.Max(test, math.Abs(xi[i])/math.Max(math.Abs(params.At(i).Value), 1))
	}

	dir.Init(params)
	if err := dir.SetDirection(xi); err != nil {
		return 0, err
	}
	nbt := NewNewtonBacktrack(dir, slope, test)
	nbt.SetLogger(log)
	nbt.StopCondition().SetTolerance(tol)
	nbt.SetMaxEvaluations(maxEval)
	if err := nbt.Init(param.MustList(param.Parameter{Name: function.DirectionParameter})); err != nil {
		return nbt.NumEvaluations(), fmt.Errorf("line search: %w", err)
	}
	fold := nbt.Value()
	v, err := nbt.Optimize()
	if err != nil {
		return nbt.NumEvaluations(), fmt.Errorf("line search: %w", err)
	}
	alpha := nbt.Parameters().At(0).Value
	if v > fold {
		alpha = 0
	}
	return nbt.NumEvaluations(), moveAlong(dir, params, xi, alpha)
}

// moveAlong sets params to the point of dir at alpha and xi to the
// displacement from the origin.
func moveAlong(dir *function.Direction, params *param.List, xi []float64, alpha float64) error {
	pt, err := dir.PointAt(alpha)
	if err != nil {
		return err
	}
	for i := 0; i < params.Len(); i++ {
		xi[i] = pt.At(i).Value - params.At(i).Value
	}
	return params.SetValues(pt.Values())
}
