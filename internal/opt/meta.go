package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// StageMode tells whether a meta optimizer stage runs a single step or a
// full optimization per outer step.
type StageMode int

const (
	StageStep StageMode = iota
	StageFull
)

func (m StageMode) String() string {
	if m == StageFull {
		return "full"
	}
	return "step"
}

// ParseStageMode parses "step" or "full".
func ParseStageMode(s string) (StageMode, error) {
	switch s {
	case "", "step":
		return StageStep, nil
	case "full":
		return StageFull, nil
	default:
		return StageStep, fmt.Errorf("unknown stage mode: %q", s)
	}
}

// Stage is one sub-optimizer of a MetaOptimizer.
type Stage struct {
	Name      string
	Optimizer Optimizer
	// Params restricts the stage to these parameters; empty means all.
	Params []string
	// Derivatives is the derivative order (0, 1 or 2) enabled on the
	// function while the stage runs.
	Derivatives int
	Mode        StageMode
}

const (
	// DefaultInitialTolerance is the tolerance of the first meta step.
	DefaultInitialTolerance = 0.05
	// DefaultToleranceSteps is the number of steps over which the meta
	// tolerance reaches the stop condition's tolerance.
	DefaultToleranceSteps = 2
)

// MetaOptimizer runs a sequence of optimizers, each on its own subset of
// parameters, at every step. The tolerance handed to the stages tightens
// geometrically from an initial value to the stop condition's tolerance.
type MetaOptimizer struct {
	Base
	stages []Stage
	subs   []*param.List

	initialTol float64
	tolSteps   int
	precision  float64
	stepCount  int
}

// NewMetaOptimizer creates a meta optimizer over f running stages in order.
// Stage optimizers must be built over f or a wrapper forwarding to it.
func NewMetaOptimizer(f function.Function, stages ...Stage) *MetaOptimizer {
	o := &MetaOptimizer{
		stages:     stages,
		initialTol: DefaultInitialTolerance,
		tolSteps:   DefaultToleranceSteps,
	}
	o.setup(o, f, NewFunctionStopCondition(o, DefaultTolerance))
	return o
}

// AddStage appends a stage.
func (o *MetaOptimizer) AddStage(s Stage) {
	o.stages = append(o.stages, s)
}

// Stages returns the configured stages.
func (o *MetaOptimizer) Stages() []Stage {
	return append([]Stage(nil), o.stages...)
}

// SetPrecisionSchedule sets the tolerance of the first step and the number
// of steps taken to reach the final tolerance.
func (o *MetaOptimizer) SetPrecisionSchedule(initial float64, n int) {
	o.initialTol = initial
	o.tolSteps = n
}

// StageTolerance returns the tolerance handed to the stages at step k (1-based).
func (o *MetaOptimizer) StageTolerance(k int) float64 {
	if k > o.tolSteps || o.tolSteps <= 0 {
		return o.stop.Tolerance()
	}
	return o.initialTol * math.Pow(10, float64(k)*o.precision)
}

func (o *MetaOptimizer) doInit(p *param.List) error {
	if len(o.stages) == 0 {
		return fmt.Errorf("meta optimizer has no stage")
	}
	o.subs = make([]*param.List, len(o.stages))
	for i, s := range o.stages {
		if s.Optimizer == nil {
			return fmt.Errorf("stage %q has no optimizer", s.Name)
		}
		names := s.Params
		if len(names) == 0 {
			names = p.Names()
		}
		var kept []string
		for _, name := range names {
			if p.Has(name) {
				kept = append(kept, name)
			}
		}
		if len(kept) == 0 {
			o.log.Warn("Stage has no parameter to optimize", "stage", s.Name)
			continue
		}
		sub, err := p.Subset(kept...)
		if err != nil {
			return err
		}
		o.subs[i] = sub
		if s.Derivatives > 0 && !function.EnableDerivatives(o.fn, s.Derivatives, false) {
			return fmt.Errorf("stage %q: %w: order %d", s.Name, function.ErrUnsupported, s.Derivatives)
		}
		s.Optimizer.SetLogger(o.log)
	}
	o.stepCount = 0
	if o.tolSteps > 0 && o.initialTol > 0 {
		o.precision = (math.Log10(o.stop.Tolerance()) - math.Log10(o.initialTol)) / float64(o.tolSteps)
	}
	return nil
}

func (o *MetaOptimizer) doStep() (float64, error) {
	o.stepCount++
	tol := o.StageTolerance(o.stepCount)
	v := o.currentValue

	for i, s := range o.stages {
		if o.subs[i] == nil {
			continue
		}
		if _, err := o.subs[i].Match(o.params); err != nil {
			return v, err
		}
		if err := o.fn.SetParameters(o.params); err != nil {
			return v, err
		}
		function.EnableDerivatives(o.fn, s.Derivatives, true)

		sv, err := o.runStage(s, o.subs[i], tol)
		function.EnableDerivatives(o.fn, s.Derivatives, false)
		if err != nil {
			return v, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		if _, err := o.params.Match(s.Optimizer.Parameters()); err != nil {
			return v, err
		}
		v = sv
		o.log.Debug("Meta optimizer stage done",
			"stage", s.Name,
			"value", sv,
			"tolerance", tol,
			"evaluations", s.Optimizer.NumEvaluations(),
		)
	}
	return v, nil
}

func (o *MetaOptimizer) runStage(s Stage, p *param.List, tol float64) (float64, error) {
	sub := s.Optimizer
	sub.StopCondition().SetTolerance(tol)
	sub.SetMaxEvaluations(o.remaining())
	if err := sub.Init(p); err != nil {
		return 0, err
	}
	var (
		v   float64
		err error
	)
	if s.Mode == StageFull {
		v, err = sub.Optimize()
	} else {
		v, err = sub.Step()
	}
	o.nbEval += sub.NumEvaluations()
	return v, err
}
