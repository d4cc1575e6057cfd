// Package problem assembles an objective, its derivatives, an optional
// reparametrization and an optimizer from a configuration, and runs it.
package problem

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/numopt/internal/config"
	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/numdiff"
	"github.com/cwbudde/numopt/internal/objective"
	"github.com/cwbudde/numopt/internal/opt"
	"github.com/cwbudde/numopt/internal/param"
	"github.com/cwbudde/numopt/internal/reparam"
)

// seedWidth is the width of the default initial interval of bracketing optimizers.
const seedWidth = 0.01

// Result holds the output of an optimization run
type Result struct {
	Objective string
	Optimizer string
	// Parameters are the final values in the objective's own space.
	Parameters   *param.List
	InitialValue float64
	Value        float64
	Evaluations  int
	Steps        int
	Converged    bool
	Elapsed      time.Duration
}

// Problem is a configured optimization problem.
type Problem struct {
	cfg       *config.Config
	log       *slog.Logger
	listeners []opt.Listener
}

// New creates a problem from a validated configuration.
func New(cfg *config.Config, log *slog.Logger) *Problem {
	if log == nil {
		log = slog.Default()
	}
	return &Problem{cfg: cfg, log: log}
}

// AddListener registers a listener on the optimizer of every Solve.
func (p *Problem) AddListener(l opt.Listener) {
	p.listeners = append(p.listeners, l)
}

// Setup is a built problem, ready to run.
type Setup struct {
	Optimizer opt.Optimizer
	// Start is the initial point in the optimizer's space.
	Start *param.List
	// Function is the function the optimizer works on.
	Function function.Function
	wrapper  *reparam.Wrapper
}

// Original returns the optimizer's point in the objective's own space.
func (s *Setup) Original() *param.List {
	if s.wrapper != nil {
		return s.wrapper.OriginalParameters()
	}
	return s.Optimizer.Parameters()
}

// Build assembles the objective, derivatives, reparametrization and
// optimizer. Box problems are not built; Solve runs them directly.
func (p *Problem) Build() (*Setup, error) {
	cfg := p.cfg
	if cfg.Box != nil {
		return nil, errors.New("box problems have no parameter list to build")
	}

	start, err := p.startingPoint()
	if err != nil {
		return nil, err
	}
	obj, err := objective.New(cfg.Objective.Name, start, cfg.Objective.Options)
	if err != nil {
		return nil, err
	}

	var fn function.Function = obj
	if cfg.Derivatives.Method != config.AnalyticDerivatives {
		m, err := numdiff.ParseMethod(cfg.Derivatives.Method)
		if err != nil {
			return nil, err
		}
		w, err := numdiff.New(m, obj.Simple)
		if err != nil {
			return nil, err
		}
		if cfg.Derivatives.Step > 0 {
			w.SetStep(cfg.Derivatives.Step)
		}
		if tp, ok := w.(*numdiff.ThreePointsDerivative); ok {
			tp.EnableCrossDerivatives(true)
		}
		fn = w
	}

	s := &Setup{}
	if cfg.Reparametrize {
		if d, ok := fn.(function.FirstOrder); ok {
			rd, err := reparam.NewDerivable(d)
			if err != nil {
				return nil, err
			}
			s.wrapper = rd.Wrapper
			fn = rd
		} else {
			rw, err := reparam.New(fn)
			if err != nil {
				return nil, err
			}
			s.wrapper = rw
			fn = rw
		}
	}
	s.Function = fn
	s.Start = fn.Parameters()

	o, err := p.optimizer(fn, s)
	if err != nil {
		return nil, err
	}
	if err := p.configure(o); err != nil {
		return nil, err
	}
	s.Optimizer = o
	return s, nil
}

func (p *Problem) startingPoint() (*param.List, error) {
	if len(p.cfg.Parameters) > 0 {
		return p.cfg.ParameterList()
	}
	return objective.DefaultParameters(p.cfg.Objective.Name, p.cfg.Objective.Dim)
}

func (p *Problem) optimizer(fn function.Function, s *Setup) (opt.Optimizer, error) {
	cfg := p.cfg
	if cfg.Optimizer.Name == config.MetaOptimizer {
		return p.meta(fn)
	}
	o, err := opt.New(cfg.Optimizer.Name, fn)
	if err != nil {
		return nil, err
	}
	if br, ok := o.(opt.Bracketed); ok {
		a, b, err := p.interval(s)
		if err != nil {
			return nil, err
		}
		br.SetInitialInterval(a, b)
		if cfg.Optimizer.Bracketing == "inward" {
			br.SetBracketing(opt.BracketInward, cfg.Optimizer.InwardPoints)
		}
	}
	return o, nil
}

// interval returns the initial bracketing interval in the optimizer's space.
func (p *Problem) interval(s *Setup) (float64, float64, error) {
	if s.Start.Len() != 1 {
		return 0, 0, fmt.Errorf("%w: %s optimizes a single parameter, got %d",
			opt.ErrWrongParameterCount, p.cfg.Optimizer.Name, s.Start.Len())
	}
	iv := p.cfg.Optimizer.Interval
	if len(iv) != 2 {
		v := s.Start.At(0).Value
		return v, v + seedWidth, nil
	}
	a, b := iv[0], iv[1]
	if s.wrapper != nil {
		if tr, ok := s.wrapper.Transform(s.Start.At(0).Name); ok {
			a, b = tr.Transformed(a), tr.Transformed(b)
		}
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) || math.IsNaN(a) || math.IsNaN(b) {
		return 0, 0, fmt.Errorf("interval [%g, %g] is not finite in the optimizer's space", iv[0], iv[1])
	}
	return a, b, nil
}

func (p *Problem) meta(fn function.Function) (opt.Optimizer, error) {
	mc := p.cfg.Meta
	m := opt.NewMetaOptimizer(fn)
	for _, sc := range mc.Stages {
		so, err := opt.New(sc.Optimizer, fn)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", sc.Name, err)
		}
		if _, ok := so.(opt.Bracketed); ok {
			return nil, fmt.Errorf("stage %s: %s needs an initial interval; use simple for per-parameter line searches", sc.Name, sc.Optimizer)
		}
		mode, err := opt.ParseStageMode(sc.Mode)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", sc.Name, err)
		}
		m.AddStage(opt.Stage{
			Name:        sc.Name,
			Optimizer:   so,
			Params:      sc.Parameters,
			Derivatives: sc.Derivatives,
			Mode:        mode,
		})
	}
	m.SetPrecisionSchedule(mc.InitialTolerance, mc.ToleranceSteps)
	return m, nil
}

// configure applies the stop settings, limits, logger and listeners.
func (p *Problem) configure(o opt.Optimizer) error {
	oc := p.cfg.Optimizer
	switch oc.StopCondition {
	case "parameters":
		o.SetStopCondition(opt.NewParametersStopCondition(o, opt.DefaultTolerance))
	case "function":
		o.SetStopCondition(opt.NewFunctionStopCondition(o, opt.DefaultTolerance))
	}
	if oc.Tolerance > 0 {
		o.StopCondition().SetTolerance(oc.Tolerance)
	}
	o.StopCondition().SetBurnIn(oc.BurnIn)
	if oc.MaxEvaluations > 0 {
		o.SetMaxEvaluations(oc.MaxEvaluations)
	}
	policy, err := function.ParseConstraintPolicy(oc.ConstraintPolicy)
	if err != nil {
		return err
	}
	o.SetConstraintPolicy(policy)
	o.SetLogger(p.log)

	listeners, err := p.stepListeners()
	if err != nil {
		return err
	}
	for _, l := range listeners {
		o.AddListener(l)
	}
	return nil
}

// stepListeners returns the configured progress, deadline and stall
// listeners followed by the registered ones.
func (p *Problem) stepListeners() ([]opt.Listener, error) {
	oc := p.cfg.Optimizer
	var ls []opt.Listener
	if oc.LogEvery > 0 {
		ls = append(ls, &opt.LogListener{Logger: p.log, Every: oc.LogEvery})
	}
	deadline, err := oc.GetDeadline()
	if err != nil {
		return nil, err
	}
	if deadline > 0 {
		ls = append(ls, opt.NewDeadlineListener(deadline))
	}
	if oc.Patience > 0 {
		ls = append(ls, opt.NewStallListener(oc.Patience, oc.StallThreshold))
	}
	return append(ls, p.listeners...), nil
}

// Solve builds the problem and runs the optimizer to completion.
func (p *Problem) Solve() (*Result, error) {
	if p.cfg.Box != nil {
		return p.solveBox()
	}
	s, err := p.Build()
	if err != nil {
		return nil, err
	}

	p.log.Info("Starting optimization",
		"objective", p.cfg.Objective.Name,
		"optimizer", p.cfg.Optimizer.Name,
		"parameters", s.Start.Len(),
		"derivatives", p.cfg.Derivatives.Method,
		"reparametrized", s.wrapper != nil,
	)
	start := time.Now()
	o := s.Optimizer
	if err := o.Init(s.Start); err != nil {
		return nil, fmt.Errorf("failed to initialize optimizer: %w", err)
	}
	initial := o.Value()
	v, err := o.Optimize()
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	r := &Result{
		Objective:    p.cfg.Objective.Name,
		Optimizer:    p.cfg.Optimizer.Name,
		Parameters:   s.Original(),
		InitialValue: initial,
		Value:        v,
		Evaluations:  o.NumEvaluations(),
		Steps:        steps(o),
		Converged:    o.IsToleranceReached(),
		Elapsed:      time.Since(start),
	}
	p.logResult(r)
	return r, nil
}

func steps(o opt.Optimizer) int {
	if s, ok := o.(interface{ NumSteps() int }); ok {
		return s.NumSteps()
	}
	return 0
}

func (p *Problem) solveBox() (*Result, error) {
	cfg := p.cfg
	box := cfg.Box
	dim := len(box.Lower)
	eval, err := objective.Vector(cfg.Objective.Name, dim, cfg.Objective.Options)
	if err != nil {
		return nil, err
	}
	b, err := opt.NewBoxAdapter(cfg.Optimizer.Name, cfg.Optimizer.MaxEvaluations, cfg.Optimizer.Tolerance)
	if err != nil {
		return nil, err
	}
	b.SetLogger(p.log)
	listeners, err := p.stepListeners()
	if err != nil {
		return nil, err
	}
	for _, l := range listeners {
		b.AddListener(l)
	}

	p.log.Info("Starting box optimization",
		"objective", cfg.Objective.Name,
		"optimizer", cfg.Optimizer.Name,
		"dimensions", dim,
	)
	// The first evaluation is the starting point.
	initial, seen := 0.0, false
	record := func(x []float64) float64 {
		v := eval(x)
		if !seen {
			initial, seen = v, true
		}
		return v
	}
	start := time.Now()
	best, v, err := b.Run(record, box.Lower, box.Upper, dim)
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	params := &param.List{}
	for i, x := range best {
		if err := params.Add(param.Parameter{Name: fmt.Sprintf("x%d", i), Value: x}); err != nil {
			return nil, err
		}
	}
	o := b.Last()
	r := &Result{
		Objective:    cfg.Objective.Name,
		Optimizer:    cfg.Optimizer.Name,
		Parameters:   params,
		InitialValue: initial,
		Value:        v,
		Evaluations:  o.NumEvaluations(),
		Steps:        steps(o),
		Converged:    o.IsToleranceReached(),
		Elapsed:      time.Since(start),
	}
	p.logResult(r)
	return r, nil
}

func (p *Problem) logResult(r *Result) {
	p.log.Info("Optimization complete",
		"elapsed", r.Elapsed,
		"initial_value", r.InitialValue,
		"value", r.Value,
		"evaluations", r.Evaluations,
		"steps", r.Steps,
		"converged", r.Converged,
		"parameters", r.Parameters.String(),
	)
}
