package opt

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/param"
)

// DefaultMaxEvaluations is the evaluation budget of a new optimizer.
const DefaultMaxEvaluations = 1000000

var (
	// ErrNotInitialized is returned by Step before Init.
	ErrNotInitialized = errors.New("optimizer not initialized")
	// ErrWrongParameterCount is returned when an optimizer gets a list of the wrong length.
	ErrWrongParameterCount = errors.New("wrong number of parameters")
	// ErrNoParameters is returned by Init on an empty list.
	ErrNoParameters = errors.New("no parameters to optimize")
)

// Optimizer is the iteration contract shared by all algorithms.
//
// Lifecycle: Init seeds the working point; Step performs one iteration;
// Optimize iterates until the stop condition is reached or the evaluation
// budget is exhausted.
type Optimizer interface {
	// Init copies p into the optimizer and prepares the algorithm.
	Init(p *param.List) error
	// Step performs one iteration and returns the current function value.
	Step() (float64, error)
	// Optimize steps until convergence or until the evaluation budget is spent.
	Optimize() (float64, error)

	Function() function.Function
	// Parameters returns a copy of the working point.
	Parameters() *param.List
	// Value returns the function value at the working point.
	Value() float64

	NumEvaluations() int
	MaxEvaluations() int
	SetMaxEvaluations(n int)

	StopCondition() StopCondition
	SetStopCondition(sc StopCondition)
	DefaultStopCondition() StopCondition

	IsInitialized() bool
	IsToleranceReached() bool
	IsMaxEvaluationsReached() bool

	AddListener(l Listener)
	SetLogger(l *slog.Logger)
	ConstraintPolicy() function.ConstraintPolicy
	SetConstraintPolicy(cp function.ConstraintPolicy)
}

// algorithm is implemented by each concrete optimizer.
type algorithm interface {
	Optimizer
	// doInit prepares the algorithm state from the working point and may
	// update the current value.
	doInit(p *param.List) error
	// doStep performs one iteration and returns the new current value.
	doStep() (float64, error)
}

// validator is implemented by optimizers that only accept some parameter lists.
type validator interface {
	validate(p *param.List) error
}

// Base implements the state machine common to all optimizers.
// Concrete optimizers embed it and provide doInit and doStep.
type Base struct {
	self algorithm
	fn   function.Function

	params       *param.List
	currentValue float64

	nbEval, nbEvalMax int
	steps             int
	tolIsReached      bool
	initialized       bool

	stop, defaultStop StopCondition
	listeners         []Listener
	policy            function.ConstraintPolicy
	log               *slog.Logger
}

func (b *Base) setup(self algorithm, f function.Function, defaultStop StopCondition) {
	b.self = self
	b.fn = f
	b.nbEvalMax = DefaultMaxEvaluations
	b.defaultStop = defaultStop
	b.stop = defaultStop
	b.policy = function.ConstraintsAuto
	b.log = slog.Default()
}

func (b *Base) Init(p *param.List) error {
	if p == nil || p.Len() == 0 {
		return ErrNoParameters
	}
	if v, ok := b.self.(validator); ok {
		if err := v.validate(p); err != nil {
			return err
		}
	}
	b.initialized = false
	b.params = p.Clone()
	b.nbEval = 0
	b.steps = 0
	b.tolIsReached = false

	v, err := function.Eval(b.fn, b.params)
	if err != nil {
		return fmt.Errorf("failed to evaluate initial point: %w", err)
	}
	b.nbEval++
	b.currentValue = v

	if err := b.self.doInit(b.params); err != nil {
		return err
	}
	b.initialized = true
	b.stop.Init()

	b.log.Debug("Optimizer initialized",
		"optimizer", fmt.Sprintf("%T", b.self),
		"parameters", b.params.String(),
		"value", b.currentValue,
	)
	return nil
}

func (b *Base) Step() (float64, error) {
	if !b.initialized {
		return 0, ErrNotInitialized
	}
	v, err := b.self.doStep()
	if err != nil {
		return b.currentValue, err
	}
	b.currentValue = v
	b.steps++

	b.log.Debug("Optimization step",
		"step", b.steps,
		"value", v,
		"evaluations", b.nbEval,
	)

	if len(b.listeners) > 0 {
		// Listeners see the function at the accepted point, not at the
		// last trial point of the step.
		if err := b.fn.SetParameters(b.params); err != nil {
			return b.currentValue, err
		}
	}
	modified := false
	ev := Event{Optimizer: b.self, Step: b.steps, Value: v}
	for _, l := range b.listeners {
		if err := l.StepPerformed(ev); err != nil {
			return b.currentValue, err
		}
		modified = modified || l.ModifiesParameters()
	}
	if modified {
		if err := b.resynchronize(); err != nil {
			return b.currentValue, err
		}
	}

	if !b.tolIsReached {
		b.tolIsReached = b.stop.IsToleranceReached()
	}
	return b.currentValue, nil
}

// resynchronize re-reads the working point from the function after a
// listener moved it, and re-seeds the algorithm there.
func (b *Base) resynchronize() error {
	if _, err := b.params.Match(b.fn.Parameters()); err != nil {
		return fmt.Errorf("failed to resynchronize parameters: %w", err)
	}
	v, err := function.Eval(b.fn, b.params)
	if err != nil {
		return err
	}
	b.nbEval++
	b.currentValue = v
	if r, ok := b.self.(reseeder); ok {
		r.reseed(b.params.At(0))
	}
	return b.self.doInit(b.params)
}

func (b *Base) Optimize() (float64, error) {
	if !b.initialized {
		return 0, ErrNotInitialized
	}
	stalled := false
	for !b.tolIsReached && b.nbEval < b.nbEvalMax {
		if _, err := b.Step(); err != nil {
			if !errors.Is(err, ErrStalled) {
				return b.currentValue, err
			}
			b.log.Info("Stopping early", "reason", err, "steps", b.steps, "value", b.currentValue)
			stalled = true
			break
		}
	}
	// Leave the function at the final point.
	if err := b.fn.SetParameters(b.params); err != nil {
		return b.currentValue, err
	}
	switch {
	case stalled:
	case !b.tolIsReached:
		b.log.Warn("Maximum number of evaluations reached",
			"evaluations", b.nbEval,
			"max_evaluations", b.nbEvalMax,
			"value", b.currentValue,
		)
	default:
		b.log.Debug("Optimization converged",
			"steps", b.steps,
			"evaluations", b.nbEval,
			"value", b.currentValue,
		)
	}
	return b.currentValue, nil
}

func (b *Base) Function() function.Function { return b.fn }

func (b *Base) Parameters() *param.List {
	if b.params == nil {
		return &param.List{}
	}
	return b.params.Clone()
}

func (b *Base) Value() float64 { return b.currentValue }

func (b *Base) NumEvaluations() int     { return b.nbEval }
func (b *Base) MaxEvaluations() int     { return b.nbEvalMax }
func (b *Base) SetMaxEvaluations(n int) { b.nbEvalMax = n }

// NumSteps returns the number of steps performed since Init.
func (b *Base) NumSteps() int { return b.steps }

func (b *Base) StopCondition() StopCondition        { return b.stop }
func (b *Base) DefaultStopCondition() StopCondition { return b.defaultStop }

func (b *Base) SetStopCondition(sc StopCondition) {
	b.stop = sc
	if b.initialized {
		sc.Init()
	}
}

func (b *Base) IsInitialized() bool      { return b.initialized }
func (b *Base) IsToleranceReached() bool { return b.tolIsReached }

func (b *Base) IsMaxEvaluationsReached() bool { return b.nbEval >= b.nbEvalMax }

func (b *Base) AddListener(l Listener) { b.listeners = append(b.listeners, l) }

func (b *Base) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	b.log = l
}

// Logger returns the logger diagnostics are written to.
func (b *Base) Logger() *slog.Logger { return b.log }

func (b *Base) ConstraintPolicy() function.ConstraintPolicy       { return b.policy }
func (b *Base) SetConstraintPolicy(cp function.ConstraintPolicy) { b.policy = cp }

// evaluate sets p on the function and counts the evaluation.
func (b *Base) evaluate(p *param.List) (float64, error) {
	b.nbEval++
	return function.Eval(b.fn, p)
}

// scalarAt evaluates the single working parameter at x according to the
// constraint policy.
func (b *Base) scalarAt(x float64) (float64, error) {
	pt := b.params.Clone()
	if err := pt.SetValue(0, b.clampScalar(x)); err != nil {
		return 0, err
	}
	return b.evaluate(pt)
}

// clampScalar moves x into the constraint of the single working parameter
// when the policy is ConstraintsAuto.
func (b *Base) clampScalar(x float64) float64 {
	if c := b.params.At(0).Constraint; c != nil && b.policy == function.ConstraintsAuto {
		return c.Clamp(x)
	}
	return x
}

// setScalar writes x to the single working parameter.
func (b *Base) setScalar(x float64) error {
	return b.params.SetValue(0, b.clampScalar(x))
}

// remaining returns what is left of the evaluation budget.
func (b *Base) remaining() int {
	return max(b.nbEvalMax-b.nbEval, 1)
}

// oneDimension is embedded by the optimizers of a single parameter.
type oneDimension struct{}

func (oneDimension) validate(p *param.List) error {
	if p.Len() != 1 {
		return fmt.Errorf("%w: one-dimensional optimizer needs 1 parameter, got %d", ErrWrongParameterCount, p.Len())
	}
	return nil
}
