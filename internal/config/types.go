package config

import (
	"math"
	"time"

	"github.com/cwbudde/numopt/internal/param"
)

// Config describes an optimization problem and how to solve it.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Objective   Objective         `yaml:"objective"`
	Parameters  []Parameter       `yaml:"parameters,omitempty"`
	Box         *Box              `yaml:"box,omitempty"`
	Optimizer   Optimizer         `yaml:"optimizer"`
	Derivatives Derivatives       `yaml:"derivatives"`
	Meta        *Meta             `yaml:"meta,omitempty"`
	Trace       bool              `yaml:"trace"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	// Reparametrize maps bounded parameters to unconstrained ones before
	// optimizing.
	Reparametrize bool `yaml:"reparametrize"`
}

// Objective selects a registered objective function.
type Objective struct {
	Name    string             `yaml:"name"`
	Dim     int                `yaml:"dim,omitempty"`
	Options map[string]float64 `yaml:"options,omitempty"`
}

// Parameter is a named starting value with optional bounds.
type Parameter struct {
	Name        string   `yaml:"name"`
	Value       float64  `yaml:"value"`
	Lower       *float64 `yaml:"lower,omitempty"`
	Upper       *float64 `yaml:"upper,omitempty"`
	StrictLower bool     `yaml:"strict_lower,omitempty"`
	StrictUpper bool     `yaml:"strict_upper,omitempty"`
}

// Box is a plain vector problem: the objective is minimized over
// [lower, upper] starting from the middle of the box.
type Box struct {
	Lower []float64 `yaml:"lower"`
	Upper []float64 `yaml:"upper"`
}

// Optimizer holds the algorithm and its stop settings.
type Optimizer struct {
	Name           string  `yaml:"name"` // registry name or "meta"
	Tolerance      float64 `yaml:"tolerance,omitempty"`
	MaxEvaluations int     `yaml:"max_evaluations,omitempty"`
	StopCondition  string  `yaml:"stop_condition,omitempty"` // default, parameters, function
	BurnIn         int     `yaml:"burn_in,omitempty"`
	// ConstraintPolicy is "auto" or "keep".
	ConstraintPolicy string `yaml:"constraint_policy,omitempty"`

	// One-dimensional bracketing.
	Interval     []float64 `yaml:"interval,omitempty"`
	Bracketing   string    `yaml:"bracketing,omitempty"` // outward, inward
	InwardPoints int       `yaml:"inward_points,omitempty"`

	Deadline string `yaml:"deadline,omitempty"` // e.g. "30s"
	LogEvery int    `yaml:"log_every,omitempty"`

	// Early stop after Patience steps without a relative improvement of
	// at least StallThreshold. Zero disables it.
	Patience       int     `yaml:"patience,omitempty"`
	StallThreshold float64 `yaml:"stall_threshold,omitempty"`
}

// Derivatives selects analytic or finite difference derivatives.
type Derivatives struct {
	Method string  `yaml:"method"` // analytic, two-point, three-point, five-point
	Step   float64 `yaml:"step,omitempty"`
}

// Meta configures the stages of the meta optimizer.
type Meta struct {
	InitialTolerance float64 `yaml:"initial_tolerance,omitempty"`
	ToleranceSteps   int     `yaml:"tolerance_steps,omitempty"`
	Stages           []Stage `yaml:"stages"`
}

// Stage is one sub-optimizer of the meta optimizer.
type Stage struct {
	Name        string   `yaml:"name"`
	Optimizer   string   `yaml:"optimizer"`
	Parameters  []string `yaml:"parameters,omitempty"`
	Derivatives int      `yaml:"derivatives,omitempty"`
	Mode        string   `yaml:"mode,omitempty"` // step, full
}

// GetDeadline parses the deadline; zero means none.
func (o *Optimizer) GetDeadline() (time.Duration, error) {
	if o.Deadline == "" {
		return 0, nil
	}
	return time.ParseDuration(o.Deadline)
}

// ParameterList builds the starting parameter list.
func (c *Config) ParameterList() (*param.List, error) {
	l := &param.List{}
	for _, p := range c.Parameters {
		var constraint *param.Interval
		if p.Lower != nil || p.Upper != nil {
			lo, up := math.Inf(-1), math.Inf(1)
			if p.Lower != nil {
				lo = *p.Lower
			}
			if p.Upper != nil {
				up = *p.Upper
			}
			iv, err := param.NewInterval(lo, up, p.StrictLower, p.StrictUpper)
			if err != nil {
				return nil, err
			}
			constraint = iv
		}
		np, err := param.New(p.Name, p.Value, constraint)
		if err != nil {
			return nil, err
		}
		if err := l.Add(np); err != nil {
			return nil, err
		}
	}
	return l, nil
}
