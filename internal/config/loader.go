package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/cwbudde/numopt/internal/function"
	"github.com/cwbudde/numopt/internal/numdiff"
	"github.com/cwbudde/numopt/internal/objective"
	"github.com/cwbudde/numopt/internal/opt"
)

// MetaOptimizer is the optimizer name selecting the staged meta optimizer.
const MetaOptimizer = "meta"

// AnalyticDerivatives selects the objective's own derivatives.
const AnalyticDerivatives = "analytic"

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration minimizing the named objective with the
// named optimizer from the objective's usual starting point.
func Default(objectiveName, optimizerName string) *Config {
	cfg := &Config{
		Objective: Objective{Name: objectiveName},
		Optimizer: Optimizer{Name: optimizerName},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Optimizer.StopCondition == "" {
		cfg.Optimizer.StopCondition = "default"
	}
	if cfg.Optimizer.ConstraintPolicy == "" {
		cfg.Optimizer.ConstraintPolicy = "auto"
	}
	if cfg.Optimizer.Bracketing == "" {
		cfg.Optimizer.Bracketing = "outward"
	}
	if cfg.Derivatives.Method == "" {
		cfg.Derivatives.Method = AnalyticDerivatives
	}
	if cfg.Meta != nil {
		if cfg.Meta.InitialTolerance == 0 {
			cfg.Meta.InitialTolerance = opt.DefaultInitialTolerance
		}
		if cfg.Meta.ToleranceSteps == 0 {
			cfg.Meta.ToleranceSteps = opt.DefaultToleranceSteps
		}
	}
}

// Validate checks a configuration built in code.
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if !slices.Contains(objective.Names(), cfg.Objective.Name) {
		return fmt.Errorf("unknown objective: %q (must be one of %v)", cfg.Objective.Name, objective.Names())
	}
	if cfg.Objective.Dim < 0 {
		return fmt.Errorf("objective dim cannot be negative, got %d", cfg.Objective.Dim)
	}

	if len(cfg.Parameters) > 0 && cfg.Box != nil {
		return fmt.Errorf("parameters and box are mutually exclusive")
	}
	if err := validateParameters(cfg.Parameters); err != nil {
		return fmt.Errorf("parameters validation failed: %w", err)
	}
	if cfg.Box != nil {
		if err := validateBox(cfg.Box); err != nil {
			return fmt.Errorf("box validation failed: %w", err)
		}
		if cfg.Meta != nil || cfg.Reparametrize {
			return fmt.Errorf("box problems support neither meta stages nor reparametrization")
		}
	}

	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return fmt.Errorf("optimizer validation failed: %w", err)
	}
	if cfg.Optimizer.Name == MetaOptimizer {
		if cfg.Meta == nil {
			return fmt.Errorf("optimizer %q needs a meta section", MetaOptimizer)
		}
		if err := validateMeta(cfg.Meta); err != nil {
			return fmt.Errorf("meta validation failed: %w", err)
		}
	} else if cfg.Meta != nil {
		return fmt.Errorf("meta section given for optimizer %q", cfg.Optimizer.Name)
	}

	if cfg.Derivatives.Method != AnalyticDerivatives {
		if _, err := numdiff.ParseMethod(cfg.Derivatives.Method); err != nil {
			return fmt.Errorf("derivatives: %w (or %s)", err, AnalyticDerivatives)
		}
	}
	if cfg.Derivatives.Step < 0 {
		return fmt.Errorf("derivatives step cannot be negative, got %g", cfg.Derivatives.Step)
	}
	return nil
}

func validateParameters(ps []Parameter) error {
	names := make(map[string]bool, len(ps))
	for _, p := range ps {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		names[p.Name] = true
		if p.Lower != nil && p.Upper != nil && *p.Lower > *p.Upper {
			return fmt.Errorf("parameter %s: lower bound %g greater than upper bound %g", p.Name, *p.Lower, *p.Upper)
		}
	}
	// Value checks against the bounds happen when the list is built.
	cfg := Config{Parameters: ps}
	_, err := cfg.ParameterList()
	return err
}

func validateBox(b *Box) error {
	if len(b.Lower) == 0 || len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("lower and upper must have the same positive length, got %d and %d", len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("dimension %d: lower %g greater than upper %g", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

func validateOptimizer(o *Optimizer) error {
	if o.Name != MetaOptimizer && !slices.Contains(opt.Names(), o.Name) {
		return fmt.Errorf("unknown optimizer: %q (must be %s or one of %v)", o.Name, MetaOptimizer, opt.Names())
	}
	if o.Tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative, got %g", o.Tolerance)
	}
	if o.MaxEvaluations < 0 {
		return fmt.Errorf("max_evaluations cannot be negative, got %d", o.MaxEvaluations)
	}
	if o.BurnIn < 0 {
		return fmt.Errorf("burn_in cannot be negative, got %d", o.BurnIn)
	}
	validStops := map[string]bool{
		"default":    true,
		"parameters": true,
		"function":   true,
	}
	if !validStops[o.StopCondition] {
		return fmt.Errorf("invalid stop_condition: %s (must be default, parameters, or function)", o.StopCondition)
	}
	if _, err := function.ParseConstraintPolicy(o.ConstraintPolicy); err != nil {
		return err
	}
	if len(o.Interval) != 0 && len(o.Interval) != 2 {
		return fmt.Errorf("interval must have 2 values, got %d", len(o.Interval))
	}
	if o.Bracketing != "outward" && o.Bracketing != "inward" {
		return fmt.Errorf("invalid bracketing: %s (must be outward or inward)", o.Bracketing)
	}
	if o.Bracketing == "inward" && len(o.Interval) != 2 {
		return fmt.Errorf("inward bracketing needs an interval")
	}
	if o.InwardPoints < 0 {
		return fmt.Errorf("inward_points cannot be negative, got %d", o.InwardPoints)
	}
	if _, err := o.GetDeadline(); err != nil {
		return fmt.Errorf("invalid deadline %s: %w", o.Deadline, err)
	}
	if o.LogEvery < 0 {
		return fmt.Errorf("log_every cannot be negative, got %d", o.LogEvery)
	}
	if o.Patience < 0 {
		return fmt.Errorf("patience cannot be negative, got %d", o.Patience)
	}
	if o.StallThreshold < 0 {
		return fmt.Errorf("stall_threshold cannot be negative, got %g", o.StallThreshold)
	}
	return nil
}

func validateMeta(m *Meta) error {
	if len(m.Stages) == 0 {
		return fmt.Errorf("at least one stage must be defined")
	}
	if m.InitialTolerance <= 0 {
		return fmt.Errorf("initial_tolerance must be positive, got %g", m.InitialTolerance)
	}
	if m.ToleranceSteps < 0 {
		return fmt.Errorf("tolerance_steps cannot be negative, got %d", m.ToleranceSteps)
	}
	names := make(map[string]bool, len(m.Stages))
	for i, s := range m.Stages {
		if s.Name == "" {
			return fmt.Errorf("stage %d: name cannot be empty", i)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate stage name: %s", s.Name)
		}
		names[s.Name] = true
		if !slices.Contains(opt.Names(), s.Optimizer) {
			return fmt.Errorf("stage %s: unknown optimizer %q", s.Name, s.Optimizer)
		}
		if s.Derivatives < 0 || s.Derivatives > 2 {
			return fmt.Errorf("stage %s: derivatives must be 0, 1 or 2, got %d", s.Name, s.Derivatives)
		}
		if order, _ := opt.DerivativeOrder(s.Optimizer); s.Derivatives < order {
			return fmt.Errorf("stage %s: optimizer %s needs derivatives of order %d", s.Name, s.Optimizer, order)
		}
		if _, err := opt.ParseStageMode(s.Mode); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name, err)
		}
	}
	return nil
}
