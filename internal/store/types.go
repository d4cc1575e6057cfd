package store

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/numopt/internal/param"
	"github.com/cwbudde/numopt/internal/problem"
)

// ParameterValue is one named coordinate of a stored point.
type ParameterValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Run is the persisted outcome of one optimization run.
type Run struct {
	ID        string `json:"id"`
	Objective string `json:"objective"`
	Optimizer string `json:"optimizer"`

	// Parameters is the final point in the objective's own space.
	Parameters   []ParameterValue `json:"parameters"`
	InitialValue float64          `json:"initialValue"`
	Value        float64          `json:"value"`
	Evaluations  int              `json:"evaluations"`
	Steps        int              `json:"steps"`
	Converged    bool             `json:"converged"`
	Elapsed      time.Duration    `json:"elapsedNs"`
	Timestamp    time.Time        `json:"timestamp"`

	// Config is the YAML configuration the run was started with.
	Config string            `json:"config,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// RunInfo is the metadata of a run, without its point and configuration.
type RunInfo struct {
	ID          string    `json:"id"`
	Objective   string    `json:"objective"`
	Optimizer   string    `json:"optimizer"`
	Value       float64   `json:"value"`
	Evaluations int       `json:"evaluations"`
	Converged   bool      `json:"converged"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewRun converts a solved problem into a persistable run.
func NewRun(id string, r *problem.Result, config []byte, labels map[string]string) *Run {
	return &Run{
		ID:           id,
		Objective:    r.Objective,
		Optimizer:    r.Optimizer,
		Parameters:   Values(r.Parameters),
		InitialValue: r.InitialValue,
		Value:        r.Value,
		Evaluations:  r.Evaluations,
		Steps:        r.Steps,
		Converged:    r.Converged,
		Elapsed:      r.Elapsed,
		Timestamp:    time.Now(),
		Config:       string(config),
		Labels:       labels,
	}
}

// Values flattens a parameter list into name/value pairs.
func Values(p *param.List) []ParameterValue {
	out := make([]ParameterValue, p.Len())
	for i := range out {
		q := p.At(i)
		out[i] = ParameterValue{Name: q.Name, Value: q.Value}
	}
	return out
}

// Point returns the run's final point by parameter name.
func (r *Run) Point() map[string]float64 {
	m := make(map[string]float64, len(r.Parameters))
	for _, p := range r.Parameters {
		m[p.Name] = p.Value
	}
	return m
}

// ToInfo converts a full Run to RunInfo (metadata only).
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		ID:          r.ID,
		Objective:   r.Objective,
		Optimizer:   r.Optimizer,
		Value:       r.Value,
		Evaluations: r.Evaluations,
		Converged:   r.Converged,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks that the run can be stored and read back.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Objective == "" {
		return &ValidationError{Field: "Objective", Reason: "cannot be empty"}
	}
	if r.Optimizer == "" {
		return &ValidationError{Field: "Optimizer", Reason: "cannot be empty"}
	}
	if len(r.Parameters) == 0 {
		return &ValidationError{Field: "Parameters", Reason: "cannot be empty"}
	}
	seen := make(map[string]bool, len(r.Parameters))
	for _, p := range r.Parameters {
		if p.Name == "" {
			return &ValidationError{Field: "Parameters", Reason: "contain an unnamed entry"}
		}
		if seen[p.Name] {
			return &ValidationError{Field: "Parameters", Reason: "contain " + p.Name + " twice"}
		}
		seen[p.Name] = true
		if !finite(p.Value) {
			return &ValidationError{Field: "Parameters", Reason: p.Name + " must be finite"}
		}
	}
	// JSON has no encoding for NaN or infinities.
	if !finite(r.InitialValue) {
		return &ValidationError{Field: "InitialValue", Reason: "must be finite"}
	}
	if !finite(r.Value) {
		return &ValidationError{Field: "Value", Reason: "must be finite"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.Steps < 0 {
		return &ValidationError{Field: "Steps", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
