package store

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/numopt/internal/param"
	"github.com/cwbudde/numopt/internal/problem"
)

func TestRun_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(createTestRun("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "objective", "optimizer", "parameters", "initialValue", "value", "evaluations", "steps", "converged", "elapsedNs", "timestamp", "config", "labels"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Missing JSON field %q in %s", key, data)
		}
	}
}

func TestRun_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *Run)
		field  string
	}{
		{"valid", func(r *Run) {}, ""},
		{"empty id", func(r *Run) { r.ID = "" }, "ID"},
		{"no objective", func(r *Run) { r.Objective = "" }, "Objective"},
		{"no optimizer", func(r *Run) { r.Optimizer = "" }, "Optimizer"},
		{"no parameters", func(r *Run) { r.Parameters = nil }, "Parameters"},
		{"unnamed parameter", func(r *Run) { r.Parameters[0].Name = "" }, "Parameters"},
		{"duplicate parameter", func(r *Run) { r.Parameters[1].Name = "x0" }, "Parameters"},
		{"nan parameter", func(r *Run) { r.Parameters[0].Value = math.NaN() }, "Parameters"},
		{"infinite initial value", func(r *Run) { r.InitialValue = math.Inf(1) }, "InitialValue"},
		{"nan value", func(r *Run) { r.Value = math.NaN() }, "Value"},
		{"negative evaluations", func(r *Run) { r.Evaluations = -1 }, "Evaluations"},
		{"negative steps", func(r *Run) { r.Steps = -1 }, "Steps"},
		{"zero timestamp", func(r *Run) { r.Timestamp = time.Time{} }, "Timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := createTestRun("run-1")
			tt.modify(r)
			err := r.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Expected valid run, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestRun_ToInfo(t *testing.T) {
	r := createTestRun("run-1")
	info := r.ToInfo()
	if info.ID != r.ID || info.Objective != r.Objective || info.Optimizer != r.Optimizer {
		t.Errorf("Identity mismatch: %+v", info)
	}
	if info.Value != r.Value || info.Evaluations != r.Evaluations || info.Converged != r.Converged {
		t.Errorf("Summary mismatch: %+v", info)
	}
	if !info.Timestamp.Equal(r.Timestamp) {
		t.Errorf("Timestamp mismatch: %v", info.Timestamp)
	}
}

func TestNewRun(t *testing.T) {
	p := param.MustList(
		param.Parameter{Name: "t", Value: 0.107},
	)
	res := &problem.Result{
		Objective:    "jc69",
		Optimizer:    "brent",
		Parameters:   p,
		InitialValue: -40,
		Value:        -32.5,
		Evaluations:  12,
		Steps:        9,
		Converged:    true,
		Elapsed:      time.Millisecond,
	}

	id := NewRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("NewRunID is not a UUID: %v", err)
	}
	if NewRunID() == id {
		t.Error("Expected distinct run IDs")
	}

	r := NewRun(id, res, []byte("objective: {name: jc69}\n"), nil)
	if err := r.Validate(); err != nil {
		t.Fatalf("NewRun produced an invalid run: %v", err)
	}
	if r.Point()["t"] != 0.107 || r.Steps != 9 || r.Config == "" {
		t.Errorf("Unexpected run %+v", r)
	}
	if time.Since(r.Timestamp) > time.Minute {
		t.Errorf("Timestamp not set to now: %v", r.Timestamp)
	}
}
