package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

// createTestRun creates a run with test data.
func createTestRun(runID string) *Run {
	return &Run{
		ID:        runID,
		Objective: "rosenbrock",
		Optimizer: "bfgs",
		Parameters: []ParameterValue{
			{Name: "x0", Value: 0.9999},
			{Name: "x1", Value: 0.9998},
		},
		InitialValue: 24.2,
		Value:        1.2e-8,
		Evaluations:  154,
		Steps:        37,
		Converged:    true,
		Elapsed:      3 * time.Millisecond,
		Timestamp:    time.Now(),
		Config:       "objective:\n  name: rosenbrock\n",
		Labels:       map[string]string{"purpose": "test"},
	}
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("BaseDir = %s, want %s", store.BaseDir(), dir)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRun(createTestRun("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "runs", "run-1", "result.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Result file was not created at %s", expectedPath)
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file was left behind")
	}
}

func TestSaveRun_Invalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRun(nil); err == nil {
		t.Error("Expected error for nil run")
	}

	run := createTestRun("")
	var verr *ValidationError
	if err := store.SaveRun(run); !errors.As(err, &verr) || verr.Field != "ID" {
		t.Errorf("Expected a validation error on ID, got %v", err)
	}
}

func TestSaveRun_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	run := createTestRun("run-1")
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}
	run.Value = 0.5
	run.Converged = false
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Value != 0.5 || loaded.Converged {
		t.Errorf("Expected the second save to win, got %+v", loaded)
	}
}

func TestLoadRun(t *testing.T) {
	store, _ := setupTestStore(t)

	original := createTestRun("run-1")
	if err := store.SaveRun(original); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Objective != original.Objective || loaded.Optimizer != original.Optimizer {
		t.Errorf("Selection mismatch: %s/%s", loaded.Objective, loaded.Optimizer)
	}
	if len(loaded.Parameters) != 2 || loaded.Point()["x1"] != 0.9998 {
		t.Errorf("Parameters mismatch: %v", loaded.Parameters)
	}
	if loaded.Evaluations != 154 || loaded.Steps != 37 || !loaded.Converged {
		t.Errorf("Counters mismatch: %+v", loaded)
	}
	if loaded.Elapsed != original.Elapsed {
		t.Errorf("Elapsed = %v, want %v", loaded.Elapsed, original.Elapsed)
	}
	if !loaded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", loaded.Timestamp, original.Timestamp)
	}
	if loaded.Config != original.Config || loaded.Labels["purpose"] != "test" {
		t.Errorf("Config or labels lost: %q %v", loaded.Config, loaded.Labels)
	}
}

func TestLoadRun_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRun("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.RunID != "missing" {
		t.Errorf("Expected the run ID in the error, got %v", err)
	}

	if _, err := store.LoadRun(""); err == nil {
		t.Error("Expected error for empty runID")
	}
}

func TestLoadRun_Corrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	dir := filepath.Join(tempDir, "runs", "broken")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LoadRun("broken"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a deserialization error, got %v", err)
	}
}

func TestListRuns_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if infos == nil || len(infos) != 0 {
		t.Errorf("Expected an empty slice, got %v", infos)
	}
}

func TestListRuns_SortedAndSkipsInvalid(t *testing.T) {
	store, tempDir := setupTestStore(t)

	base := time.Now()
	for i, id := range []string{"c", "a", "b"} {
		run := createTestRun(id)
		run.Timestamp = base.Add(time.Duration(2-i) * time.Second)
		if err := store.SaveRun(run); err != nil {
			t.Fatal(err)
		}
	}
	// A directory without a result, a corrupted result and a stray file.
	runs := filepath.Join(tempDir, "runs")
	if err := os.MkdirAll(filepath.Join(runs, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(runs, "broken"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runs, "broken", "result.json"), []byte("]"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runs, "stray.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, info := range infos {
		got = append(got, info.ID)
	}
	if fmt.Sprint(got) != "[b a c]" {
		t.Errorf("ListRuns order = %v, want [b a c]", got)
	}
}

func TestDeleteRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRun(createTestRun("run-1")); err != nil {
		t.Fatal(err)
	}
	w, err := NewTraceWriter(tempDir, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteRun("run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "runs", "run-1")); !os.IsNotExist(err) {
		t.Error("Run directory still exists")
	}
	if err := store.DeleteRun("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.DeleteRun(""); err == nil {
		t.Error("Expected error for empty runID")
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.SaveRun(createTestRun(fmt.Sprintf("run-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent save failed: %v", err)
		}
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != n {
		t.Errorf("Expected %d runs, got %d", n, len(infos))
	}
}
