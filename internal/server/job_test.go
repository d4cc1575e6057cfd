package server

import (
	"context"
	"testing"
	"time"

	"github.com/cwbudde/numopt/internal/config"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(config.Default("rosenbrock", "bfgs"))

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}
	if job.Objective != "rosenbrock" || job.Optimizer != "bfgs" {
		t.Errorf("Selection not set correctly: %s/%s", job.Objective, job.Optimizer)
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(config.Default("sphere", "simplex"))

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	// Snapshots do not alias the managed job.
	retrieved.State = StateFailed
	if again, _ := jm.GetJob(job.ID); again.State != StatePending {
		t.Errorf("Snapshot modification leaked into the manager: %s", again.State)
	}

	if _, exists := jm.GetJob("nonexistent"); exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(config.Default("sphere", "simplex"))
	jm.UpdateJob(first.ID, func(j *Job) { j.StartTime = time.Now().Add(-time.Minute) })
	second := jm.CreateJob(config.Default("sphere", "powell"))

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(config.Default("sphere", "simplex"))

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Steps = 12
		j.Value = 0.25
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning || updated.Steps != 12 || updated.Value != 0.25 {
		t.Errorf("Update not applied: %+v", updated)
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); err == nil {
		t.Error("Should return error for nonexistent job")
	}
}

func TestJobManager_GetRunningJobs(t *testing.T) {
	jm := NewJobManager()

	job1 := jm.CreateJob(config.Default("sphere", "simplex"))
	jm.CreateJob(config.Default("sphere", "simplex"))
	job3 := jm.CreateJob(config.Default("sphere", "simplex"))

	jm.UpdateJob(job1.ID, func(j *Job) { j.State = StateRunning })
	jm.UpdateJob(job3.ID, func(j *Job) { j.State = StateRunning })

	if running := jm.GetRunningJobs(); len(running) != 2 {
		t.Errorf("Expected 2 running jobs, got %d", len(running))
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(config.Default("sphere", "simplex"))

	ctx, cancel := context.WithCancel(context.Background())
	jm.UpdateJob(job.ID, func(j *Job) { j.cancel = cancel })

	if err := jm.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("Job context was not cancelled")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	if err := jm.CancelJob(job.ID); err == nil {
		t.Error("Cancelling a completed job should fail")
	}
	if err := jm.CancelJob("nonexistent"); err == nil {
		t.Error("Cancelling a nonexistent job should fail")
	}
}

func TestJobManager_CancelAll(t *testing.T) {
	jm := NewJobManager()

	var ctxs []context.Context
	for i := 0; i < 3; i++ {
		job := jm.CreateJob(config.Default("sphere", "simplex"))
		ctx, cancel := context.WithCancel(context.Background())
		ctxs = append(ctxs, ctx)
		jm.UpdateJob(job.ID, func(j *Job) {
			j.cancel = cancel
			if i == 2 {
				j.State = StateCompleted
			}
		})
	}

	jm.CancelAll()
	if ctxs[0].Err() == nil || ctxs[1].Err() == nil {
		t.Error("Active jobs should be cancelled")
	}
	if ctxs[2].Err() != nil {
		t.Error("Completed jobs should be left alone")
	}
}

func TestJobManager_RemoveJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(config.Default("sphere", "simplex"))

	if err := jm.RemoveJob(job.ID); err == nil {
		t.Error("Removing a pending job should fail")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateFailed })
	ch, _ := jm.broadcaster.Subscribe(job.ID)
	if err := jm.RemoveJob(job.ID); err != nil {
		t.Fatalf("RemoveJob failed: %v", err)
	}
	if _, exists := jm.GetJob(job.ID); exists {
		t.Error("Job still listed after removal")
	}
	if _, open := <-ch; open {
		t.Error("Subscriber channel should be closed")
	}
	if err := jm.RemoveJob(job.ID); err == nil {
		t.Error("Removing twice should fail")
	}
}
