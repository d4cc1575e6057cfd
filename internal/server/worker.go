package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/numopt/internal/config"
	"github.com/cwbudde/numopt/internal/opt"
	"github.com/cwbudde/numopt/internal/problem"
	"github.com/cwbudde/numopt/internal/store"
)

// progressInterval throttles progress broadcasts.
var progressInterval = 500 * time.Millisecond

// traceFlushSteps is how often a job's trace reaches the disk.
const traceFlushSteps = 100

// runJob solves the job's problem and records the outcome. When runs is
// not nil the result, and the trace if the configuration asks for one,
// are stored under the job ID.
func runJob(ctx context.Context, jm *JobManager, runs *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	cfg := job.config

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	log := slog.Default().With("job_id", jobID)
	log.Info("Starting job", "objective", cfg.Objective.Name, "optimizer", cfg.Optimizer.Name)

	p := problem.New(cfg, log)
	p.AddListener(&progressListener{ctx: ctx, jm: jm, jobID: jobID})

	var tw *store.TraceWriter
	if runs != nil && cfg.Trace {
		tw, err = store.NewTraceWriter(runs.BaseDir(), jobID)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		tl := store.NewTraceListener(tw, false)
		tl.FlushEvery = traceFlushSteps
		p.AddListener(tl)
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	result, err := p.Solve()
	close(progressDone)
	if tw != nil {
		if cerr := tw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if err != nil {
		if runs != nil {
			if derr := runs.DeleteRun(jobID); derr != nil && !errors.Is(derr, store.ErrNotFound) {
				log.Warn("Failed to remove run directory", "error", derr)
			}
		}
		if ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	// Store first so a completed job always has its result.
	if runs != nil {
		if err := saveRun(runs, jobID, result, cfg); err != nil {
			// The job itself succeeded; only persistence failed.
			log.Error("Failed to save run", "error", err)
		}
	}

	endTime := time.Now()
	var final Job
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Steps = result.Steps
		j.Evaluations = result.Evaluations
		j.InitialValue = result.InitialValue
		j.Value = result.Value
		j.Converged = result.Converged
		j.Parameters = store.Values(result.Parameters)
		j.EndTime = &endTime
		final = *j
	})
	if err != nil {
		return err
	}

	log.Info("Job completed",
		"elapsed", result.Elapsed,
		"initial_value", result.InitialValue,
		"value", result.Value,
		"evaluations", result.Evaluations,
		"converged", result.Converged,
	)

	jm.broadcaster.Broadcast(progressEvent(final))
	return nil
}

func saveRun(runs *store.FSStore, jobID string, result *problem.Result, cfg *config.Config) error {
	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	return runs.SaveRun(store.NewRun(jobID, result, data, cfg.Labels))
}

// progressListener copies the optimizer's progress into the job and
// aborts the optimization once the job's context is done.
type progressListener struct {
	ctx   context.Context
	jm    *JobManager
	jobID string
}

func (l *progressListener) StepPerformed(ev opt.Event) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	return l.jm.UpdateJob(l.jobID, func(j *Job) {
		j.Steps = ev.Step
		j.Value = ev.Value
		j.Evaluations = ev.Optimizer.NumEvaluations()
	})
}

func (l *progressListener) ModifiesParameters() bool { return false }

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(progressEvent(job))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	var final Job
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
		final = *j
	})
	jm.broadcaster.Broadcast(progressEvent(final))
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	var final Job
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
		final = *j
	})
	jm.broadcaster.Broadcast(progressEvent(final))
	slog.Info("Job cancelled", "job_id", jobID)
}
