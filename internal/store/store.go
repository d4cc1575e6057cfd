package store

// Store persists the results of optimization runs.
// Implementations must be safe for concurrent use.
//
// Load and Delete return ErrNotFound for unknown run IDs; other failures
// are wrapped with context.
type Store interface {
	// SaveRun atomically writes run, replacing an earlier result with the same ID.
	SaveRun(run *Run) error

	// LoadRun retrieves the result of the given run.
	LoadRun(runID string) (*Run, error)

	// ListRuns returns the metadata of all stored runs, oldest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run directory, trace included.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
