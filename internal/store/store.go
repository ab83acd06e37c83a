package store

// Store persists run records. Implementations must be safe for concurrent
// use.
//
// Error handling conventions:
//   - Return ErrNotFound if a run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the record, overwriting an existing one
	// with the same ID.
	SaveRun(run *Run) error

	// LoadRun returns the record of runID or ErrNotFound.
	LoadRun(runID string) (*Run, error)

	// ListRuns returns the metadata of every readable record, newest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the record and its trace.
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
