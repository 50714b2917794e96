package types

import "errors"

// Sentinel errors shared across the pipeline core. Storage-level sentinels
// (not found, constraint conflict) live in the storage package; the values
// here cover run scheduling and execution.
var (
	// ErrAlreadyRunning means the project already has a pending or running
	// run. Surfaced as 409 at the HTTP boundary.
	ErrAlreadyRunning = errors.New("a run is already active for this project")

	// ErrCancelled is the cooperative-cancellation sentinel. It is control
	// flow, not a failure: the finalizer translates it to status "cancelled"
	// and it never crosses the HTTP boundary.
	ErrCancelled = errors.New("run cancelled")

	// ErrValidation covers rejected input: path traversal, unknown scope,
	// malformed names, zero timestamps. Surfaced as 400.
	ErrValidation = errors.New("validation failed")

	// ErrLLMUnavailable means the LLM backend timed out or refused the
	// connection. Surfaced as 503.
	ErrLLMUnavailable = errors.New("llm backend unavailable")
)

// IsCancelled reports whether err is or wraps the cancellation sentinel.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
