package batch

import "errors"

var (
	// ErrConverterInit is matched by errors returned when the
	// ConverterFactory fails.
	ErrConverterInit = errors.New("converter initialization failed")

	// ErrTaskTimeout marks a task that exceeded Options.TaskTimeout.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrConverterPanic marks a task whose converter panicked.
	ErrConverterPanic = errors.New("converter panicked")

	// ErrNilResult marks a task whose converter returned neither a result
	// nor an error.
	ErrNilResult = errors.New("converter returned no result")
)

// InitError wraps the cause of a converter initialization failure.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return ErrConverterInit.Error() + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConverterInit) true for any *InitError.
func (e *InitError) Is(target error) bool {
	return target == ErrConverterInit
}
