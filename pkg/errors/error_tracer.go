package errors

import "github.com/pkg/errors"

// StackTracer is satisfied by errors that carry a pkg/errors stack trace.
type StackTracer interface {
	StackTrace() errors.StackTrace
}

// ErrorTracer pairs an error with the message the logger should show.
// Wrapping happens at the gateway boundary, so the recorded stack points
// at the rail call that failed rather than at the logger.
type ErrorTracer struct {
	Message string
	Err     error
}

// TracerFromError wraps err, attaching a stack trace unless it already
// has one.
func TracerFromError(err error) *ErrorTracer {
	return &ErrorTracer{
		Message: err.Error(),
		Err:     ensureStack(err),
	}
}

func ensureStack(err error) error {
	if _, ok := err.(StackTracer); ok {
		return err
	}
	return errors.WithStack(err)
}

func (e *ErrorTracer) Error() string {
	return e.Message
}

func (e *ErrorTracer) Unwrap() error {
	return e.Err
}

// StackTrace exposes the underlying stack for the logger.
func (e *ErrorTracer) StackTrace() errors.StackTrace {
	if withStack, ok := e.Unwrap().(StackTracer); ok {
		return withStack.StackTrace()
	}
	return nil
}
