package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/ditto/internal/delta"
)

// Class buckets a task failure for the retry controller.
type Class int

const (
	// Transient failures may clear on their own; the task is retried.
	Transient Class = iota + 1
	// Permanent failures will not improve with repetition.
	Permanent
	// Verification marks a delta plan that failed its coverage check; the
	// task falls back to a whole-file copy, it is not retried.
	Verification
	// Cancelled means the run was aborted before or during the task.
	Cancelled
	// ConfigError marks an invalid request; nothing runs.
	ConfigError
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Verification:
		return "verification"
	case Cancelled:
		return "cancelled"
	case ConfigError:
		return "config"
	}
	return "unknown"
}

// ClassedError attaches a failure class to a cause.
type ClassedError struct {
	Err   error
	Class Class
}

func (e *ClassedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassedError) Unwrap() error { return e.Err }

// WithClass wraps err with an explicit class, overriding Classify.
func WithClass(c Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassedError{Err: err, Class: c}
}

// transientErrnos are conditions that routinely clear: contended files,
// interrupted syscalls, descriptor pressure, transient device errors.
var transientErrnos = []unix.Errno{
	unix.EAGAIN,
	unix.EBUSY,
	unix.EINTR,
	unix.ETXTBSY,
	unix.EIO,
	unix.EMFILE,
	unix.ENFILE,
}

// Classify assigns a failure class to err. Unknown errors are Permanent:
// retrying only pays off when the errno says the condition can clear.
func Classify(err error) Class {
	if err == nil {
		return 0
	}

	var ce *ClassedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	if errors.Is(err, delta.ErrPlanMismatch) {
		return Verification
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return Transient
		}
	}
	return Permanent
}

// IsRetryable reports whether a failure with this class should re-run.
func IsRetryable(err error) bool {
	return Classify(err) == Transient
}
