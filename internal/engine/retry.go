package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds re-execution of transiently failing tasks.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Wait        time.Duration // fixed wait between attempts
}

// DefaultRetryPolicy matches the CLI defaults: no retries, 30s wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Wait: 30 * time.Second}
}

// TaskState is the position of a task in the retry state machine.
type TaskState int

const (
	Pending TaskState = iota
	Running
	AwaitingRetry
	Done
	Failed
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case AwaitingRetry:
		return "awaiting_retry"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Outcome summarizes one task's trip through the controller.
type Outcome struct {
	Err      error
	Attempts int
	State    TaskState // Done or Failed
}

// RetryController advances tasks through
// Pending → Running → {Done | AwaitingRetry(n) → Running … | Failed}.
// The clock is injected so tests drive the inter-attempt wait without
// real delays.
type RetryController struct {
	policy RetryPolicy
	clock  clockwork.Clock
}

// NewRetryController creates a controller. A nil clock uses wall time.
func NewRetryController(policy RetryPolicy, clock clockwork.Clock) *RetryController {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RetryController{policy: policy, clock: clock}
}

// Do executes fn until it succeeds, fails permanently, or exhausts the
// attempt budget. Only Transient failures re-run. The wait between
// attempts blocks the calling worker, never the pool. onRetry, if set,
// fires before each wait with the attempt number that just failed.
func (rc *RetryController) Do(
	ctx context.Context,
	onRetry func(attempt int, err error),
	fn func() error,
) Outcome {
	out := Outcome{State: Pending}

	for {
		out.State = Running
		out.Attempts++
		out.Err = fn()

		if out.Err == nil {
			out.State = Done
			return out
		}
		if !IsRetryable(out.Err) || out.Attempts >= rc.policy.MaxAttempts {
			out.State = Failed
			return out
		}

		out.State = AwaitingRetry
		if onRetry != nil {
			onRetry(out.Attempts, out.Err)
		}
		select {
		case <-ctx.Done():
			out.State = Failed
			out.Err = ctx.Err()
			return out
		case <-rc.clock.After(rc.policy.Wait):
		}
	}
}
