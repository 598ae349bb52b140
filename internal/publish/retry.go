package publish

import (
	"context"
	"errors"
	"time"

	"github.com/inkwisp/mediadrop/internal/logutil"
)

// Outcome is the result of one attempt inside a retry loop.
type Outcome struct {
	OK         bool
	StatusCode int
	Message    string
	Err        error
}

// AttemptFunc performs one try of a retryable call.
type AttemptFunc func(ctx context.Context) Outcome

// Policy is the immutable parameterization of one retry loop.
type Policy struct {
	MaxAttempts   int
	Interval      time.Duration
	RateLimitWait time.Duration
	Budget        time.Duration
}

// Retrier drives an attempt function through classification-aware bounded
// retries under a wall-clock budget.
type Retrier struct {
	policy Policy
	sleep  func(time.Duration)
	now    func() time.Time
}

// NewRetrier builds a Retrier for the given policy.
func NewRetrier(policy Policy) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, sleep: time.Sleep, now: time.Now}
}

// Policy returns the retrier's parameterization.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs attempt until it succeeds, fails permanently, exhausts the attempt
// count, or exceeds the wall-clock budget. The budget check runs before each
// attempt and wins over remaining attempts: a slow attempt is never retried
// past the deadline.
func (r *Retrier) Do(ctx context.Context, attempt AttemptFunc) error {
	start := r.now()
	var last Outcome

	for i := 0; i < r.policy.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.policy.Budget > 0 {
			if elapsed := r.now().Sub(start); elapsed >= r.policy.Budget {
				return &TimeoutError{Budget: r.policy.Budget, Elapsed: elapsed, Attempts: i}
			}
		}

		out := attempt(ctx)
		if out.OK {
			return nil
		}
		last = out

		var malformed *MalformedResponseError
		if errors.As(out.Err, &malformed) {
			return &PermanentError{StatusCode: out.StatusCode, Message: out.Message, Cause: out.Err}
		}

		class := Classify(out.StatusCode)
		logutil.Debugf("attempt %d/%d failed: status=%d class=%s msg=%q",
			i+1, r.policy.MaxAttempts, out.StatusCode, class, out.Message)

		switch class {
		case ClassPermanent:
			return &PermanentError{StatusCode: out.StatusCode, Message: out.Message, Cause: out.Err}
		case ClassRateLimit:
			if i < r.policy.MaxAttempts-1 {
				r.sleep(r.policy.RateLimitWait)
			}
		default:
			if i < r.policy.MaxAttempts-1 {
				r.sleep(r.policy.Interval)
			}
		}
	}

	return &ExhaustedError{Attempts: r.policy.MaxAttempts, Last: last}
}
