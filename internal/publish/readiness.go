package publish

import (
	"context"
	"fmt"
	"time"
)

// ContainerStatus is the provider-reported processing state of a media
// container.
type ContainerStatus int

const (
	StatusPending ContainerStatus = iota
	StatusProcessing
	StatusFinished
	StatusError
)

func (s ContainerStatus) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusError:
		return "error"
	case StatusProcessing:
		return "processing"
	default:
		return "pending"
	}
}

// ParseContainerStatus maps a provider status string onto the shared enum.
// Anything unrecognized counts as still processing, which keeps the poll
// loop going until a terminal state or the attempt cap.
func ParseContainerStatus(raw string) ContainerStatus {
	switch raw {
	case "FINISHED":
		return StatusFinished
	case "ERROR":
		return StatusError
	case "IN_PROGRESS", "PROCESSING":
		return StatusProcessing
	default:
		return StatusPending
	}
}

// StatusFunc queries the current processing status of one container. A
// returned error aborts polling; status-check failures are not retried.
type StatusFunc func(ctx context.Context) (ContainerStatus, error)

// PollPolicy bounds one media-readiness wait. Grace is slept once after the
// provider reports Finished so its state is fully committed before a publish
// is attempted.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Grace       time.Duration
}

// Poller waits for asynchronous transcoding to reach a terminal state.
type Poller struct {
	provider string
	policy   PollPolicy
	sleep    func(time.Duration)
}

// NewPoller builds a Poller for the given provider and policy.
func NewPoller(provider string, policy PollPolicy) *Poller {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Poller{provider: provider, policy: policy, sleep: time.Sleep}
}

// Wait polls check on the configured interval until the container is
// Finished (success, after the grace sleep), Errored (immediate
// MediaProcessingError, never retried), or the attempt cap is reached.
func (p *Poller) Wait(ctx context.Context, check StatusFunc) error {
	for i := 0; i < p.policy.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := check(ctx)
		if err != nil {
			return err
		}

		switch status {
		case StatusFinished:
			p.sleep(p.policy.Grace)
			return nil
		case StatusError:
			return &MediaProcessingError{Provider: p.provider}
		}

		if i < p.policy.MaxAttempts-1 {
			p.sleep(p.policy.Interval)
		}
	}

	return fmt.Errorf("%s media not ready after %d status checks", p.provider, p.policy.MaxAttempts)
}
