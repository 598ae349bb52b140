package publish

import (
	"fmt"
	"strings"
	"time"
)

// MissingEnvError is returned when required configuration is missing.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// MalformedResponseError indicates a response body the caller could not
// decode into its typed record. Retrying a response the code cannot
// understand is pointless, so the retry controller treats it as permanent.
type MalformedResponseError struct {
	Endpoint string
	Cause    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// PermanentError is a failure that classification proved unrecoverable.
// The retry controller surfaces it without consuming remaining attempts.
type PermanentError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("permanent failure (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("permanent failure: %v", e.Cause)
	}
	return fmt.Sprintf("permanent failure (status %d)", e.StatusCode)
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// TimeoutError reports that a retry loop's wall-clock budget expired before
// the attempt count did.
type TimeoutError struct {
	Budget   time.Duration
	Elapsed  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("retry budget of %s exceeded after %d attempt(s)", e.Budget, e.Attempts)
}

// ExhaustedError reports that every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     Outcome
}

func (e *ExhaustedError) Error() string {
	if e.Last.Message != "" {
		return fmt.Sprintf("giving up after %d attempt(s): %s", e.Attempts, e.Last.Message)
	}
	return fmt.Sprintf("giving up after %d attempt(s) (last status %d)", e.Attempts, e.Last.StatusCode)
}

// MediaProcessingError reports a terminal transcoding failure. It is never
// retried; the provider has already given up on the asset.
type MediaProcessingError struct {
	Provider string
	Detail   string
}

func (e *MediaProcessingError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s media processing failed: %s", e.Provider, e.Detail)
	}
	return fmt.Sprintf("%s media processing failed", e.Provider)
}
