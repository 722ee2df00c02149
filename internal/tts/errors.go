package tts

import (
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable matches any *BackendUnavailableError.
var ErrBackendUnavailable = errors.New("synthesis backend unavailable")

// ErrEmptyAudio is returned when the backend answers without audio bytes.
var ErrEmptyAudio = errors.New("backend returned empty audio")

// BackendUnavailableError means the backend stayed unreachable for the
// whole reconnect window. Callers should pause or fail the job rather than
// mark a single chunk as failed.
type BackendUnavailableError struct {
	URL    string
	Waited time.Duration
	Err    error
}

func (e *BackendUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis backend %s unavailable after %s: %v", e.URL, e.Waited.Round(time.Second), e.Err)
	}
	return fmt.Sprintf("synthesis backend %s unavailable after %s", e.URL, e.Waited.Round(time.Second))
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

// ChunkSynthesisError means a reachable backend kept rejecting one chunk.
type ChunkSynthesisError struct {
	Attempts int
	Err      error
}

func (e *ChunkSynthesisError) Error() string {
	return fmt.Sprintf("chunk synthesis failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ChunkSynthesisError) Unwrap() error { return e.Err }

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// Retryable reports whether the status may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}
