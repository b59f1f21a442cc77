package transcription

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured marks a backend slot with no capability behind it
	ErrNotConfigured = errors.New("backend not configured")
	// ErrNoUsableContent marks a backend that answered with too little text
	ErrNoUsableContent = errors.New("backend returned no usable text")
)

// Backend turns an audio file into text. Implementations must be safe to
// call from one goroutine at a time; the pipeline never calls them concurrently.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, path string) (string, error)
}

// BackendError wraps a transient failure reported by a backend
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Attempt records what happened when the pipeline tried one backend slot
type Attempt struct {
	Backend string
	Err     error
}
