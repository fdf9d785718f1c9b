package disk

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a recording cannot be located, either
// because the remote store answered 404 or because candidate probing
// and the fallback directory search were both exhausted. It is an
// expected outcome, not a failure.
var ErrNotFound = errors.New("recording not found")

// IntegrationError is a transient failure talking to the remote store:
// a connection-level error or a malformed response on a call that was
// expected to succeed. Callers may retry.
type IntegrationError struct {
	Op        string // "download-link", "download", "list"
	Path      string
	Offset    int
	Limit     int
	Retryable bool
	Err       error
}

func (e *IntegrationError) Error() string {
	if e.Op == "list" {
		return fmt.Sprintf("storage %s failed (offset=%d limit=%d): %v", e.Op, e.Offset, e.Limit, e.Err)
	}
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}
