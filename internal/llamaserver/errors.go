package llamaserver

import (
	"errors"
	"fmt"
)

// startupError signals that the handle could not be constructed: binary not
// found, child exited before healthy, or the health check timed out. It
// carries enough detail (underlying error, exit code, elapsed time) for the
// caller to render an actionable message.
type startupError struct {
	reason string
	err    error
}

func (e *startupError) Error() string {
	if e.err != nil {
		return "llama-server startup failed: " + e.reason + ": " + e.err.Error()
	}
	return "llama-server startup failed: " + e.reason
}

func (e *startupError) Unwrap() error { return e.err }

// IsStartupFailure reports whether err indicates the server never became
// usable.
func IsStartupFailure(err error) bool {
	var se *startupError
	return errors.As(err, &se)
}

// contextExceededError maps the server's 400 "exceed_context_size_error"
// response. Callers can react specifically (raise ctx-size, shorten prompt)
// instead of treating it as a crash.
type contextExceededError struct{ detail string }

func (e *contextExceededError) Error() string {
	return "request exceeds the available context size, try increasing it: " + e.detail
}

// IsContextExceeded reports whether err is the server's context-size
// rejection.
func IsContextExceeded(err error) bool {
	var ce *contextExceededError
	return errors.As(err, &ce)
}

// transientResponseError signals a response missing an expected field, seen
// occasionally right after server start. The logits path retries these
// locally before escalating.
type transientResponseError struct {
	field string
	body  string
}

func (e *transientResponseError) Error() string {
	return fmt.Sprintf("unexpected response format: %q not found in %s", e.field, e.body)
}

// IsTransientResponse reports whether err indicates a malformed-but-retryable
// server response.
func IsTransientResponse(err error) bool {
	var te *transientResponseError
	return errors.As(err, &te)
}

// httpStatusError is any non-2xx response that is not the context-size case.
// Generation requests are not retried: replays have side effects on the
// server-side prompt cache.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llama-server http error: status %d: %s", e.status, e.body)
}
