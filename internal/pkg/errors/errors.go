package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")

	// ErrEncoding means the encoder rejected its input (oversized or
	// malformed). Recoverable by re-chunking smaller.
	ErrEncoding = errors.New("encoding failed")

	// ErrIndexUnavailable means the vector index is not built or its
	// snapshot is stale. Fatal for the session, never retried.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrLLMUnavailable means the gateway exhausted retries or its
	// circuit breaker is open.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrCancelled means the session honored cooperative cancellation.
	ErrCancelled = errors.New("session cancelled")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsLLMUnavailable(err error) bool {
	return errors.Is(err, ErrLLMUnavailable)
}
