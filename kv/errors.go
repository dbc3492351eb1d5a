package kv

import "errors"

// RetryableError wraps an underlying store error that a caller should
// retry (a transaction conflict, a transient network error against the
// real FDB-style backend). NonRetryableError wraps one it should not.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "kv: retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "kv: non-retryable: " + e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err (or anything it wraps) is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// ErrCancelled is returned when a blocking KV operation's context is
// cancelled before the operation completes.
var ErrCancelled = errors.New("kv: operation cancelled")

// ErrTimeout is returned when a blocking KV operation exceeds its deadline.
var ErrTimeout = errors.New("kv: operation timed out")
