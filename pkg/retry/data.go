package retry

import (
	"time"

	"github.com/keruna/crawlkit/pkg/timeutil"
)

// RetryParam holds the parameters for retry logic.
// These parameters are passed from outside (e.g., config) and should not
// be known by the retry handler internally.
type RetryParam struct {
	BaseDelay    time.Duration
	Jitter       time.Duration
	RandomSeed   int64
	MaxAttempts  int
	BackoffParam timeutil.BackoffParam
}

// NewRetryParam creates a new RetryParam with the given settings.
func NewRetryParam(
	baseDelay time.Duration,
	jitter time.Duration,
	randomSeed int64,
	maxAttempts int,
	backoffParam timeutil.BackoffParam,
) RetryParam {
	return RetryParam{
		BaseDelay:    baseDelay,
		Jitter:       jitter,
		RandomSeed:   randomSeed,
		MaxAttempts:  maxAttempts,
		BackoffParam: backoffParam,
	}
}

// Result carries the outcome of a Retry call: the value on success, the
// terminal error on failure, and how many attempts were actually made.
type Result[T any] struct {
	value    T
	err      error
	attempts int
}

// NewSuccessResult builds a Result for a function call that succeeded on
// the given attempt.
func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Err() error {
	return r.err
}

func (r Result[T]) Attempts() int {
	return r.attempts
}
