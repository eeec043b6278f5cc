package retry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/keruna/crawlkit/pkg/failure"
	"github.com/keruna/crawlkit/pkg/timeutil"
)

// Retry executes the provided function with retry logic.
// It will retry the function up to MaxAttempts times, applying exponential backoff
// with jitter between attempts. Only retryable errors will trigger a retry.
//
// Type parameter T represents the return type of the function being retried.
// Returns a Result containing the value (if successful), error (if failed),
// and the number of attempts made.
func Retry[T any](retryParam RetryParam, fn func() (T, failure.ClassifiedError)) Result[T] {
	var lastErr failure.ClassifiedError
	var zero T

	if retryParam.MaxAttempts < 1 {
		return Result[T]{
			value:    zero,
			err:      &RetryError{Message: "max attempt cannot be 0", Cause: ErrZeroAttempt, Retryable: true},
			attempts: 0,
		}
	}

	rng := rand.New(rand.NewSource(retryParam.RandomSeed))

	for attempt := 1; attempt <= retryParam.MaxAttempts; attempt++ {
		result, err := fn()

		if err == nil {
			return NewSuccessResult(result, attempt)
		}

		lastErr = err

		if !isErrorRetryable(err) {
			return Result[T]{value: zero, err: err, attempts: attempt}
		}

		if attempt == retryParam.MaxAttempts {
			break
		}

		backoffDelay := timeutil.ExponentialBackoffDelay(
			attempt,
			retryParam.Jitter,
			*rng,
			retryParam.BackoffParam,
		)

		time.Sleep(backoffDelay)
	}

	return Result[T]{
		value: zero,
		err: &RetryError{
			Message:   fmt.Sprintf("exhausted %d attempts. Last error: %v", retryParam.MaxAttempts, lastErr),
			Cause:     ErrExhaustedAttempts,
			Retryable: true,
		},
		attempts: retryParam.MaxAttempts,
	}
}

// isErrorRetryable checks if an error should be retried by consulting its
// IsRetryable method, defaulting to retryable when the method is absent.
func isErrorRetryable(err failure.ClassifiedError) bool {
	type hasRetryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(hasRetryable); ok {
		return r.IsRetryable()
	}
	return true
}
