package retry

/*
Responsibilities

- Classify a failed fetch or extraction into an ErrorKind
- Decide whether the failure is worth retrying
- Compute the backoff delay for the next attempt

The classifier never performs I/O and never sleeps; it only answers
questions. Sleeping between attempts is the caller's responsibility
(pkg/retry.Retry).
*/

import "time"

// ErrorKind is the closed taxonomy errors are bucketed into before a retry
// decision is made. Unlike metadata.ErrorCause, ErrorKind DOES drive control
// flow: it is the sole input to ShouldRetry and Delay.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNetwork
	KindTimeout
	KindAntiBot
	KindParse
	KindStorage
	KindConfig
	KindConcurrency
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAntiBot:
		return "anti_bot"
	case KindParse:
		return "parse"
	case KindStorage:
		return "storage"
	case KindConfig:
		return "config"
	case KindConcurrency:
		return "concurrency"
	default:
		return "other"
	}
}

// baseDelay is the table from the component design: one fixed starting delay
// per ErrorKind, scaled by Delay's exponential formula.
var baseDelay = map[ErrorKind]time.Duration{
	KindNetwork:     2 * time.Second,
	KindTimeout:     5 * time.Second,
	KindAntiBot:     10 * time.Second,
	KindConcurrency: 1 * time.Second,
	KindParse:       3 * time.Second,
	KindStorage:     3 * time.Second,
	KindConfig:      0,
	KindOther:       3 * time.Second,
}

// retryable is the table from the component design: whether a kind is ever
// worth retrying, independent of attempt count.
var retryable = map[ErrorKind]bool{
	KindNetwork:     true,
	KindTimeout:     true,
	KindAntiBot:     true,
	KindConcurrency: true,
	KindParse:       false,
	KindStorage:     false,
	KindConfig:      false,
	KindOther:       false,
}

const maxDelay = 60 * time.Second

// Classified is the outcome of classifying one failure: its kind, whether a
// downstream Retry-After header should override the computed delay, and the
// domain the failure was observed on (for error-rate tracking).
type Classified struct {
	Kind           ErrorKind
	Domain         string
	RetryAfter     time.Duration
	HasRetryAfter  bool
	WrapsConfig    bool
}
