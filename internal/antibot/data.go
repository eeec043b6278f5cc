package antibot

/*
Responsibilities

- Inspect a fetched response's status, headers, and body for anti-bot
  countermeasures
- Return a verdict the worker can act on before handing content to the
  parser

Detectors are stateless and run in a fixed order; the first to fire wins.
Matching is case-insensitive substring search, deliberately crude: the goal
is a cheap advisory signal, not a definitive classification.
*/

import (
	"fmt"

	"github.com/keruna/crawlkit/pkg/failure"
)

// SuggestedAction tells the caller what to do about a detected block.
type SuggestedAction string

const (
	ActionRetryLater   SuggestedAction = "retry_later"
	ActionChangeProxy  SuggestedAction = "change_proxy"
	ActionChangeUA     SuggestedAction = "change_user_agent"
	ActionAbandon      SuggestedAction = "abandon"
)

// DetectorName identifies which detector in the chain fired.
type DetectorName string

const (
	DetectorCaptcha        DetectorName = "captcha"
	DetectorRateLimit      DetectorName = "rate_limit"
	DetectorIPBlock        DetectorName = "ip_block"
	DetectorJSChallenge    DetectorName = "js_challenge"
	DetectorCookieTracking DetectorName = "cookie_tracking"
	DetectorUserAgent      DetectorName = "user_agent"
	DetectorRequestDelay   DetectorName = "request_delay"
)

// Verdict is what a single detector (or the chain as a whole) concluded.
type Verdict struct {
	Blocked           bool
	Detector          DetectorName
	Reason            string
	RetryAfterSeconds int
	SuggestedAction    SuggestedAction
}

// Response is the subset of a fetch outcome the detector chain needs. It is
// deliberately narrow so the chain never depends on the fetcher package.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string][]string
}

// DetectionError wraps a Blocked verdict as a failure.ClassifiedError so it
// can flow through the same retry-classification path as any other
// pipeline failure.
type DetectionError struct {
	Verdict           Verdict
	RetryAfterSeconds int
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("anti-bot detected: %s (%s)", e.Verdict.Detector, e.Verdict.Reason)
}

// Severity is always recoverable: a detected block is worth another attempt
// (with a different proxy, UA, or after a cooldown), never an abort signal.
func (e *DetectionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *DetectionError) IsRetryable() bool {
	return true
}
