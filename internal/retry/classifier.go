package retry

import (
	"math"
	"sync"
	"time"

	"github.com/keruna/crawlkit/internal/antibot"
	"github.com/keruna/crawlkit/internal/extractor"
	"github.com/keruna/crawlkit/internal/fetcher"
	"github.com/keruna/crawlkit/internal/storage"
	"github.com/keruna/crawlkit/pkg/failure"
	pkgretry "github.com/keruna/crawlkit/pkg/retry"
)

// domainErrorStats tracks a rolling error count per domain so ShouldRetry can
// refuse to keep hammering a domain that is failing most of its requests,
// even when individual attempts remain under MaxRetries.
type domainErrorStats struct {
	attempts int
	failures int
}

// Classifier turns a failure from any pipeline stage into an ErrorKind,
// decides whether it is worth retrying, and computes the delay before the
// next attempt. It holds no reference to the engine, frontier, or any other
// collaborator — only the tuning knobs it needs.
type Classifier struct {
	maxRetries      int
	maxDomainErrorRate float64

	mu      sync.Mutex
	domains map[string]*domainErrorStats
}

// NewClassifier builds a Classifier bound to the given retry budget.
// Once a domain has at least 5 recorded attempts and its failure rate
// reaches maxDomainErrorRate, ShouldRetry refuses further retries for it
// (0 disables the check). It does not affect admission.
func NewClassifier(maxRetries int, maxDomainErrorRate float64) *Classifier {
	return &Classifier{
		maxRetries:         maxRetries,
		maxDomainErrorRate: maxDomainErrorRate,
		domains:            make(map[string]*domainErrorStats),
	}
}

// Classify maps a ClassifiedError from any pipeline package to an ErrorKind.
// Unrecognized error types map to KindConfig when their severity is fatal
// and to KindOther otherwise; both kinds are non-retryable.
func Classify(domain string, err failure.ClassifiedError) Classified {
	c := Classified{Kind: KindOther, Domain: domain}

	switch e := err.(type) {
	case *fetcher.FetchError:
		switch e.Cause {
		case fetcher.ErrCauseTimeout:
			c.Kind = KindTimeout
		case fetcher.ErrCauseNetworkFailure, fetcher.ErrCauseRequest5xx, fetcher.ErrCauseReadResponseBodyError:
			c.Kind = KindNetwork
		case fetcher.ErrCauseRequestTooMany:
			c.Kind = KindAntiBot
		default:
			c.Kind = KindOther
		}
	case *extractor.ExtractionError:
		c.Kind = KindParse
	case *storage.StorageError:
		c.Kind = KindStorage
	case *antibot.DetectionError:
		c.Kind = KindAntiBot
		if e.RetryAfterSeconds > 0 {
			c.HasRetryAfter = true
			c.RetryAfter = time.Duration(e.RetryAfterSeconds) * time.Second
		}
	case *pkgretry.RetryError:
		c.Kind = KindConcurrency
	default:
		if err.Severity() == failure.SeverityFatal {
			c.Kind = KindConfig
		}
	}
	return c
}

// ShouldRetry reports whether attempt (1-indexed, the attempt that just
// failed) should be followed by another try of the same request on domain.
func (c *Classifier) ShouldRetry(cl Classified, attempt int) bool {
	if cl.WrapsConfig {
		return false
	}
	if !retryable[cl.Kind] {
		return false
	}
	if attempt >= c.maxRetries {
		return false
	}
	if c.maxDomainErrorRate > 0 && c.errorRateExceeded(cl.Domain) {
		return false
	}
	return true
}

// RecordOutcome feeds one attempt's pass/fail result into the per-domain
// error-rate tracker consulted by ShouldRetry.
func (c *Classifier) RecordOutcome(domain string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.domains[domain]
	if !ok {
		s = &domainErrorStats{}
		c.domains[domain] = s
	}
	s.attempts++
	if failed {
		s.failures++
	}
}

func (c *Classifier) errorRateExceeded(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.domains[domain]
	if !ok || s.attempts < 5 {
		return false
	}
	return float64(s.failures)/float64(s.attempts) >= c.maxDomainErrorRate
}

// Delay computes the backoff before the next attempt: min(60s, baseDelay *
// 1.5^attempt), overridden by a downstream Retry-After when present.
func Delay(cl Classified, attempt int) time.Duration {
	if cl.HasRetryAfter && cl.RetryAfter > 0 {
		return cl.RetryAfter
	}
	base := baseDelay[cl.Kind]
	if base == 0 {
		return 0
	}
	scaled := float64(base) * math.Pow(1.5, float64(attempt))
	d := time.Duration(scaled)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
