package proxypool

import (
	"errors"
	"fmt"

	"github.com/keruna/crawlkit/pkg/failure"
)

var ErrInvalidProxyFormat = errors.New("invalid proxy format")
var ErrNoEnabledProxies = errors.New("no enabled proxies available")

// PoolError reports a pool-level failure (no enabled proxy left) as a
// failure.ClassifiedError so it can flow through the same retry path as any
// other pipeline failure. Test reports probe failures as a bool, not as a
// PoolError.
type PoolError struct {
	Message   string
	Retryable bool
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("proxy pool error: %s", e.Message)
}

func (e *PoolError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *PoolError) IsRetryable() bool {
	return e.Retryable
}
