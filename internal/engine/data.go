package engine

/*
Responsibilities

- Own the crawl's lifecycle state machine (Stopped/Running/Paused/Stopping)
- Run the worker pool that drains the frontier, one CrawlRequest at a time
  per worker, through robots, fetch-with-retry, anti-bot, and parse
- Fan terminal outcomes out to subscribed observers without ever blocking
  on them
- Persist and restore on-disk crawl state across a Stop/Start cycle under
  the same job id

Every other component package is a leaf this package wires together;
nothing downstream of Engine imports it back.
*/

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/keruna/crawlkit/internal/extractor"
	"github.com/keruna/crawlkit/internal/fetcher"
	"github.com/keruna/crawlkit/internal/frontier"
	"github.com/keruna/crawlkit/internal/robots"
	"github.com/keruna/crawlkit/pkg/failure"
)

// State is the engine's lifecycle state, per the component design's
// Stopped -> Running -> {Paused <-> Running} -> Stopping -> Stopped machine.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// CrawlState is the point-in-time snapshot GetCurrentCrawlState returns.
type CrawlState struct {
	JobId          string
	Status         State
	PagesCompleted int
	PagesFailed    int
	QueueDepth     int
	SeenCount      int
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Observer receives terminal crawl events. Implementations must not block:
// every notification is dispatched on its own goroutine, so a slow or
// panicking observer can delay or lose its own callback but never the
// worker that produced it.
type Observer interface {
	OnCrawlCompleted(result CompletedResult)
	OnCrawlError(req frontier.CrawlRequest, err failure.ClassifiedError)
	OnUrlDiscovered(discovered url.URL, depth int, parent url.URL)
	OnStatusChanged(previous State, current State, message string)
}

// CompletedResult is what OnCrawlCompleted hands observers: enough to
// report progress without forcing every observer to understand storage's
// CrawlResult shape directly.
type CompletedResult struct {
	Url        url.URL
	Depth      int
	StatusCode int
	Title      string
	FromCache  bool
}

// robotsDecider is the narrow slice of robots.CachedRobot the engine
// depends on, so tests can inject a fake without a real HTTP round trip.
// The teacher's own scheduler.go declares an equivalent robots.Robot field
// type that does not actually resolve to an interface in the retrieved
// source, so this is defined locally rather than reused.
type robotsDecider interface {
	Decide(u url.URL) (robots.Decision, *robots.RobotsError)
}

// fetchExecutor is the narrow slice of fetcher.Executor the engine depends
// on.
type fetchExecutor interface {
	Download(ctx context.Context, fetchUrl url.URL, referrer string) (fetcher.DownloadResult, failure.ClassifiedError)
}

// contentParser is the narrow slice of extractor.Parser the engine depends
// on.
type contentParser interface {
	Parse(sourceUrl url.URL, download fetcher.DownloadResult) (extractor.ParseResult, failure.ClassifiedError)
}

// EngineError reports a fatal condition raised by the engine itself
// (invalid lifecycle transition, unreadable state file) rather than by one
// of its collaborators.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s", e.Message)
}

func (e *EngineError) Severity() failure.Severity {
	return failure.SeverityFatal
}
