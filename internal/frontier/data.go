package frontier

/*
Frontier Responsibilities

- Deduplicate discovered URLs against a seen-set, for the lifetime of the
  crawl
- Order admitted requests by dynamic priority
- Assign each admitted request a unique TaskId
- Never fetch, parse, or store; it only decides what is next and whether a
  URL has already been accounted for

A request that leaves the frontier via Dequeue is guaranteed already to be
in the seen set (invariant 1) and the seen set is never pruned mid-crawl.
*/

import (
	"net/url"
	"time"
)

// Method is the HTTP method a CrawlRequest will be fetched with.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// CrawlRequest is a unit of work: a URL plus everything the pipeline needs
// to fetch, score, and trace it. Url is always post-normalization once the
// request has passed through Enqueue.
type CrawlRequest struct {
	Url       url.URL
	Method    Method
	Referrer  string
	Depth     int
	Priority  int
	TaskId    string
	QueuedAt  time.Time
	StartedAt time.Time
}

// frontierEntry wraps a queued CrawlRequest. The store keeps entries in a
// flat slice and recomputes each one's score on every Dequeue scan, so no
// score is cached here; see scoring.go for why.
type frontierEntry struct {
	request CrawlRequest
}
