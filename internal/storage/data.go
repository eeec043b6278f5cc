package storage

/*
Responsibilities

- Own the terminal record of a crawl (§3 CrawlResult) once the worker pool
  hands it off
- Answer by-domain and by-URL lookups, counts, and aggregate statistics
- Persist a full backup and support wiping the store between runs

Storage never fetches, parses, or schedules; it only remembers what the
pipeline already decided.
*/

import (
	"net/url"
	"time"
)

// DownloadResult is the outcome of one fetch attempt, the §3 DownloadResult.
// It is storage's own copy of the fetcher's result shape so this package
// never imports internal/fetcher: storage is a leaf the rest of the engine
// depends on, not the other way around.
type DownloadResult struct {
	Url            url.URL
	IsSuccess      bool
	StatusCode     int
	ContentType    string
	Content        string
	RawData        []byte
	Headers        map[string][]string
	DownloadTimeMs int64
	ErrorMessage   string
	ErrorType      string
}

// ParseResult is the outcome of extraction, the §3 ParseResult. Storage's
// own copy for the same leaf-dependency reason as DownloadResult.
type ParseResult struct {
	Url           url.URL
	IsSuccess     bool
	Title         string
	TextContent   string
	Links         []string
	ExtractedData map[string]string
	ErrorMessage  string
}

// CrawlResult is the terminal record handed to storage, the §3 CrawlResult.
// Once Save returns, the record belongs to storage; the engine keeps no
// further reference to it.
type CrawlResult struct {
	RequestUrl      url.URL
	RequestDepth    int
	RequestPriority int
	TaskId          string
	Download        DownloadResult
	Parse           ParseResult
	ProcessedAt     time.Time
}

// Statistics is the aggregate view returned by GetStatistics.
type Statistics struct {
	TotalCount    int
	SuccessCount  int
	FailureCount  int
	DomainCounts  map[string]int
	OldestFetch   time.Time
	NewestFetch   time.Time
}
