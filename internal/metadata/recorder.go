package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)

Recording is observational only and MUST NOT influence scheduling, retries,
or crawl termination: every method here returns nothing a caller could
branch on.
*/

import (
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logfmt/logfmt"
)

// MetadataSink receives fetch, error, and artifact events as they happen
// during a crawl. Implementations must be safe for concurrent use by the
// worker pool.
type MetadataSink interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

// CrawlFinalizer receives exactly one terminal summary when a crawl ends.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// NoopSink discards every event. Embed it in a test spy to get a
// MetadataSink for free and override only the methods the test cares about.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int) {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)         {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)         {}

// Recorder is the crawl's MetadataSink/CrawlFinalizer: it emits one logfmt
// line per event to the configured writer and keeps lightweight in-memory
// counters queryable through Snapshot, for Engine.GetStatistics.
type Recorder struct {
	mu  sync.Mutex
	enc *logfmt.Encoder

	fetchCount atomic.Int64
	errorCount atomic.Int64
	assetCount atomic.Int64
}

// NewRecorder builds a Recorder writing logfmt lines to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: logfmt.NewEncoder(w)}
}

func (r *Recorder) emit(pairs ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.EncodeKeyvals(pairs...); err != nil {
		return
	}
	_ = r.enc.EndRecord()
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.fetchCount.Add(1)
	r.emit(
		"event", "fetch",
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"content_type", contentType,
		"retry_count", retryCount,
		"depth", crawlDepth,
	)
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.assetCount.Add(1)
	r.emit(
		"event", "asset_fetch",
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"retry_count", retryCount,
	)
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	r.errorCount.Add(1)
	pairs := []interface{}{
		"event", "error",
		"time", observedAt.Format(time.RFC3339),
		"package", packageName,
		"action", action,
		"cause", cause.String(),
		"error", errorString,
	}
	for _, a := range attrs {
		pairs = append(pairs, string(a.Key), a.Value)
	}
	r.emit(pairs...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	pairs := []interface{}{
		"event", "artifact",
		"kind", kind.String(),
		"path", path,
	}
	for _, a := range attrs {
		pairs = append(pairs, string(a.Key), a.Value)
	}
	r.emit(pairs...)
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.emit(
		"event", "crawl_finished",
		"total_pages", totalPages,
		"total_errors", totalErrors,
		"total_assets", totalAssets,
		"duration_ms", duration.Milliseconds(),
	)
}

// Snapshot is a point-in-time read of the Recorder's running counters.
// Strictly observational: Engine.GetStatistics surfaces this but nothing in
// the crawl pipeline branches on it.
type Snapshot struct {
	FetchCount int64
	ErrorCount int64
	AssetCount int64
}

func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		FetchCount: r.fetchCount.Load(),
		ErrorCount: r.errorCount.Load(),
		AssetCount: r.assetCount.Load(),
	}
}

func (s Snapshot) String() string {
	return "fetches=" + strconv.FormatInt(s.FetchCount, 10) +
		" errors=" + strconv.FormatInt(s.ErrorCount, 10) +
		" assets=" + strconv.FormatInt(s.AssetCount, 10)
}
