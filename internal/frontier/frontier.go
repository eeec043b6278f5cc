package frontier

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/keruna/crawlkit/internal/domaindelay"
	"github.com/keruna/crawlkit/internal/urlfilter"
	"github.com/keruna/crawlkit/internal/urlnorm"
)

/*
URL Frontier (§4.H)

Enqueue rejects a URL that the filter disallows, that is already in the
seen-set, or whose domain cannot currently be admitted per the Domain Delay
Manager; anything else is assigned a TaskId and queued. This means a
legitimate link discovered a moment after its domain's last fetch can be
dropped rather than merely delayed — that is the literal Enqueue contract,
not an oversight; Dequeue is where most admission actually happens.

Dequeue never blocks: it scans every queued entry, scores it against live
domain stats, and picks the highest-scoring entry whose domain currently
passes CanProcess. It then tries TryAcquireConcurrencyPermit for that one
entry only: if the permit is not available, Dequeue returns nothing for
this call, and lower-scoring entries are not tried in its place. Entries
that fail either gate stay queued for the next Dequeue call. Two callers racing to
dequeue for the same domain can therefore not both succeed, since the
concurrency permit is acquired before the entry is removed.
*/

// Frontier is the crawl-wide URL queue: dedup, priority ordering, and
// TaskId assignment. It never fetches, parses, or stores.
type Frontier struct {
	mu      sync.Mutex
	entries []*frontierEntry

	seen         *seenSet
	stats        *domainTracker
	taskIds      *taskIdGenerator
	delay        *domaindelay.Manager
	filter       *urlfilter.Filter
	highPriority map[string]struct{}
}

// New builds a Frontier. highPriorityDomains may be nil.
func New(delay *domaindelay.Manager, filter *urlfilter.Filter, highPriorityDomains map[string]struct{}) *Frontier {
	if highPriorityDomains == nil {
		highPriorityDomains = map[string]struct{}{}
	}
	return &Frontier{
		seen:         newSeenSet(),
		stats:        newDomainTracker(),
		taskIds:      newTaskIdGenerator(),
		delay:        delay,
		filter:       filter,
		highPriority: highPriorityDomains,
	}
}

// classifyRequestType infers the domaindelay.RequestType for a URL from its
// path, so admission gating and concurrency permits can be partitioned per
// content class rather than lumped under one per-domain bucket.
func classifyRequestType(u url.URL) domaindelay.RequestType {
	path := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return domaindelay.RequestPDF
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"),
		strings.HasSuffix(path, ".png"), strings.HasSuffix(path, ".gif"),
		strings.HasSuffix(path, ".webp"), strings.HasSuffix(path, ".svg"):
		return domaindelay.RequestImage
	case strings.HasPrefix(path, "/api/"), strings.Contains(path, "/api/v"):
		return domaindelay.RequestAPI
	case path == "", strings.HasSuffix(path, ".html"), strings.HasSuffix(path, ".htm"):
		return domaindelay.RequestHTML
	default:
		return domaindelay.RequestDefault
	}
}

// Enqueue admits req into the frontier. It returns false without side
// effects for a URL already seen, one the filter disallows, or one whose
// domain the Delay Manager currently refuses (invariant 6: duplicate
// enqueue is a no-op).
func (f *Frontier) Enqueue(req CrawlRequest) bool {
	if !f.filter.IsAllowed(req.Url) {
		return false
	}

	domain := req.Url.Hostname()
	reqType := classifyRequestType(req.Url)
	if f.delay != nil && !f.delay.CanProcess(domain, reqType) {
		return false
	}

	normalized := urlnorm.Normalize(req.Url.String())
	if !f.seen.AddIfAbsent(normalized) {
		return false
	}

	req.TaskId = f.taskIds.Next(req.Url, domain)
	req.QueuedAt = time.Now()

	f.mu.Lock()
	f.entries = append(f.entries, &frontierEntry{request: req})
	f.mu.Unlock()
	return true
}

// Dequeue returns the highest-scoring admissible request, acquiring its
// domain's concurrency permit and recording the access before returning it.
// Reports false if the frontier is empty, every queued domain is currently
// throttled, or the chosen entry's concurrency permit is not available.
func (f *Frontier) Dequeue() (CrawlRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	bestIdx := -1
	var bestScore float64
	var bestType domaindelay.RequestType
	var bestDomain string

	for i, e := range f.entries {
		domain := e.request.Url.Hostname()
		reqType := classifyRequestType(e.request.Url)
		if f.delay != nil && !f.delay.CanProcess(domain, reqType) {
			continue
		}
		s := score(e.request, now, f.stats.Snapshot(domain), f.highPriority)
		if bestIdx == -1 || s > bestScore {
			bestIdx = i
			bestScore = s
			bestDomain = domain
			bestType = reqType
		}
	}

	if bestIdx == -1 {
		return CrawlRequest{}, false
	}

	if f.delay != nil && !f.delay.TryAcquireConcurrencyPermit(bestDomain, bestType) {
		// The domain's concurrency permits are all held by in-flight
		// requests; leave the entry queued for the next Dequeue call.
		return CrawlRequest{}, false
	}

	entry := f.entries[bestIdx]
	f.entries = append(f.entries[:bestIdx], f.entries[bestIdx+1:]...)

	if f.delay != nil {
		f.delay.RecordAccess(bestDomain, bestType)
	}

	entry.request.StartedAt = now
	return entry.request, true
}

// Release returns req's domain concurrency permit once its fetch has
// completed, successfully or not, and folds the outcome into the domain's
// running stats for future scoring.
func (f *Frontier) Release(req CrawlRequest, success bool, downloadMs int64) {
	domain := req.Url.Hostname()
	if f.delay != nil {
		f.delay.Release(domain, classifyRequestType(req.Url))
	}
	f.stats.RecordOutcome(domain, success, downloadMs)
}

// Len reports how many requests are currently queued, throttled or not.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// SeenCount reports how many distinct normalized URLs have ever been
// admitted, for statistics reporting.
func (f *Frontier) SeenCount() int {
	return f.seen.Size()
}

// Snapshot copies every currently queued request and every normalized URL
// ever admitted, for on-disk state persistence. Entries mid-fetch (already
// dequeued) are not included; callers that want them resumable must
// re-enqueue them themselves before snapshotting.
func (f *Frontier) Snapshot() (pending []CrawlRequest, seenUrls []string) {
	f.mu.Lock()
	pending = make([]CrawlRequest, len(f.entries))
	for i, e := range f.entries {
		pending[i] = e.request
	}
	f.mu.Unlock()
	return pending, f.seen.Snapshot()
}

// Restore replaces the frontier's queued entries and seen-set with a prior
// Snapshot's output. It bypasses Enqueue's filter/delay/dedup gating since
// these requests were already admitted once; it does not re-assign TaskIds
// or re-check domain admission.
func (f *Frontier) Restore(pending []CrawlRequest, seenUrls []string) {
	f.mu.Lock()
	f.entries = make([]*frontierEntry, len(pending))
	for i, req := range pending {
		f.entries[i] = &frontierEntry{request: req}
	}
	f.mu.Unlock()
	f.seen.Restore(seenUrls)
}
