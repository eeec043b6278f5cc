package engine

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keruna/crawlkit/internal/antibot"
	"github.com/keruna/crawlkit/internal/config"
	"github.com/keruna/crawlkit/internal/domaindelay"
	"github.com/keruna/crawlkit/internal/extractor"
	"github.com/keruna/crawlkit/internal/fetcher"
	"github.com/keruna/crawlkit/internal/frontier"
	"github.com/keruna/crawlkit/internal/httpclientpool"
	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/internal/proxypool"
	"github.com/keruna/crawlkit/internal/retry"
	"github.com/keruna/crawlkit/internal/robots"
	"github.com/keruna/crawlkit/internal/storage"
	"github.com/keruna/crawlkit/internal/urlfilter"
	"github.com/keruna/crawlkit/pkg/failure"
	"github.com/keruna/crawlkit/pkg/timeutil"
)

// idlePollInterval is how long a worker backs off after finding the
// frontier empty before trying again. Deliberately short: the frontier's
// Dequeue is cheap and non-blocking, so a tight poll loop costs little and
// keeps worker-to-worker latency low once new work is enqueued.
const idlePollInterval = 200 * time.Millisecond

// storageFailureThreshold is how many consecutive Save failures the engine
// tolerates before treating storage as down and stopping the crawl, per
// §7's "storage write failure exceeding a configurable threshold is fatal".
const storageFailureThreshold = 5

const defaultProxyProbeURL = "https://www.google.com"

const defaultSeedPriority = 5

// noopFinalizer discards the terminal crawl summary, for callers that don't
// care to record one.
type noopFinalizer struct{}

func (noopFinalizer) RecordFinalCrawlStats(int, int, int, time.Duration) {}

// Engine is the crawl-wide Worker Pool (component K): the only component
// that owns goroutines. Every collaborator below it is a flat, constructor
// injected dependency with no reference back to Engine, per the component
// design's resolution of the teacher's cyclic-dependency flaw.
type Engine struct {
	cfg config.Config

	metadataSink   metadata.MetadataSink
	crawlFinalizer metadata.CrawlFinalizer

	filter       *urlfilter.Filter
	delay        *domaindelay.Manager
	frontier     *frontier.Frontier
	robot        robotsDecider
	classifier   *retry.Classifier
	antibotChain *antibot.Chain
	executor     fetchExecutor
	parser       contentParser
	store        storage.Store
	proxyPool    *proxypool.Pool
	clientPool   *httpclientpool.Pool
	sleeper      timeutil.Sleeper

	mu        sync.Mutex
	state     State
	jobId     string
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  *sync.Once

	pauseMu sync.Mutex
	pauseCh chan struct{}

	obsMu     sync.Mutex
	observers []Observer

	completedCount  atomic.Int64
	failedCount     atomic.Int64
	busyWorkers     atomic.Int32
	storageFailures atomic.Int32
	lastActivityAt  atomic.Pointer[time.Time]
}

// NewEngine wires every production collaborator from cfg: the URL filter,
// domain delay manager, frontier, robots cache, retry classifier, the
// anti-bot chain (only if cfg.EnableAntiBotDetection), the proxy pool (only
// if proxying is enabled and at least one proxy URL is configured), the
// HTTP client pool, the fetch executor, and the parser's DOM extractor plus
// its five named extractors.
func NewEngine(cfg config.Config, store storage.Store, metadataSink metadata.MetadataSink, crawlFinalizer metadata.CrawlFinalizer) (*Engine, error) {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	if crawlFinalizer == nil {
		crawlFinalizer = noopFinalizer{}
	}
	if store == nil {
		return nil, &EngineError{Message: "store must not be nil"}
	}

	filter := urlfilter.New(setToSlice(cfg.AllowedHosts()), cfg.BlockedPatterns())

	dd := cfg.DomainDelay()
	delayMgr := domaindelay.NewManager(domaindelay.Config{
		DefaultDelay: dd.DefaultDelay,
		MinDelay:     dd.MinDelay,
		MaxDelay:     dd.MaxDelay,
	})

	fr := frontier.New(delayMgr, filter, cfg.HighPriorityDomains())

	robot := robots.NewCachedRobot(metadataSink)
	robot.Init(cfg.UserAgent())

	classifier := retry.NewClassifier(cfg.RetryPolicy().MaxRetries, 0)

	var antibotChain *antibot.Chain
	if cfg.EnableAntiBotDetection() {
		antibotChain = antibot.NewChain(metadataSink)
	}

	var proxyPool *proxypool.Pool
	proxySettings := cfg.ProxySettings()
	if proxySettings.Enabled && len(proxySettings.ProxyUrls) > 0 {
		records := make([]proxypool.Record, 0, len(proxySettings.ProxyUrls))
		for _, raw := range proxySettings.ProxyUrls {
			rec, err := proxypool.Parse(raw, "", "")
			if err != nil {
				return nil, &EngineError{Message: fmt.Sprintf("invalid proxy url %q: %v", raw, err)}
			}
			records = append(records, rec)
		}
		proxyPool = proxypool.NewPool(records, proxypool.Strategy(proxySettings.RotationStrategy), defaultProxyProbeURL)
	}

	hcp := cfg.HttpClientPool()
	clientPool := httpclientpool.NewPool(httpclientpool.Config{
		MaxClients:            hcp.MaxClients,
		MaxClientsPerDomain:   hcp.MaxClientsPerDomain,
		MaxClientLifetime:     hcp.MaxClientLifetime,
		MaxIdleTime:           hcp.MaxIdleTime,
		EnableDomainIsolation: hcp.EnableDomainIsolation,
		CleanupInterval:       hcp.CleanupInterval,
		Timeout:               cfg.Timeout(),
		FollowRedirects:       cfg.FollowRedirects(),
	})

	executor := fetcher.NewExecutor(metadataSink, clientPool, proxyPool, proxySettings.Enabled, nil, cfg.Timeout())

	dom := extractor.NewDomExtractor(metadataSink, extractParamFrom(cfg))
	parser := extractor.NewParser(metadataSink, dom,
		extractor.NewContentExtractor(),
		extractor.NewLinkExtractor(),
		extractor.NewMetadataExtractor(),
		extractor.NewMarkdownExtractor(metadataSink),
		extractor.NewStructureExtractor(),
	)

	return NewEngineWithDeps(cfg, store, metadataSink, crawlFinalizer, fr, &robot, filter, delayMgr, classifier, antibotChain, executor, parser, proxyPool, clientPool, timeutil.NewRealSleeper()), nil
}

// NewEngineWithDeps builds an Engine from already-constructed collaborators,
// for tests that substitute fakes for the robots/fetch/parse boundary
// without standing up real HTTP. Mirrors the teacher's
// NewScheduler/NewSchedulerWithDeps split.
func NewEngineWithDeps(
	cfg config.Config,
	store storage.Store,
	metadataSink metadata.MetadataSink,
	crawlFinalizer metadata.CrawlFinalizer,
	fr *frontier.Frontier,
	robot robotsDecider,
	filter *urlfilter.Filter,
	delayMgr *domaindelay.Manager,
	classifier *retry.Classifier,
	antibotChain *antibot.Chain,
	executor fetchExecutor,
	parser contentParser,
	proxyPool *proxypool.Pool,
	clientPool *httpclientpool.Pool,
	sleeper timeutil.Sleeper,
) *Engine {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	if crawlFinalizer == nil {
		crawlFinalizer = noopFinalizer{}
	}
	if sleeper == nil {
		sleeper = timeutil.NewRealSleeper()
	}
	return &Engine{
		cfg:            cfg,
		metadataSink:   metadataSink,
		crawlFinalizer: crawlFinalizer,
		filter:         filter,
		delay:          delayMgr,
		frontier:       fr,
		robot:          robot,
		classifier:     classifier,
		antibotChain:   antibotChain,
		executor:       executor,
		parser:         parser,
		store:          store,
		proxyPool:      proxyPool,
		clientPool:     clientPool,
		sleeper:        sleeper,
		state:          StateStopped,
		stopOnce:       &sync.Once{},
	}
}

func extractParamFrom(cfg config.Config) extractor.ExtractParam {
	return extractor.ExtractParam{
		BodySpecificityBias:                 cfg.BodySpecificityBias(),
		LinkDensityThreshold:                cfg.LinkDensityThreshold(),
		ScoreMultiplierNonWhitespaceDivisor: cfg.ScoreMultiplierNonWhitespaceDivisor(),
		ScoreMultiplierParagraphs:           cfg.ScoreMultiplierParagraphs(),
		ScoreMultiplierHeadings:             cfg.ScoreMultiplierHeadings(),
		ScoreMultiplierCodeBlocks:           cfg.ScoreMultiplierCodeBlocks(),
		ScoreMultiplierListItems:            cfg.ScoreMultiplierListItems(),
		ThresholdMinNonWhitespace:           cfg.ThresholdMinNonWhitespace(),
		ThresholdMinHeadings:                cfg.ThresholdMinHeadings(),
		ThresholdMinParagraphsOrCode:        cfg.ThresholdMinParagraphsOrCode(),
		ThresholdMaxLinkDensity:             cfg.ThresholdMaxLinkDensity(),
	}
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Subscribe registers an observer for every future terminal event. Safe to
// call before or after Start.
func (e *Engine) Subscribe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) notify(fn func(Observer)) {
	e.obsMu.Lock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.obsMu.Unlock()
	for _, o := range observers {
		go func(o Observer) {
			defer func() { _ = recover() }()
			fn(o)
		}(o)
	}
}

func (e *Engine) emitCompleted(result CompletedResult) {
	e.notify(func(o Observer) { o.OnCrawlCompleted(result) })
}

func (e *Engine) emitError(req frontier.CrawlRequest, err failure.ClassifiedError) {
	e.notify(func(o Observer) { o.OnCrawlError(req, err) })
}

func (e *Engine) emitDiscovered(discovered url.URL, depth int, parent url.URL) {
	e.notify(func(o Observer) { o.OnUrlDiscovered(discovered, depth, parent) })
}

func (e *Engine) setState(next State, message string) {
	e.mu.Lock()
	previous := e.state
	e.state = next
	e.mu.Unlock()
	if previous == next {
		return
	}
	e.notify(func(o Observer) { o.OnStatusChanged(previous, next, message) })
}

// AddSeedUrls enqueues urls at depth 0. Safe to call before Start (to seed
// the initial crawl) or while running (to widen scope mid-crawl).
func (e *Engine) AddSeedUrls(urls []url.URL) {
	for _, u := range urls {
		req := frontier.CrawlRequest{Url: u, Method: frontier.MethodGet, Depth: 0, Priority: defaultSeedPriority}
		if e.frontier.Enqueue(req) {
			e.emitDiscovered(u, 0, url.URL{})
		}
	}
}

// Start transitions the engine from Stopped to Running, seeds the frontier
// with cfg.SeedURLs (plus a prior save's pending requests when jobId names
// an existing state file), and spawns cfg.Concurrency workers. It returns
// immediately; the crawl proceeds on its own goroutines.
func (e *Engine) Start(jobId string) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return &EngineError{Message: "engine is not stopped"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel
	e.jobId = jobId
	e.startedAt = time.Now()
	e.stopOnce = &sync.Once{}
	e.mu.Unlock()

	now := time.Now()
	e.lastActivityAt.Store(&now)
	e.completedCount.Store(0)
	e.failedCount.Store(0)
	e.storageFailures.Store(0)

	if jobId != "" {
		if restored, err := e.loadState(jobId); err == nil {
			e.frontier.Restore(restored.Pending, restored.SeenUrls)
			e.delay.RestoreDelays(restored.DomainDelays)
		}
	}

	e.AddSeedUrls(e.cfg.SeedURLs())
	e.setState(StateRunning, "crawl started")

	n := e.cfg.Concurrency()
	if n < 1 {
		n = 1
	}
	e.wg.Add(n)
	for i := 0; i < n; i++ {
		go e.runWorker(ctx, i)
	}
	return nil
}

// Pause suspends every worker before its next Dequeue; in-flight fetches
// finish normally.
func (e *Engine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.pauseCh == nil {
		e.pauseCh = make(chan struct{})
		e.setState(StatePaused, "paused by operator")
	}
}

// Resume releases every worker blocked in Pause.
func (e *Engine) Resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.pauseCh != nil {
		close(e.pauseCh)
		e.pauseCh = nil
		e.setState(StateRunning, "resumed by operator")
	}
}

// Stop cancels every worker's context and waits up to a 5s cooperative
// cancellation budget for them to drain. When saveState is true it writes
// the frontier's pending requests, seen-set, and per-domain delays to disk
// under jobId, for a future Start to resume.
func (e *Engine) Stop(saveState bool) error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	cancel := e.cancel
	jobId := e.jobId
	stopOnce := e.stopOnce
	e.mu.Unlock()

	stopOnce.Do(func() {
		e.setState(StateStopping, "stop requested")
		if cancel != nil {
			cancel()
		}

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}

		if saveState && jobId != "" {
			_ = e.saveState(jobId)
		}

		e.crawlFinalizer.RecordFinalCrawlStats(
			int(e.completedCount.Load()),
			int(e.failedCount.Load()),
			0,
			time.Since(e.startedAt),
		)
		e.setState(StateStopped, "stopped")
	})
	return nil
}

// GetCurrentCrawlState reports a point-in-time snapshot of the crawl.
func (e *Engine) GetCurrentCrawlState() CrawlState {
	e.mu.Lock()
	state := e.state
	jobId := e.jobId
	startedAt := e.startedAt
	e.mu.Unlock()

	var lastActivity time.Time
	if p := e.lastActivityAt.Load(); p != nil {
		lastActivity = *p
	}

	return CrawlState{
		JobId:          jobId,
		Status:         state,
		PagesCompleted: int(e.completedCount.Load()),
		PagesFailed:    int(e.failedCount.Load()),
		QueueDepth:     e.frontier.Len(),
		SeenCount:      e.frontier.SeenCount(),
		StartedAt:      startedAt,
		LastActivityAt: lastActivity,
	}
}

// GetStatistics aggregates the storage layer's durable statistics with the
// metadata sink's running counters and the frontier's live queue depth,
// for external reporting.
func (e *Engine) GetStatistics() map[string]interface{} {
	stats := e.store.GetStatistics()
	out := map[string]interface{}{
		"total_count":    stats.TotalCount,
		"success_count":  stats.SuccessCount,
		"failure_count":  stats.FailureCount,
		"domain_counts":  stats.DomainCounts,
		"oldest_fetch":   stats.OldestFetch,
		"newest_fetch":   stats.NewestFetch,
		"queue_depth":    e.frontier.Len(),
		"seen_count":     e.frontier.SeenCount(),
		"pages_completed": int(e.completedCount.Load()),
		"pages_failed":   int(e.failedCount.Load()),
	}
	if snapper, ok := e.metadataSink.(interface{ Snapshot() metadata.Snapshot }); ok {
		snap := snapper.Snapshot()
		out["fetch_count"] = snap.FetchCount
		out["error_count"] = snap.ErrorCount
		out["asset_count"] = snap.AssetCount
	}
	return out
}
