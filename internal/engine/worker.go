package engine

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/keruna/crawlkit/internal/antibot"
	"github.com/keruna/crawlkit/internal/domaindelay"
	"github.com/keruna/crawlkit/internal/extractor"
	"github.com/keruna/crawlkit/internal/fetcher"
	"github.com/keruna/crawlkit/internal/frontier"
	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/internal/retry"
	"github.com/keruna/crawlkit/internal/storage"
	"github.com/keruna/crawlkit/pkg/failure"
)

// requestTypeOf mirrors frontier's unexported classifyRequestType so robots
// crawl-delay overrides land on the same (domain, requestType) key the
// frontier itself admits against. Kept as a small, separately-grounded
// duplicate rather than exporting the frontier's internal classifier.
func requestTypeOf(u url.URL) domaindelay.RequestType {
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

// cancelledError marks a request abandoned because the engine stopped
// mid-fetch. Recoverable: the request simply never got a terminal outcome
// worth retrying once the crawl is gone.
type cancelledError struct{}

func (cancelledError) Error() string             { return "crawl stopped before request completed" }
func (cancelledError) Severity() failure.Severity { return failure.SeverityRecoverable }

// sleepCtx sleeps for d via the engine's injected Sleeper but abandons the
// wait as soon as ctx is cancelled, so a Stop mid-backoff honors its
// cancellation budget instead of waiting out a multi-second retry delay.
func (e *Engine) sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	done := make(chan struct{}, 1)
	go func() {
		e.sleeper.Sleep(d)
		done <- struct{}{}
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) waitIfPaused(ctx context.Context) bool {
	for {
		e.pauseMu.Lock()
		ch := e.pauseCh
		e.pauseMu.Unlock()
		if ch == nil {
			return true
		}
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return false
		}
	}
}

func (e *Engine) runWorker(ctx context.Context, workerID int) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !e.waitIfPaused(ctx) {
			return
		}

		req, ok := e.frontier.Dequeue()
		if !ok {
			if e.shouldAutoStop() {
				go e.Stop(true)
				return
			}
			e.sleepCtx(ctx, idlePollInterval)
			continue
		}

		e.busyWorkers.Add(1)
		e.processRequest(ctx, req)
		e.busyWorkers.Add(-1)
		now := time.Now()
		e.lastActivityAt.Store(&now)

		if max := e.cfg.MaxPages(); max > 0 && e.completedCount.Load()+e.failedCount.Load() >= int64(max) {
			go e.Stop(true)
			return
		}
	}
}

// shouldAutoStop reports whether every worker has been idle, with an empty
// frontier, for longer than cfg.AutoStopTimeout. Both EnableAutoStop and
// the idle-timeout condition must hold; busyWorkers==0 is what stands in
// for "all workers idle" since a worker only increments it around
// processRequest.
func (e *Engine) shouldAutoStop() bool {
	if !e.cfg.EnableAutoStop() {
		return false
	}
	if e.busyWorkers.Load() > 0 || e.frontier.Len() > 0 {
		return false
	}
	last := e.lastActivityAt.Load()
	if last == nil {
		return false
	}
	return time.Since(*last) > e.cfg.AutoStopTimeout()
}

// processRequest runs one CrawlRequest through robots, fetch-with-retry,
// anti-bot, and parse, then releases its frontier slot and reports the
// outcome. It never returns an error: every branch ends in either a stored
// result plus an emitted event, or (on cancellation) a quiet return.
func (e *Engine) processRequest(ctx context.Context, req frontier.CrawlRequest) {
	domain := req.Url.Hostname()
	success := false
	var downloadMs int64
	defer func() { e.frontier.Release(req, success, downloadMs) }()

	if e.cfg.RespectRobotsTxt() {
		decision, rerr := e.robot.Decide(req.Url)
		if rerr != nil {
			e.failedCount.Add(1)
			e.emitError(req, rerr)
			return
		}
		if decision.CrawlDelay > 0 {
			e.delay.SetDelay(domain, requestTypeOf(req.Url), decision.CrawlDelay)
		}
		if !decision.Allowed {
			result := e.buildBlockedResult(req, "blocked by robots.txt")
			e.saveResult(result)
			e.completedCount.Add(1)
			e.emitCompleted(CompletedResult{Url: req.Url, Depth: req.Depth})
			success = true
			return
		}
	}

	download, ferr, _ := e.fetchWithRetry(ctx, req, domain)
	downloadMs = download.DownloadTimeMs

	if ferr != nil {
		result := e.buildResult(req, download, extractor.ParseResult{Url: req.Url})
		e.saveResult(result)
		e.failedCount.Add(1)
		e.emitError(req, ferr)
		return
	}

	parseResult, perr := e.parser.Parse(req.Url, download)
	if perr != nil {
		result := e.buildResult(req, download, parseResult)
		e.saveResult(result)
		e.failedCount.Add(1)
		e.emitError(req, perr)
		return
	}

	e.discoverLinks(req, parseResult)

	result := e.buildResult(req, download, parseResult)
	e.saveResult(result)
	success = true
	e.completedCount.Add(1)
	e.emitCompleted(CompletedResult{
		Url:        req.Url,
		Depth:      req.Depth,
		StatusCode: download.StatusCode,
		Title:      parseResult.Title,
	})
}

func (e *Engine) discoverLinks(req frontier.CrawlRequest, parseResult extractor.ParseResult) {
	maxDepth := e.cfg.MaxDepth()
	if maxDepth > 0 && req.Depth >= maxDepth {
		return
	}
	for _, raw := range parseResult.Links {
		linkURL, err := url.Parse(raw)
		if err != nil {
			continue
		}
		child := frontier.CrawlRequest{
			Url:      *linkURL,
			Method:   frontier.MethodGet,
			Referrer: req.Url.String(),
			Depth:    req.Depth + 1,
			Priority: req.Priority,
		}
		if e.frontier.Enqueue(child) {
			e.emitDiscovered(*linkURL, child.Depth, req.Url)
		}
	}
}

// fetchWithRetry runs Download, and when it succeeds and the anti-bot chain
// is enabled, Inspect, retrying per retry.Classify/ShouldRetry/Delay until
// either attempt succeeds, the classifier refuses another attempt, or ctx
// is cancelled.
func (e *Engine) fetchWithRetry(ctx context.Context, req frontier.CrawlRequest, domain string) (fetcher.DownloadResult, failure.ClassifiedError, int) {
	requestType := requestTypeOf(req.Url)
	var lastDownload fetcher.DownloadResult
	var lastErr failure.ClassifiedError

	attempt := 0
	for {
		attempt++
		select {
		case <-ctx.Done():
			return lastDownload, cancelledError{}, attempt
		default:
		}

		download, ferr := e.executor.Download(ctx, req.Url, req.Referrer)
		if ferr == nil && e.antibotChain != nil {
			_, derr := e.antibotChain.Inspect(req.Url.String(), antibot.Response{
				StatusCode: download.StatusCode,
				Body:       download.Content,
				Headers:    download.Headers,
			})
			if derr != nil {
				ferr = derr
			}
		}

		lastDownload, lastErr = download, ferr
		e.classifier.RecordOutcome(domain, ferr != nil)

		if ferr == nil {
			// Every clean fetch narrows the domain's delay back toward its
			// floor; a run of retryable failures or anti-bot trips widens
			// it again below, making the per-domain wait adaptive.
			e.delay.DecreaseDelay(domain, requestType)
			return download, nil, attempt
		}

		e.delay.IncreaseDelay(domain, requestType)

		classified := retry.Classify(domain, ferr)
		if !e.classifier.ShouldRetry(classified, attempt) {
			return lastDownload, lastErr, attempt
		}
		e.sleepCtx(ctx, retry.Delay(classified, attempt))
	}
}

func (e *Engine) buildResult(req frontier.CrawlRequest, download fetcher.DownloadResult, parse extractor.ParseResult) storage.CrawlResult {
	return storage.CrawlResult{
		RequestUrl:      req.Url,
		RequestDepth:    req.Depth,
		RequestPriority: req.Priority,
		TaskId:          req.TaskId,
		Download:        toStorageDownload(download),
		Parse:           toStorageParse(parse),
		ProcessedAt:     time.Now(),
	}
}

func (e *Engine) buildBlockedResult(req frontier.CrawlRequest, reason string) storage.CrawlResult {
	return storage.CrawlResult{
		RequestUrl:      req.Url,
		RequestDepth:    req.Depth,
		RequestPriority: req.Priority,
		TaskId:          req.TaskId,
		Download: storage.DownloadResult{
			Url:          req.Url,
			IsSuccess:    false,
			ErrorType:    "robots_blocked",
			ErrorMessage: reason,
		},
		Parse:       storage.ParseResult{Url: req.Url},
		ProcessedAt: time.Now(),
	}
}

func toStorageDownload(d fetcher.DownloadResult) storage.DownloadResult {
	return storage.DownloadResult{
		Url:            d.Url,
		IsSuccess:      d.IsSuccess,
		StatusCode:     d.StatusCode,
		ContentType:    d.ContentType,
		Content:        d.Content,
		RawData:        d.RawData,
		Headers:        d.Headers,
		DownloadTimeMs: d.DownloadTimeMs,
		ErrorMessage:   d.ErrorMessage,
		ErrorType:      d.ErrorType,
	}
}

func toStorageParse(p extractor.ParseResult) storage.ParseResult {
	return storage.ParseResult{
		Url:           p.Url,
		IsSuccess:     p.IsSuccess,
		Title:         p.Title,
		TextContent:   p.TextContent,
		Links:         p.Links,
		ExtractedData: p.ExtractedData,
		ErrorMessage:  p.ErrorMessage,
	}
}

// saveResult writes result to storage unless the crawl is a dry run.
// Consecutive failures past storageFailureThreshold trigger a stop, per
// §7's storage-failure-exceeding-a-threshold fatal condition.
func (e *Engine) saveResult(result storage.CrawlResult) {
	if e.cfg.DryRun() {
		return
	}
	if serr := e.store.Save(result); serr != nil {
		e.metadataSink.RecordError(time.Now(), "engine", "saveResult", metadata.CauseStorageFailure, serr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, result.RequestUrl.String())})
		if e.storageFailures.Add(1) >= storageFailureThreshold {
			go e.Stop(false)
		}
		return
	}
	e.storageFailures.Store(0)
}
