package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/keruna/crawlkit/internal/httpclientpool"
	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/internal/proxypool"
	"github.com/keruna/crawlkit/pkg/failure"
)

/*
Responsibilities

- Acquire a pooled HTTP client, and a proxy when proxying is enabled
- Build a request carrying a rotating User-Agent and browser-like headers
- Decompress gzip/deflate bodies and detect their character encoding
- Record proxy success/failure and classify non-2xx responses

Executor performs exactly one request per call; retry looping belongs to the
caller (the engine's fetchWithRetry in internal/engine/worker.go).
*/

// DownloadResult is the outcome of one fetch attempt, the spec's §3
// DownloadResult. It covers any content type and carries the decoded text
// alongside the raw bytes.
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

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edg/124.0.0.0",
}

// Executor is the Fetch Executor (component I).
type Executor struct {
	metadataSink metadata.MetadataSink
	clientPool   *httpclientpool.Pool
	proxyPool    *proxypool.Pool
	enableProxy  bool
	userAgents   []string
	rng          *rand.Rand
	timeout      time.Duration
}

// NewExecutor builds an Executor. proxyPool may be nil; enableProxy is then
// forced false regardless of the argument. timeout bounds every request
// made through the ad hoc proxied client the same way it already bounds
// clientPool's pooled clients; zero disables the bound, matching
// http.Client's own zero-value meaning.
func NewExecutor(metadataSink metadata.MetadataSink, clientPool *httpclientpool.Pool, proxyPool *proxypool.Pool, enableProxy bool, userAgents []string, timeout time.Duration) *Executor {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	return &Executor{
		metadataSink: metadataSink,
		clientPool:   clientPool,
		proxyPool:    proxyPool,
		enableProxy:  enableProxy && proxyPool != nil,
		userAgents:   userAgents,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		timeout:      timeout,
	}
}

func (e *Executor) pickUserAgent() string {
	return e.userAgents[e.rng.Intn(len(e.userAgents))]
}

// Download performs one fetch of fetchUrl, per §4.I steps 1-7. On failure it
// still returns a populated DownloadResult (IsSuccess false, ErrorType/
// ErrorMessage set) alongside the classified error, so the caller always has
// a terminal record to hand to storage even when every retry is exhausted.
func (e *Executor) Download(ctx context.Context, fetchUrl url.URL, referrer string) (DownloadResult, failure.ClassifiedError) {
	start := time.Now()
	domain := fetchUrl.Hostname()

	client, proxyRecord, err := e.acquireClient(ctx, domain)
	if err != nil {
		return e.failureResult(fetchUrl, start, "client_acquire_failure", err.Error()),
			&FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseNetworkFailure}
	}
	if proxyRecord == nil {
		defer e.clientPool.Release(domain, client)
	}

	req, buildErr := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if buildErr != nil {
		return e.failureResult(fetchUrl, start, "request_build_failure", buildErr.Error()),
			&FetchError{Message: buildErr.Error(), Retryable: false, Cause: ErrCauseNetworkFailure}
	}
	for k, v := range e.requestHeaders(referrer) {
		req.Header.Set(k, v)
	}

	resp, doErr := client.Do(req)
	if doErr != nil {
		if proxyRecord != nil {
			e.proxyPool.RecordFailure(proxyRecord)
		}
		return e.failureResult(fetchUrl, start, "network_failure", doErr.Error()),
			&FetchError{Message: doErr.Error(), Retryable: true, Cause: ErrCauseNetworkFailure}
	}
	defer resp.Body.Close()

	body, readErr := e.readBody(resp)
	elapsed := time.Since(start)
	if readErr != nil {
		if proxyRecord != nil {
			e.proxyPool.RecordFailure(proxyRecord)
		}
		return e.failureResult(fetchUrl, start, "read_body_failure", readErr.Error()),
			&FetchError{Message: readErr.Error(), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}

	contentType := resp.Header.Get("Content-Type")
	content := e.decodeContent(body, contentType)

	headers := make(map[string][]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = v
	}

	e.metadataSink.RecordFetch(fetchUrl.String(), resp.StatusCode, elapsed, contentType, 0, 0)

	result := DownloadResult{
		Url:            fetchUrl,
		StatusCode:     resp.StatusCode,
		ContentType:    contentType,
		Content:        content,
		RawData:        body,
		Headers:        headers,
		DownloadTimeMs: elapsed.Milliseconds(),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if proxyRecord != nil {
			e.proxyPool.RecordFailure(proxyRecord)
		}
		classified := classifyStatusCode(resp.StatusCode)
		result.ErrorType = string(classified.Cause)
		result.ErrorMessage = fmt.Sprintf("download exception: status %d", resp.StatusCode)
		e.metadataSink.RecordError(time.Now(), "fetcher", "Executor.Download",
			mapFetchErrorToMetadataCause(classified), result.ErrorMessage,
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, fetchUrl.String()), metadata.NewAttr(metadata.AttrHTTPStatus, fmt.Sprintf("%d", resp.StatusCode))})
		return result, classified
	}

	if proxyRecord != nil {
		e.proxyPool.RecordSuccess(proxyRecord)
	}
	result.IsSuccess = true
	return result, nil
}

// classifyStatusCode maps a non-2xx status code to a FetchError, for any
// content type.
func classifyStatusCode(statusCode int) *FetchError {
	switch {
	case statusCode >= 500:
		return &FetchError{Message: fmt.Sprintf("server error: %d", statusCode), Retryable: true, Cause: ErrCauseRequest5xx}
	case statusCode == 429:
		return &FetchError{Message: "rate limited (429)", Retryable: true, Cause: ErrCauseRequestTooMany}
	case statusCode == 403:
		return &FetchError{Message: "access forbidden (403)", Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case statusCode >= 400:
		return &FetchError{Message: fmt.Sprintf("client error: %d", statusCode), Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case statusCode >= 300:
		return &FetchError{Message: fmt.Sprintf("redirect error: %d", statusCode), Retryable: false, Cause: ErrCauseRedirectLimitExceeded}
	default:
		return &FetchError{Message: fmt.Sprintf("unexpected status: %d", statusCode), Retryable: true, Cause: ErrCauseNetworkFailure}
	}
}

// acquireClient returns a proxied ad hoc client when proxying is enabled
// (so the proxy's Record can be credited/debited after the request
// completes), otherwise a pooled client for domain. The returned Record is
// nil exactly when the client came from the pool.
func (e *Executor) acquireClient(ctx context.Context, domain string) (*http.Client, *proxypool.Record, error) {
	if e.enableProxy {
		record, poolErr := e.proxyPool.GetNext()
		if poolErr != nil {
			return nil, nil, poolErr
		}
		client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(record.URL())}, Timeout: e.timeout}
		return client, record, nil
	}
	client, err := e.clientPool.Acquire(ctx, domain)
	if err != nil {
		return nil, nil, err
	}
	return client, nil, nil
}

func (e *Executor) requestHeaders(referrer string) map[string]string {
	headers := map[string]string{
		"User-Agent":                e.pickUserAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Accept-Encoding":           "gzip, deflate",
		"Cache-Control":             "no-cache",
		"Upgrade-Insecure-Requests": "1",
	}
	if referrer != "" {
		headers["Referer"] = referrer
	}
	return headers
}

// readBody reads the response body, inflating it first when Content-Encoding
// names a compression this package understands (§4.I step 4).
func (e *Executor) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}
	return io.ReadAll(reader)
}

// decodeContent applies §4.I step 5's encoding-detection precedence
// (Content-Type charset, then BOM, then a <meta charset> sniffed from the
// first 1 KiB, then UTF-8) via charset.DetermineEncoding and returns UTF-8
// text. DetermineEncoding always returns a usable encoding even when it
// isn't certain, so this never fails outright.
func (e *Executor) decodeContent(body []byte, contentType string) string {
	sniffLen := len(body)
	if sniffLen > 1024 {
		sniffLen = 1024
	}
	enc, _, _ := charset.DetermineEncoding(body[:sniffLen], contentType)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

func (e *Executor) failureResult(fetchUrl url.URL, start time.Time, errType string, message string) DownloadResult {
	e.metadataSink.RecordError(time.Now(), "fetcher", "Executor.Download", metadata.CauseNetworkFailure, message,
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, fetchUrl.String())})
	return DownloadResult{
		Url:            fetchUrl,
		DownloadTimeMs: time.Since(start).Milliseconds(),
		ErrorMessage:   message,
		ErrorType:      errType,
	}
}
