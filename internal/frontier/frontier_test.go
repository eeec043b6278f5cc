package frontier_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/keruna/crawlkit/internal/domaindelay"
	"github.com/keruna/crawlkit/internal/frontier"
	"github.com/keruna/crawlkit/internal/urlfilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrontier() *frontier.Frontier {
	delay := domaindelay.NewManager(domaindelay.Config{})
	filter := urlfilter.New(nil, nil)
	return frontier.New(delay, filter, nil)
}

func mustURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestEnqueueDedupesAlreadySeenUrl(t *testing.T) {
	f := newTestFrontier()
	req := frontier.CrawlRequest{Url: mustURL(t, "https://example.com/a"), Method: frontier.MethodGet}

	assert.True(t, f.Enqueue(req))
	assert.False(t, f.Enqueue(req), "duplicate enqueue must be a no-op")
	assert.Equal(t, 1, f.Len())
}

func TestEnqueueAssignsTaskId(t *testing.T) {
	f := newTestFrontier()
	req := frontier.CrawlRequest{Url: mustURL(t, "https://example.com/a"), Method: frontier.MethodGet}
	require.True(t, f.Enqueue(req))

	out, ok := f.Dequeue()
	require.True(t, ok)
	assert.NotEmpty(t, out.TaskId)
	assert.Contains(t, out.TaskId, "task_")
}

func TestDequeueReturnsHighestScoringEntryFirst(t *testing.T) {
	f := newTestFrontier()

	shallow := frontier.CrawlRequest{Url: mustURL(t, "https://a.example.com/article/1"), Depth: 0}
	deep := frontier.CrawlRequest{Url: mustURL(t, "https://b.example.com/misc/2"), Depth: 5}

	require.True(t, f.Enqueue(deep))
	require.True(t, f.Enqueue(shallow))

	out, ok := f.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a.example.com", out.Url.Hostname(), "shallower, article-path URL should outscore a deep misc one")
}

func TestDequeueOnEmptyFrontierReturnsFalse(t *testing.T) {
	f := newTestFrontier()
	_, ok := f.Dequeue()
	assert.False(t, ok)
}

func TestDequeueRespectsPerDomainConcurrencyPermit(t *testing.T) {
	delay := domaindelay.NewManager(domaindelay.Config{MaxConcurrency: 1, DefaultDelay: time.Nanosecond, MinDelay: time.Nanosecond})
	filter := urlfilter.New(nil, nil)
	f := frontier.New(delay, filter, nil)

	first := frontier.CrawlRequest{Url: mustURL(t, "https://example.com/a")}
	second := frontier.CrawlRequest{Url: mustURL(t, "https://example.com/b")}
	require.True(t, f.Enqueue(first))
	require.True(t, f.Enqueue(second))

	_, ok := f.Dequeue()
	require.True(t, ok, "first dequeue should succeed and hold the domain's only permit")

	_, ok = f.Dequeue()
	assert.False(t, ok, "second dequeue for the same domain must be refused while the permit is held")
}

func TestReleaseFreesPermitForNextDequeue(t *testing.T) {
	delay := domaindelay.NewManager(domaindelay.Config{MaxConcurrency: 1, DefaultDelay: time.Nanosecond, MinDelay: time.Nanosecond})
	filter := urlfilter.New(nil, nil)
	f := frontier.New(delay, filter, nil)

	first := frontier.CrawlRequest{Url: mustURL(t, "https://example.com/a")}
	second := frontier.CrawlRequest{Url: mustURL(t, "https://example.com/b")}
	require.True(t, f.Enqueue(first))
	require.True(t, f.Enqueue(second))

	out, ok := f.Dequeue()
	require.True(t, ok)

	f.Release(out, true, 120)

	_, ok = f.Dequeue()
	assert.True(t, ok, "releasing the permit should let the next same-domain request through")
}

func TestEnqueueRejectsUrlDisallowedByFilter(t *testing.T) {
	delay := domaindelay.NewManager(domaindelay.Config{})
	filter := urlfilter.New([]string{"allowed.example.com"}, nil)
	f := frontier.New(delay, filter, nil)

	req := frontier.CrawlRequest{Url: mustURL(t, "https://blocked.example.com/a")}
	assert.False(t, f.Enqueue(req))
	assert.Equal(t, 0, f.Len())
}

func TestHighPriorityDomainOutscoresOrdinaryDomain(t *testing.T) {
	delay := domaindelay.NewManager(domaindelay.Config{})
	filter := urlfilter.New(nil, nil)
	f := frontier.New(delay, filter, map[string]struct{}{"vip.example.com": {}})

	ordinary := frontier.CrawlRequest{Url: mustURL(t, "https://ordinary.example.com/misc")}
	vip := frontier.CrawlRequest{Url: mustURL(t, "https://vip.example.com/misc")}

	require.True(t, f.Enqueue(ordinary))
	require.True(t, f.Enqueue(vip))

	out, ok := f.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "vip.example.com", out.Url.Hostname())
}
