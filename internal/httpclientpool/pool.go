package httpclientpool

/*
Responsibilities

- Hold reusable *http.Client instances keyed by domain
- Bound how many clients exist globally and per domain
- Evict clients that have aged out or gone idle

Acquire never allocates past MaxClientsPerDomain for a domain: once that
many clients exist for a domain, callers reuse the least-recently-used one
rather than blocking, since http.Client is itself safe for concurrent use.
The global MaxClients bound is enforced by a semaphore that Acquire waits
on when the pool is globally saturated.
*/

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

type pooledClient struct {
	client     *http.Client
	createdAt  time.Time
	lastUsedAt time.Time
}

// Pool is the crawl-facing HTTP Client Pool (component E).
type Pool struct {
	mu      sync.Mutex
	clients map[string][]*pooledClient
	sem     chan struct{}

	maxClientsPerDomain int
	maxLifetime         time.Duration
	maxIdle             time.Duration
	enableIsolation     bool

	timeout         time.Duration
	followRedirects bool
	proxyFunc       func(*http.Request) (*url.URL, error)

	stopCleanup chan struct{}
}

// Config tunes the pool's bounds and the transport each client is built
// with.
type Config struct {
	MaxClients            int
	MaxClientsPerDomain   int
	MaxClientLifetime     time.Duration
	MaxIdleTime           time.Duration
	EnableDomainIsolation bool
	CleanupInterval       time.Duration
	Timeout               time.Duration
	FollowRedirects       bool
	ProxyFunc             func(*http.Request) (*url.URL, error)
}

// NewPool builds a Pool and starts its background janitor goroutine.
// Callers must call Close to stop the janitor.
func NewPool(cfg Config) *Pool {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 100
	}
	if cfg.MaxClientsPerDomain <= 0 {
		cfg.MaxClientsPerDomain = 4
	}
	if cfg.MaxClientLifetime <= 0 {
		cfg.MaxClientLifetime = 30 * time.Minute
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = 90 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	p := &Pool{
		clients:             make(map[string][]*pooledClient),
		sem:                 make(chan struct{}, cfg.MaxClients),
		maxClientsPerDomain: cfg.MaxClientsPerDomain,
		maxLifetime:         cfg.MaxClientLifetime,
		maxIdle:             cfg.MaxIdleTime,
		enableIsolation:     cfg.EnableDomainIsolation,
		timeout:             cfg.Timeout,
		followRedirects:     cfg.FollowRedirects,
		proxyFunc:           cfg.ProxyFunc,
		stopCleanup:         make(chan struct{}),
	}
	go p.janitor(cfg.CleanupInterval)
	return p
}

func (p *Pool) poolKey(domain string) string {
	if !p.enableIsolation {
		return "*"
	}
	return domain
}

func (p *Pool) newClient() *http.Client {
	transport := &http.Transport{Proxy: p.proxyFunc}
	client := &http.Client{Transport: transport, Timeout: p.timeout}
	if !p.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// Acquire returns a client for domain, reusing an existing one when the
// domain is already at MaxClientsPerDomain, otherwise creating a new one
// (waiting on the global semaphore if the pool is saturated). Acquire
// returns ctx.Err() if ctx is cancelled while waiting.
func (p *Pool) Acquire(ctx context.Context, domain string) (*http.Client, error) {
	key := p.poolKey(domain)

	p.mu.Lock()
	existing := p.clients[key]
	if len(existing) >= p.maxClientsPerDomain {
		lru := existing[0]
		for _, c := range existing[1:] {
			if c.lastUsedAt.Before(lru.lastUsedAt) {
				lru = c
			}
		}
		lru.lastUsedAt = time.Now()
		p.mu.Unlock()
		return lru.client, nil
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	pc := &pooledClient{client: p.newClient(), createdAt: time.Now(), lastUsedAt: time.Now()}
	p.mu.Lock()
	if len(p.clients[key]) >= p.maxClientsPerDomain {
		// Another caller filled the domain while this one waited on the
		// semaphore; give the permit back and reuse an existing client.
		p.mu.Unlock()
		<-p.sem
		return p.Acquire(ctx, domain)
	}
	p.clients[key] = append(p.clients[key], pc)
	p.mu.Unlock()

	return pc.client, nil
}

// Release marks a client as idle again. It does not return the semaphore
// permit: permits are reclaimed only on eviction, since the client itself
// remains pooled for reuse.
func (p *Pool) Release(domain string, client *http.Client) {
	key := p.poolKey(domain)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients[key] {
		if c.client == client {
			c.lastUsedAt = time.Now()
			return
		}
	}
}

// janitor periodically evicts clients whose age exceeds MaxClientLifetime
// or whose idle time exceeds MaxIdleTime, returning one semaphore permit
// per evicted client so waiters can proceed.
func (p *Pool) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictExpired()
		case <-p.stopCleanup:
			return
		}
	}
}

func (p *Pool) evictExpired() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, list := range p.clients {
		kept := list[:0]
		for _, c := range list {
			expired := now.Sub(c.createdAt) > p.maxLifetime || now.Sub(c.lastUsedAt) > p.maxIdle
			if expired {
				select {
				case <-p.sem:
				default:
				}
				continue
			}
			kept = append(kept, c)
		}
		p.clients[key] = kept
	}
}

// Close stops the janitor goroutine.
func (p *Pool) Close() {
	close(p.stopCleanup)
}
