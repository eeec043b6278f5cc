package proxypool

/*
Responsibilities

- Hold the set of configured proxies and their accounting
- Pick the next proxy to use under a configurable rotation strategy
- Auto-disable proxies with at least 5 failures and a success rate below 20%

A disabled proxy is never returned by GetNext; re-enabling is a manual,
operator-driven action (Enable), mirroring the Robots Cache's manual-only
eviction policy.
*/

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Pool is the crawl-facing Proxy Pool (component D).
type Pool struct {
	mu       sync.Mutex
	records  []*Record
	strategy Strategy
	rrCursor int
	rng      *rand.Rand
	probeURL string
}

// NewPool builds a Pool over the given records using strategy to pick the
// next proxy. probeURL is used by Test to validate a proxy end to end.
func NewPool(records []Record, strategy Strategy, probeURL string) *Pool {
	rs := make([]*Record, len(records))
	for i := range records {
		r := records[i]
		rs[i] = &r
	}
	if strategy == "" {
		strategy = RoundRobin
	}
	return &Pool{
		records:  rs,
		strategy: strategy,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		probeURL: probeURL,
	}
}

func (p *Pool) enabled() []*Record {
	out := make([]*Record, 0, len(p.records))
	for _, r := range p.records {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// GetNext returns the next proxy to use per the configured strategy. Only
// Enabled proxies are ever eligible.
func (p *Pool) GetNext() (*Record, *PoolError) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.enabled()
	if len(candidates) == 0 {
		return nil, &PoolError{Message: ErrNoEnabledProxies.Error(), Retryable: true}
	}

	var chosen *Record
	switch p.strategy {
	case Random:
		chosen = candidates[p.rng.Intn(len(candidates))]
	case BySuccessRate:
		chosen = candidates[0]
		for _, c := range candidates[1:] {
			if c.SuccessRate() > chosen.SuccessRate() {
				chosen = c
			}
		}
	case ByUsage:
		chosen = candidates[0]
		for _, c := range candidates[1:] {
			if c.LastUsed.Before(chosen.LastUsed) {
				chosen = c
			}
		}
	default: // RoundRobin
		p.rrCursor = p.rrCursor % len(candidates)
		chosen = candidates[p.rrCursor]
		p.rrCursor++
	}

	chosen.LastUsed = time.Now()
	return chosen, nil
}

// RecordSuccess increments the proxy's success count.
func (p *Pool) RecordSuccess(r *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r.SuccessCount++
}

// RecordFailure increments the proxy's failure count and auto-disables it
// once FailCount >= 5 and SuccessRate < 0.2.
func (p *Pool) RecordFailure(r *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r.FailCount++
	r.LastFailed = time.Now()
	if r.FailCount >= disableFailThreshold && r.SuccessRate() < disableSuccessRateThreshold {
		r.Enabled = false
	}
}

// Enable re-enables a proxy previously auto-disabled. Manual only, by
// design: the pool never re-enables a proxy on its own.
func (p *Pool) Enable(r *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r.Enabled = true
}

// Snapshot returns a copy of all records for statistics/diagnostics.
func (p *Pool) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.records))
	for i, r := range p.records {
		out[i] = *r
	}
	return out
}

// Test performs a GET against the pool's probe URL through r, with a 10s
// budget, reporting success/failure into the pool's accounting.
func (p *Pool) Test(ctx context.Context, r *Record) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(r.URL())},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		p.RecordFailure(r)
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		p.RecordFailure(r)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		p.RecordSuccess(r)
		return true
	}
	p.RecordFailure(r)
	return false
}
