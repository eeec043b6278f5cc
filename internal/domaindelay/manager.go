package domaindelay

/*
Responsibilities

- Bookkeep each (domain, requestType)'s last access timestamp and current
  delay
- Decide whether enough time has passed to issue another request
- Bound how many requests may be in flight for a domain at once

Thread-safety: all mutations are linearizable per (domain, requestType) key;
operations on distinct keys never block each other beyond the shared map
mutex's critical section, which only ever guards a map lookup/insert.
*/

import (
	"sync"
	"time"
)

const defaultMaxConcurrency = 2

// Manager is the crawl-facing Domain Delay Manager (component C): admission
// gating per (domain, requestType), independent of the HTTP client pool or
// the frontier.
type Manager struct {
	mu             sync.Mutex
	states         map[key]*state
	defaultDelay   time.Duration
	minDelay       time.Duration
	maxDelay       time.Duration
	maxConcurrency int
}

// Config tunes the manager's defaults; zero values fall back to the
// component design's defaults (defaultDelay=1s, minDelay=100ms,
// maxDelay=10s).
type Config struct {
	DefaultDelay   time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxConcurrency int
}

// NewManager builds a Manager with the given defaults.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		states:         make(map[key]*state),
		defaultDelay:   cfg.DefaultDelay,
		minDelay:       cfg.MinDelay,
		maxDelay:       cfg.MaxDelay,
		maxConcurrency: cfg.MaxConcurrency,
	}
	if m.defaultDelay == 0 {
		m.defaultDelay = time.Second
	}
	if m.minDelay == 0 {
		m.minDelay = 100 * time.Millisecond
	}
	if m.maxDelay == 0 {
		m.maxDelay = 10 * time.Second
	}
	if m.maxConcurrency == 0 {
		m.maxConcurrency = defaultMaxConcurrency
	}
	return m
}

func (m *Manager) clamp(d time.Duration) time.Duration {
	if d < m.minDelay {
		return m.minDelay
	}
	if d > m.maxDelay {
		return m.maxDelay
	}
	return d
}

// stateFor returns the state for (domain,requestType), creating it lazily
// with the manager's default delay and concurrency permits. Caller must
// hold m.mu.
func (m *Manager) stateFor(domain string, t RequestType) *state {
	k := key{domain: domain, requestType: t}
	s, ok := m.states[k]
	if !ok {
		s = &state{
			delay:   m.defaultDelay,
			permits: make(chan struct{}, m.maxConcurrency),
		}
		m.states[k] = s
	}
	return s
}

// CanProcess reports whether now >= lastAccess + delay for (domain, t). A
// key with no recorded access is always processable.
func (m *Manager) CanProcess(domain string, t RequestType) bool {
	m.mu.Lock()
	s := m.stateFor(domain, t)
	lastAccess := s.lastAccessAt
	delay := s.delay
	m.mu.Unlock()

	if lastAccess.IsZero() {
		return true
	}
	return time.Now().After(lastAccess.Add(delay)) || time.Now().Equal(lastAccess.Add(delay))
}

// RecordAccess sets lastAccess to now for (domain, t).
func (m *Manager) RecordAccess(domain string, t RequestType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(domain, t)
	s.lastAccessAt = time.Now()
}

// SetDelay stores a clamped delay for (domain, t).
func (m *Manager) SetDelay(domain string, t RequestType, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(domain, t)
	s.delay = m.clamp(d)
}

// IncreaseDelay scales the current delay for (domain, t) by 1.2, clamped.
func (m *Manager) IncreaseDelay(domain string, t RequestType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(domain, t)
	s.delay = m.clamp(time.Duration(float64(s.delay) * 1.2))
}

// DecreaseDelay scales the current delay for (domain, t) by 0.9, clamped.
func (m *Manager) DecreaseDelay(domain string, t RequestType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(domain, t)
	s.delay = m.clamp(time.Duration(float64(s.delay) * 0.9))
}

// CurrentDelay returns the current delay in effect for (domain, t).
func (m *Manager) CurrentDelay(domain string, t RequestType) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateFor(domain, t).delay
}

// TryAcquireConcurrencyPermit attempts to reserve one of the domain's
// bounded in-flight slots. Callers that fail to acquire must skip the
// request this cycle rather than block.
func (m *Manager) TryAcquireConcurrencyPermit(domain string, t RequestType) bool {
	m.mu.Lock()
	s := m.stateFor(domain, t)
	m.mu.Unlock()

	select {
	case s.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a previously acquired concurrency permit for (domain, t).
func (m *Manager) Release(domain string, t RequestType) {
	m.mu.Lock()
	s := m.stateFor(domain, t)
	m.mu.Unlock()

	select {
	case <-s.permits:
	default:
	}
}

// SnapshotDelays copies the current RequestDefault delay for every domain
// the manager has seen, for on-disk state persistence. Permit slots and
// per-request-type overrides are deliberately not carried across a
// save/restore cycle: they are runtime-only admission state, not politeness
// policy worth resuming.
func (m *Manager) SnapshotDelays() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Duration, len(m.states))
	for k, s := range m.states {
		if k.requestType != RequestDefault {
			continue
		}
		out[k.domain] = s.delay
	}
	return out
}

// RestoreDelays re-applies previously snapshotted per-domain delays.
func (m *Manager) RestoreDelays(delays map[string]time.Duration) {
	for domain, d := range delays {
		m.SetDelay(domain, RequestDefault, d)
	}
}
