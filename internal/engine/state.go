package engine

/*
On-disk crawl state (§6): a JSON document capturing the frontier's pending
requests, its seen-set, and per-domain delay overrides, written on
Stop(saveState=true) and read back on the next Start given the same jobId.
Proxy stats are intentionally not round-tripped: proxypool.Pool is
constructed fresh from cfg.ProxySettings on every NewEngine call, and
re-seeding its FailCount/SuccessCount from a stale file would let a proxy
disabled days ago stay disabled forever.
*/

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keruna/crawlkit/internal/frontier"
)

type stateDocument struct {
	JobId        string                   `json:"jobId"`
	SavedAt      time.Time                `json:"savedAt"`
	Pending      []frontier.CrawlRequest  `json:"pending"`
	SeenUrls     []string                 `json:"seenUrls"`
	DomainDelays map[string]time.Duration `json:"domainDelays"`
}

func (e *Engine) statePath(jobId string) string {
	dir := e.cfg.OutputDir()
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%s.crawlstate.json", jobId))
}

func (e *Engine) saveState(jobId string) error {
	pending, seenUrls := e.frontier.Snapshot()
	doc := stateDocument{
		JobId:        jobId,
		SavedAt:      time.Now(),
		Pending:      pending,
		SeenUrls:     seenUrls,
		DomainDelays: e.delay.SnapshotDelays(),
	}

	path := e.statePath(jobId)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

func (e *Engine) loadState(jobId string) (stateDocument, error) {
	var doc stateDocument
	raw, err := os.ReadFile(e.statePath(jobId))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}
