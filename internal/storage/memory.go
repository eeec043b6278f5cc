package storage

import (
	"sort"
	"strconv"
	"sync"

	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/pkg/failure"
)

// MemoryStore is an in-memory Store, grounded on the teacher's
// metadata-sink-plus-mutex construction idiom (storage.LocalSink). It is
// the default store for short-lived crawls and for tests; FileStore is the
// durable alternative.
type MemoryStore struct {
	mu           sync.RWMutex
	byUrl        map[string]CrawlResult
	metadataSink metadata.MetadataSink
}

func NewMemoryStore(metadataSink metadata.MetadataSink) *MemoryStore {
	return &MemoryStore{
		byUrl:        make(map[string]CrawlResult),
		metadataSink: metadataSink,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Save(result CrawlResult) failure.ClassifiedError {
	s.mu.Lock()
	s.byUrl[result.RequestUrl.String()] = result
	s.mu.Unlock()

	s.metadataSink.RecordArtifact(
		metadata.ArtifactMarkdown,
		result.RequestUrl.String(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, result.RequestUrl.String()),
			metadata.NewAttr(metadata.AttrDepth, strconv.Itoa(result.RequestDepth)),
		},
	)
	return nil
}

func (s *MemoryStore) GetByDomain(domain string, limit int) ([]CrawlResult, failure.ClassifiedError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CrawlResult
	for _, r := range s.byUrl {
		if r.RequestUrl.Hostname() == domain {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetByUrl(url string) (CrawlResult, bool, failure.ClassifiedError) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byUrl[url]
	return r, ok, nil
}

func (s *MemoryStore) GetTotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUrl)
}

func (s *MemoryStore) Delete(url string) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUrl[url]; !ok {
		return &StorageError{Message: url, Retryable: false, Cause: ErrCauseNotFound}
	}
	delete(s.byUrl, url)
	return nil
}

func (s *MemoryStore) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{DomainCounts: make(map[string]int)}
	for _, r := range s.byUrl {
		stats.TotalCount++
		if r.Download.IsSuccess {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		stats.DomainCounts[r.RequestUrl.Hostname()]++
		if stats.OldestFetch.IsZero() || r.ProcessedAt.Before(stats.OldestFetch) {
			stats.OldestFetch = r.ProcessedAt
		}
		if r.ProcessedAt.After(stats.NewestFetch) {
			stats.NewestFetch = r.ProcessedAt
		}
	}
	return stats
}

// Backup snapshots the store's current contents to path as JSON, reusing
// FileStore's encoder so both stores agree on wire format.
func (s *MemoryStore) Backup(path string) failure.ClassifiedError {
	s.mu.RLock()
	results := make([]CrawlResult, 0, len(s.byUrl))
	for _, r := range s.byUrl {
		results = append(results, r)
	}
	s.mu.RUnlock()
	return writeBackup(path, results)
}

func (s *MemoryStore) ClearAll() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUrl = make(map[string]CrawlResult)
	return nil
}
