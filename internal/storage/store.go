package storage

import (
	"github.com/keruna/crawlkit/pkg/failure"
)

// Store is the external storage contract (§6): the engine's one
// collaborator for persisting and querying crawl results. Export formats
// (CSV/JSON/XLSX) and any AI-assisted extraction layer sit downstream of
// this interface and are out of core scope.
type Store interface {
	Save(result CrawlResult) failure.ClassifiedError
	GetByDomain(domain string, limit int) ([]CrawlResult, failure.ClassifiedError)
	GetByUrl(url string) (CrawlResult, bool, failure.ClassifiedError)
	GetTotalCount() int
	Delete(url string) failure.ClassifiedError
	GetStatistics() Statistics
	Backup(path string) failure.ClassifiedError
	ClearAll() failure.ClassifiedError
}
