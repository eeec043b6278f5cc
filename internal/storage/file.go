package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/pkg/failure"
	"github.com/keruna/crawlkit/pkg/fileutil"
	"github.com/keruna/crawlkit/pkg/hashutil"
)

/*
Responsibilities
- Persist one JSON document per crawled URL, keyed deterministically
- Keep an in-memory URL -> file index so lookups need no directory scan;
  by-domain queries, statistics and backup still read every indexed file

Output Characteristics
- Stable filenames, overwrite-safe reruns, matching the teacher's
  LocalSink.Write idiom: hash the canonical URL, write <hash>.json under
  outputDir.
*/

// FileStore is the durable Store, adapted from the teacher's
// storage.LocalSink.Write filename scheme (blake3/sha256 hash of the
// canonical URL, truncated to 12 hex characters) generalized from Markdown
// files to full CrawlResult JSON documents.
type FileStore struct {
	mu           sync.RWMutex
	outputDir    string
	hashAlgo     hashutil.HashAlgo
	index        map[string]string // request URL string -> file path
	metadataSink metadata.MetadataSink
}

func NewFileStore(outputDir string, hashAlgo hashutil.HashAlgo, metadataSink metadata.MetadataSink) *FileStore {
	if hashAlgo == "" {
		hashAlgo = hashutil.HashAlgoBLAKE3
	}
	return &FileStore{
		outputDir:    outputDir,
		hashAlgo:     hashAlgo,
		index:        make(map[string]string),
		metadataSink: metadataSink,
	}
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) pathFor(rawUrl string) (string, failure.ClassifiedError) {
	hash, err := hashutil.HashBytes([]byte(rawUrl), s.hashAlgo)
	if err != nil {
		return "", &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailure}
	}
	return filepath.Join(s.outputDir, hash[:12]+".json"), nil
}

func (s *FileStore) Save(result CrawlResult) failure.ClassifiedError {
	rawUrl := result.RequestUrl.String()
	path, err := s.pathFor(rawUrl)
	if err != nil {
		return err
	}

	if ferr := fileutil.EnsureDir(s.outputDir); ferr != nil {
		return &StorageError{Message: ferr.Error(), Retryable: true, Cause: ErrCausePathError, Path: s.outputDir}
	}

	encoded, jsonErr := json.Marshal(result)
	if jsonErr != nil {
		return &StorageError{Message: jsonErr.Error(), Retryable: false, Cause: ErrCauseEncodeFailure, Path: path}
	}

	if writeErr := os.WriteFile(path, encoded, 0644); writeErr != nil {
		storageErr := &StorageError{Message: writeErr.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Path: path}
		s.metadataSink.RecordError(result.ProcessedAt, "storage", "FileStore.Save",
			mapStorageErrorToMetadataCause(storageErr), writeErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, rawUrl), metadata.NewAttr(metadata.AttrWritePath, path)})
		return storageErr
	}

	s.mu.Lock()
	s.index[rawUrl] = path
	s.mu.Unlock()

	s.metadataSink.RecordArtifact(metadata.ArtifactMarkdown, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, rawUrl),
		metadata.NewAttr(metadata.AttrWritePath, path),
	})
	return nil
}

func (s *FileStore) load(path string) (CrawlResult, failure.ClassifiedError) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CrawlResult{}, &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseNotFound, Path: path}
	}
	var result CrawlResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CrawlResult{}, &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailure, Path: path}
	}
	return result, nil
}

func (s *FileStore) GetByDomain(domain string, limit int) ([]CrawlResult, failure.ClassifiedError) {
	s.mu.RLock()
	paths := make([]string, 0, len(s.index))
	for _, p := range s.index {
		paths = append(paths, p)
	}
	s.mu.RUnlock()

	var out []CrawlResult
	for _, p := range paths {
		r, err := s.load(p)
		if err != nil {
			continue
		}
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

func (s *FileStore) GetByUrl(url string) (CrawlResult, bool, failure.ClassifiedError) {
	s.mu.RLock()
	path, ok := s.index[url]
	s.mu.RUnlock()
	if !ok {
		return CrawlResult{}, false, nil
	}
	r, err := s.load(path)
	if err != nil {
		return CrawlResult{}, false, err
	}
	return r, true, nil
}

func (s *FileStore) GetTotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *FileStore) Delete(url string) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.index[url]
	if !ok {
		return &StorageError{Message: url, Retryable: false, Cause: ErrCauseNotFound}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Path: path}
	}
	delete(s.index, url)
	return nil
}

func (s *FileStore) GetStatistics() Statistics {
	s.mu.RLock()
	paths := make([]string, 0, len(s.index))
	for _, p := range s.index {
		paths = append(paths, p)
	}
	s.mu.RUnlock()

	stats := Statistics{DomainCounts: make(map[string]int)}
	for _, p := range paths {
		r, err := s.load(p)
		if err != nil {
			continue
		}
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

func (s *FileStore) Backup(path string) failure.ClassifiedError {
	s.mu.RLock()
	paths := make([]string, 0, len(s.index))
	for _, p := range s.index {
		paths = append(paths, p)
	}
	s.mu.RUnlock()

	results := make([]CrawlResult, 0, len(paths))
	for _, p := range paths {
		if r, err := s.load(p); err == nil {
			results = append(results, r)
		}
	}
	return writeBackup(path, results)
}

func (s *FileStore) ClearAll() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.index {
		_ = os.Remove(p)
	}
	s.index = make(map[string]string)
	return nil
}

// writeBackup encodes results as a single JSON array at path, shared by
// MemoryStore and FileStore so Backup's on-disk shape (§6's on-disk state
// document, generalized from frontier-only to full crawl results) is
// identical regardless of which Store produced it.
func writeBackup(path string, results []CrawlResult) failure.ClassifiedError {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCausePathError, Path: path}
	}
	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseEncodeFailure, Path: path}
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Path: path}
	}
	return nil
}
