package frontier

import (
	"math"
	"strings"
	"time"
)

/*
Priority scoring (§4.H)

Scores are recomputed from the live request/domain state every time the
store is scanned, rather than cached once at enqueue time: invariant 3
requires that an older queued entry never loses score purely from the
passage of time, which a one-shot score frozen at insertion cannot satisfy
(the anti-starvation term and the domain's evolving error rate both move
the score after insertion). container/heap's invariant assumes priorities
are stable between mutations, which does not hold here, so the store keeps
a flat slice and recomputes on each Dequeue scan instead of maintaining a
heap.
*/

const (
	depthPenaltyPerLevel   = 10.0
	articleBonus           = 10.0
	categoryBonus          = 5.0
	documentBonus          = 8.0
	highPriorityDomainBonus = 15.0
	errorRatePenaltyScale  = 20.0
	repeatedErrorPenalty   = 5.0
	repeatedErrorThreshold = 3
	antiStarvationInterval = 10.0
	speedBonusCeilingMs    = 1000.0
	speedBonusDivisor      = 100.0
	minScore               = 1.0
)

func score(req CrawlRequest, now time.Time, stats domainSnapshot, highPriority map[string]struct{}) float64 {
	s := float64(req.Priority)
	s -= float64(req.Depth) * depthPenaltyPerLevel

	path := strings.ToLower(req.Url.Path)
	switch {
	case strings.Contains(path, "/article/") || strings.Contains(path, "/news/") || strings.Contains(path, "/blog/"):
		s += articleBonus
	case strings.Contains(path, "/category/") || strings.Contains(path, "/tag/"):
		s += categoryBonus
	case strings.HasSuffix(path, ".pdf") || strings.HasSuffix(path, ".doc") || strings.HasSuffix(path, ".docx"):
		s += documentBonus
	}

	if _, ok := highPriority[strings.ToLower(req.Url.Hostname())]; ok {
		s += highPriorityDomainBonus
	}

	avg := stats.avgDownloadMs
	if avg > speedBonusCeilingMs {
		avg = speedBonusCeilingMs
	}
	s += (speedBonusCeilingMs - avg) / speedBonusDivisor

	s -= stats.errorRate() * errorRatePenaltyScale

	if stats.lastEventError && stats.errorCount > repeatedErrorThreshold {
		s -= repeatedErrorPenalty
	}

	waitSeconds := now.Sub(req.QueuedAt).Seconds()
	if waitSeconds > 0 {
		s += math.Floor(waitSeconds / antiStarvationInterval)
	}

	if s < minScore {
		s = minScore
	}
	return s
}
