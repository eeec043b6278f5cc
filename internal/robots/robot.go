package robots

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules when a worker admits a request

Robots checks occur after a request leaves the frontier, when a worker
admits it; the frontier itself does not consult robots.txt.
*/

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/internal/robots/cache"
)

// CachedRobot is the crawl-facing Robots Cache: one fetch per origin for the
// lifetime of the crawl, consulted for every request a worker admits.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	fetcher      *RobotsFetcher
	userAgent    string
}

// NewCachedRobot constructs a Robot bound to the given metadata sink. Call
// Init or InitWithCache before the first Decide.
func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: metadataSink}
}

// Init wires up the default in-memory cache for the given user agent.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache wires up a caller-supplied cache implementation, useful for
// tests or for sharing a cache across robot instances.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, c)
}

// Decide answers whether u may be crawled under this robot's user agent,
// fetching and caching the origin's robots.txt on first reference. Any
// failure to fetch or parse robots.txt is recorded to the metadata sink as a
// warning and yields a permissive default (Allowed: true) rather than a hard
// failure — a 503 or network blip on robots.txt must not drop the page
// itself.
func (r *CachedRobot) Decide(u url.URL) (Decision, *RobotsError) {
	fetchResult, err := r.fetcher.Fetch(context.Background(), u.Scheme, u.Host)
	if err != nil {
		r.metadataSink.RecordError(
			time.Now(),
			"robots",
			"CachedRobot.Decide",
			mapRobotsErrorToMetadataCause(err),
			"robots.txt fetch failed, defaulting to permissive: "+err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, u.String()),
				metadata.NewAttr(metadata.AttrHost, u.Host),
			},
		)
		return Decision{Url: u, Allowed: true, Reason: FetchFailedPermissive}, nil
	}

	rs := MapResponseToRuleSet(fetchResult.Response, r.userAgent, fetchResult.FetchedAt)

	allowed, reason := evaluate(rs, u.Path)

	decision := Decision{
		Url:     u,
		Allowed: allowed,
		Reason:  reason,
	}
	if delay := rs.CrawlDelay(); delay != nil {
		decision.CrawlDelay = *delay
	}
	return decision, nil
}

// evaluate implements the robots.txt longest-match-wins rule, with ties
// broken in favor of Allow, generalized to support "*" wildcards and a
// trailing "$" end anchor in path patterns (Google's de facto extension).
func evaluate(rs ruleSet, path string) (bool, DecisionReason) {
	if !rs.hasGroups {
		return true, EmptyRuleSet
	}
	if !rs.matchedGroup {
		return true, UserAgentNotMatched
	}

	type candidate struct {
		length int
		allow  bool
	}
	var best *candidate
	consider := func(prefix string, allow bool) {
		if !compilePattern(prefix).MatchString(path) {
			return
		}
		if best == nil || len(prefix) > best.length || (len(prefix) == best.length && allow && !best.allow) {
			best = &candidate{length: len(prefix), allow: allow}
		}
	}
	for _, rule := range rs.allowRules {
		consider(rule.prefix, true)
	}
	for _, rule := range rs.disallowRules {
		consider(rule.prefix, false)
	}

	if best == nil {
		return true, NoMatchingRules
	}
	if best.allow {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}

// compilePattern turns a robots.txt path pattern into an anchored regexp.
// "*" matches any run of characters; a trailing "$" anchors the match to the
// end of the path, otherwise the pattern only needs to match as a prefix.
func compilePattern(pattern string) *regexp.Regexp {
	endAnchored := strings.HasSuffix(pattern, "$")
	body := strings.TrimSuffix(pattern, "$")

	segments := strings.Split(body, "*")
	quoted := make([]string, len(segments))
	for i, s := range segments {
		quoted[i] = regexp.QuoteMeta(s)
	}

	expr := "^" + strings.Join(quoted, ".*")
	if endAnchored {
		expr += "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return regexp.MustCompile(`^$`)
	}
	return re
}
