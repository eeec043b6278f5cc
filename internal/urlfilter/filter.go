// Package urlfilter decides whether a discovered URL is even eligible to be
// considered for crawling, before robots.txt or the frontier see it.
package urlfilter

import (
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
)

// compiledRules is the atomically-swapped set of block patterns. Readers
// always see either the old or the new set, never a torn view.
type compiledRules struct {
	patterns []*regexp.Regexp
}

// Filter holds the allow-list of hosts and the block-list of URL patterns.
// Zero value is usable: an empty allow-list allows every host, and an empty
// block-list blocks nothing.
type Filter struct {
	allowedHosts map[string]struct{}
	rules        atomic.Pointer[compiledRules]
}

// New builds a Filter from a host allow-list (case-insensitive; empty means
// "allow any host") and a set of regex block patterns. Patterns are compiled
// once up front; an invalid pattern is skipped rather than failing
// construction, since a single bad pattern must not disable the whole
// crawl's URL filtering.
func New(allowedHosts []string, blockPatterns []string) *Filter {
	f := &Filter{allowedHosts: make(map[string]struct{}, len(allowedHosts))}
	for _, h := range allowedHosts {
		f.allowedHosts[strings.ToLower(h)] = struct{}{}
	}
	f.Reload(blockPatterns)
	return f
}

// Reload recompiles the block-list and atomically swaps it in. Safe to call
// concurrently with IsAllowed.
func (f *Filter) Reload(blockPatterns []string) {
	compiled := &compiledRules{patterns: make([]*regexp.Regexp, 0, len(blockPatterns))}
	for _, p := range blockPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiled.patterns = append(compiled.patterns, re)
	}
	f.rules.Store(compiled)
}

// IsAllowed combines the three URL Filter decisions: scheme must be http(s),
// the host must be on the allow-list when one is configured, and no
// block-list pattern may match the full URL.
func (f *Filter) IsAllowed(u url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if len(f.allowedHosts) > 0 {
		if _, ok := f.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
			return false
		}
	}

	rules := f.rules.Load()
	if rules == nil {
		return true
	}
	full := u.String()
	for _, re := range rules.patterns {
		if re.MatchString(full) {
			return false
		}
	}
	return true
}
