// Package urlnorm implements the frontier's URL normalization algorithm.
//
// This is distinct from pkg/urlutil.Canonicalize, which strips query strings
// entirely and is used for asset/link deduplication where query parameters
// carry no crawl-relevant identity. The frontier needs the opposite: queries
// often ARE the identity of a page (?id=123), so they are preserved, just
// reordered into a deterministic key order so that ?b=2&a=1 and ?a=1&b=2
// collide in the seen-set.
package urlnorm

import (
	"sort"
	"strings"
)

// Normalize applies the frontier's exact normalization algorithm:
//  1. Lower-case the entire string; trim whitespace.
//  2. If a query string exists, split on the first '?'.
//  3. Parse key[=value] pairs split on '&'; ignore empties; insert into an
//     ordered map keyed by lower-cased key, value unchanged; duplicate keys
//     keep the last occurrence.
//  4. Rebuild as base?k1=v1&k2=v2... in key order.
//
// Properties: pure, deterministic, idempotent (Normalize(Normalize(u)) ==
// Normalize(u)), context-free.
func Normalize(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))

	base, query, hasQuery := strings.Cut(s, "?")
	if !hasQuery {
		return base
	}

	params := parseParams(query)
	if len(params) == 0 {
		return base
	}

	return base + "?" + buildQuery(params)
}

// parseParams splits query on '&', ignores empty segments, and keeps the
// last value for any repeated key. The lower-casing of keys has already
// happened as part of lower-casing the whole string in Normalize.
func parseParams(query string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		params[key] = value
	}
	return params
}

// buildQuery rebuilds the pairs in key order, producing a deterministic
// string regardless of the original parameter order.
func buildQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		if v := params[k]; v != "" {
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}
