package request

import (
	"crypto/sha1"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key builds the deterministic request key described in SPEC_FULL.md §3:
// method | normalized-url | hash(sorted queryParameters) | hash(body).
// The same key is used for deduplication and, unless CachePolicy.Key
// overrides it, for cache indexing.
func (r *Request[T]) Key() string {
	norm := normalizeURL(r.Path)
	qh := hashQuery(r.Query)
	bh := hashBytes(r.Body)
	return fmt.Sprintf("%s|%s|%s|%s", r.Method, norm, qh, bh)
}

// CacheKey returns Cache.Key if set, otherwise Key().
func (r *Request[T]) CacheKey() string {
	if r.Cache.Key != "" {
		return r.Cache.Key
	}
	return r.Key()
}

func normalizeURL(path string) string {
	u, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return strings.TrimRight(path, "/")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func hashQuery(q map[string]string) string {
	if len(q) == 0 {
		return hashBytes(nil)
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q[k])
		b.WriteByte('&')
	}
	return hashBytes([]byte(b.String()))
}

func hashBytes(b []byte) string {
	sum := sha1.Sum(b)
	return fmt.Sprintf("%x", sum)
}
