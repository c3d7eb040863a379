package msgquery

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QueryBuilder constructs search query strings for the messaging source.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// SyncParams defines inputs for incremental sync queries.
type SyncParams struct {
	Since         time.Time
	Labels        []string
	ExcludeLabels []string
}

// SearchParams defines inputs for a free-text search.
type SearchParams struct {
	From    string
	Since   time.Time
	Until   time.Time
	Keyword string
}

// BuildSyncQuery returns the query for every message received after Since.
// A zero Since selects the whole mailbox.
func (b QueryBuilder) BuildSyncQuery(p SyncParams) string {
	var parts []string
	if tf := b.buildAfter(p.Since); tf != "" {
		parts = append(parts, tf)
	}
	if lf := b.buildLabelFilter(p.Labels, false); lf != "" {
		parts = append(parts, lf)
	}
	if lf := b.buildLabelFilter(p.ExcludeLabels, true); lf != "" {
		parts = append(parts, lf)
	}
	return strings.Join(parts, " ")
}

// BuildSearchQuery returns a query for an operator-driven message search.
func (b QueryBuilder) BuildSearchQuery(p SearchParams) string {
	var parts []string
	if p.From != "" {
		parts = append(parts, "from:"+quote(p.From))
	}
	if tf := b.buildAfter(p.Since); tf != "" {
		parts = append(parts, tf)
	}
	if !p.Until.IsZero() {
		parts = append(parts, "before:"+strconv.FormatInt(p.Until.Unix(), 10))
	}
	if p.Keyword != "" {
		parts = append(parts, quote(p.Keyword))
	}
	return strings.Join(parts, " ")
}

func (b QueryBuilder) buildAfter(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return "after:" + strconv.FormatInt(since.Unix(), 10)
}

func (b QueryBuilder) buildLabelFilter(labels []string, exclude bool) string {
	if len(labels) == 0 {
		return ""
	}
	prefix := "label:"
	if exclude {
		prefix = "-label:"
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		out = append(out, prefix+quote(l))
	}
	return strings.Join(out, " ")
}

// quote wraps values containing spaces or quotes so they stay one term.
func quote(v string) string {
	if !strings.ContainsAny(v, " \t\"") {
		return v
	}
	return fmt.Sprintf("%q", v)
}
