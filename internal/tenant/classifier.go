// Package tenant assigns a tenant tag to each synced message.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// Metadata is the source-side information a classifier may inspect.
type Metadata struct {
	From    string
	To      []string
	Labels  []string
	Subject string
}

// Classifier maps message metadata to a tenant tag. It must never return "".
type Classifier func(Metadata) string

type rule struct {
	tag   string
	field string
	re    *regexp.Regexp
}

var fields = map[string]bool{"from": true, "to": true, "label": true, "subject": true}

// NewRuleClassifier parses "tag=pattern;tag=pattern" rules. A pattern is a
// case-insensitive regular expression, optionally scoped to one field with a
// "from:", "to:", "label:" or "subject:" prefix; unscoped patterns test every
// field. Rules are tried in order and the first match wins; fallback is
// returned when nothing matches.
func NewRuleClassifier(rules, fallback string) (Classifier, error) {
	if fallback == "" {
		return nil, fmt.Errorf("tenant fallback must not be empty")
	}

	var parsed []rule
	for _, part := range strings.Split(rules, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag, pattern, ok := strings.Cut(part, "=")
		tag, pattern = strings.TrimSpace(tag), strings.TrimSpace(pattern)
		if !ok || tag == "" || pattern == "" {
			return nil, fmt.Errorf("tenant rule %q: want tag=pattern", part)
		}

		r := rule{tag: tag}
		if field, rest, found := strings.Cut(pattern, ":"); found && fields[strings.ToLower(field)] {
			r.field = strings.ToLower(field)
			pattern = rest
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("tenant rule %q: %w", part, err)
		}
		r.re = re
		parsed = append(parsed, r)
	}

	return func(m Metadata) string {
		for _, r := range parsed {
			if r.matches(m) {
				return r.tag
			}
		}
		return fallback
	}, nil
}

// Static returns a classifier that tags everything with tag.
func Static(tag string) Classifier {
	return func(Metadata) string { return tag }
}

func (r rule) matches(m Metadata) bool {
	switch r.field {
	case "from":
		return r.re.MatchString(m.From)
	case "to":
		return anyMatch(r.re, m.To)
	case "label":
		return anyMatch(r.re, m.Labels)
	case "subject":
		return r.re.MatchString(m.Subject)
	}
	return r.re.MatchString(m.From) || anyMatch(r.re, m.To) || anyMatch(r.re, m.Labels) || r.re.MatchString(m.Subject)
}

func anyMatch(re *regexp.Regexp, values []string) bool {
	for _, v := range values {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}
