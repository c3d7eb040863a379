package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInputBytes caps the text sent to the analyzer.
const MaxInputBytes = 8000

// Normalization regexes compiled once at package init.
var (
	reHTMLTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	reQuotedLine  = regexp.MustCompile(`(?m)^\s*>.*$`)
	reReplyHeader = regexp.MustCompile(`(?im)^\s*On .{1,200} wrote:\s*$`)
	reSignature   = regexp.MustCompile(`(?m)^-- ?$`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// PrepareText turns a raw message into analyzer input: markup and quoted
// replies are dropped, whitespace collapsed and the result capped at
// MaxInputBytes. The subject, when present, leads the text.
func PrepareText(subject, content string) string {
	body := reHTMLTag.ReplaceAllString(content, " ")
	if loc := reReplyHeader.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	if loc := reSignature.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	body = reQuotedLine.ReplaceAllString(body, "")
	body = collapse(body)

	subject = collapse(subject)
	text := body
	if subject != "" {
		text = "Subject: " + subject + "\n\n" + body
	}
	return TruncateString(strings.TrimSpace(text), MaxInputBytes)
}

func collapse(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

var severities = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// SeverityRank maps a severity label to an ordinal; unknown labels rank 0.
func SeverityRank(severity string) int {
	return severities[strings.ToLower(strings.TrimSpace(severity))]
}

// NormalizeSeverity returns a known lowercase severity, or "low".
func NormalizeSeverity(severity string) string {
	s := strings.ToLower(strings.TrimSpace(severity))
	if _, ok := severities[s]; ok {
		return s
	}
	switch s {
	case "urgent", "severe":
		return "critical"
	case "moderate", "normal":
		return "medium"
	}
	return "low"
}

// NormalizeSentiment returns positive, negative or neutral.
func NormalizeSentiment(sentiment string) string {
	switch strings.ToLower(strings.TrimSpace(sentiment)) {
	case "positive":
		return "positive"
	case "negative":
		return "negative"
	default:
		return "neutral"
	}
}

// TruncateString truncates s to maxBytes without splitting UTF-8 runes.
func TruncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
