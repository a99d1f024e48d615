package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/circle-snip/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseCaption decodes a model's JSON caption. Replies that are not JSON
// yield an empty caption rather than an error so callers can fall back to
// a free-text query.
func ParseCaption(raw string) *types.Caption {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return &types.Caption{}
	}

	var result types.Caption
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return &types.Caption{}
	}
	return &result
}

// SanitizeModelJSON removes code fences, comments and trailing commas and
// keeps only the outermost {...}
func SanitizeModelJSON(raw string) string {
	raw = StripFences(raw)

	raw = reBlockComment.ReplaceAllString(raw, "")
	// "//" inside URLs would be cut too; captions carry none
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// StripFences removes a surrounding triple-backtick block
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	return strings.Trim(raw, "`")
}
