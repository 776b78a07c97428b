package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	perr "querypilot/internal/platform/errors"
)

// thoughtRe captures an optional free-form reasoning block the model
// may emit before its JSON
var thoughtRe = regexp.MustCompile(`(?s)<thought>(.*?)</thought>`)

// StripThought removes the first thought block and returns its content
// separately
func StripThought(text string) (clean, thought string) {
	loc := thoughtRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, ""
	}
	thought = strings.TrimSpace(text[loc[2]:loc[3]])
	clean = text[:loc[0]] + text[loc[1]:]
	return clean, thought
}

// ExtractJSON pulls a JSON object out of free-form model output. The
// extractors run strictest first: fenced block, string-aware brace
// walk, greedy brace regex, then a line scan that drops comment lines.
// Each candidate gets a trailing-comma cleanup before parsing
func ExtractJSON(text string) (string, error) {
	extractors := []func(string) (string, bool){
		fromFence,
		fromBraceWalk,
		fromGreedyBraces,
		fromLineScan,
	}
	for _, extract := range extractors {
		raw, ok := extract(text)
		if !ok {
			continue
		}
		cleaned := stripTrailingCommas(raw)
		if json.Valid([]byte(cleaned)) {
			return cleaned, nil
		}
	}
	return "", perr.InvalidModelJSONf("no parseable JSON in model output: %q", excerpt(text))
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

func fromFence(text string) (string, bool) {
	m := fenceRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// fromBraceWalk takes the substring from the first { to its matching },
// tracking string literals and escapes so braces inside values do not
// unbalance the walk
func fromBraceWalk(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

var greedyRe = regexp.MustCompile(`(?s)\{.*\}`)

func fromGreedyBraces(text string) (string, bool) {
	m := greedyRe.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// fromLineScan drops comment lines, then accumulates from the first
// line containing { until braces balance
func fromLineScan(text string) (string, bool) {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#") {
			continue
		}
		kept = append(kept, line)
	}
	joined := strings.Join(kept, "\n")
	return fromBraceWalk(joined)
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

const excerptLen = 200

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= excerptLen {
		return s
	}
	return s[:excerptLen] + "..."
}
