package pg

import (
	"fmt"
	"regexp"
	"strings"
)

var limitRe = regexp.MustCompile(`(?is)\blimit\s+\d+`)

// EnsureLimit appends "LIMIT n" to statements that carry none. The
// second return reports whether the cap applies, so callers know a full
// result means truncation
func EnsureLimit(sql string, maxRows int) (string, bool) {
	if maxRows <= 0 {
		return sql, false
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if limitRe.MatchString(trimmed) {
		return trimmed, false
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows), true
}

// QuoteIdent double-quotes an identifier, doubling embedded quotes
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func truncationWarning(maxRows int) string {
	return fmt.Sprintf("results truncated to %d rows", maxRows)
}

// hitRowCap reports whether a result of n rows filled the cap. This is
// independent of who wrote the LIMIT; a model-emitted LIMIT that comes
// back full still counts as truncation
func hitRowCap(n, maxRows int) bool {
	return maxRows > 0 && n >= maxRows
}
