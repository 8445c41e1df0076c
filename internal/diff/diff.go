// Package diff renders line-level change summaries between canonical texts.
// The output is presentational only; change detection relies on fingerprints.
package diff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// Line prefixes used in change summaries.
const (
	AddedPrefix   = "ADDED: "
	RemovedPrefix = "REMOVED: "
)

// Lines compares oldText and newText line by line with no context and
// returns the formatted changes. It returns false when no line differs.
// If the summary exceeds maxLength runes it is cut at that boundary and a
// truncation marker with the total change count is appended; maxLength <= 0
// disables truncation.
func Lines(oldText, newText string, maxLength int) (string, bool) {
	changes := Changes(oldText, newText)
	if len(changes) == 0 {
		return "", false
	}

	text := strings.Join(changes, "\n")
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		text = truncate(text, maxLength) +
			fmt.Sprintf("\n... (truncated, %d total changes)", len(changes))
	}
	return text, true
}

// Changes returns one prefixed entry per removed or added line. Within a
// replaced block all removals precede all additions.
func Changes(oldText, newText string) []string {
	a, b := splitLines(oldText), splitLines(newText)

	var changes []string
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'r' || op.Tag == 'd' {
			for _, l := range a[op.I1:op.I2] {
				changes = append(changes, RemovedPrefix+l)
			}
		}
		if op.Tag == 'r' || op.Tag == 'i' {
			for _, l := range b[op.J1:op.J2] {
				changes = append(changes, AddedPrefix+l)
			}
		}
	}
	return changes
}

// splitLines treats empty text as having no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
