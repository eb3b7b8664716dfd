package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold normalises a string for case-insensitive uniqueness checks. The folded
// form is what gets stored in *_folded columns and compared against.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
