// Package datekey extracts the grouping key that decides which merged
// artifact a fragment belongs to.
package datekey

import "regexp"

var datePattern = regexp.MustCompile(`[0-9]{4}\.(0[1-9]|1[0-2])\.(0[1-9]|[1-2][0-9]|3[0-1])`)

// Extract returns the first YYYY.MM.DD substring of name verbatim. Names
// without one report ok=false; that is an expected outcome, not an error.
func Extract(name string) (key string, ok bool) {
	match := datePattern.FindString(name)
	if match == "" {
		return "", false
	}
	return match, true
}
