// Package strcase splits identifiers into words.
package strcase

import (
	"unicode"
	"unicode/utf8"
)

const (
	classOther = iota
	classLower
	classUpper
	classDigit
)

func classify(r rune) int {
	switch {
	case unicode.IsLower(r):
		return classLower
	case unicode.IsUpper(r):
		return classUpper
	case unicode.IsDigit(r):
		return classDigit
	default:
		return classOther
	}
}

// Split an identifier into words on case, digit and punctuation boundaries.
//
// A run of upper case letters followed by a lower case letter donates its last
// letter to the next word, so "HTTPServer" splits into "HTTP" and "Server".
func Split(src string) []string {
	if !utf8.ValidString(src) {
		return []string{src}
	}
	runs := [][]rune{}
	lastClass := -1
	for _, r := range src {
		class := classify(r)
		if class == lastClass {
			runs[len(runs)-1] = append(runs[len(runs)-1], r)
		} else {
			runs = append(runs, []rune{r})
		}
		lastClass = class
	}
	for i := 0; i < len(runs)-1; i++ {
		if unicode.IsUpper(runs[i][0]) && unicode.IsLower(runs[i+1][0]) {
			last := len(runs[i]) - 1
			runs[i+1] = append([]rune{runs[i][last]}, runs[i+1]...)
			runs[i] = runs[i][:last]
		}
	}
	out := make([]string, 0, len(runs))
	for _, run := range runs {
		if len(run) > 0 {
			out = append(out, string(run))
		}
	}
	return out
}
