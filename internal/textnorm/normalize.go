// Package textnorm canonicalizes text for width, case and whitespace
// insensitive matching.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC, drops every whitespace rune and lowercases.
func Normalize(s string) string {
	out, _ := NormalizeWithIndex(s)
	return out
}

// NormalizeWithIndex is Normalize that also reports, for each rune of the
// result, the index of the source rune it came from. Runes produced by a
// composed segment all map to the first source rune of that segment.
//
// Removing whitespace can bring a base character next to a combining mark it
// was separated from, so the stripped text is composed a second time.
func NormalizeWithIndex(s string) (string, []int) {
	stripped, index := nfkcStripped(s, nil)
	folded, index := nfkcStripped(stripped, index)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String(), index
}

// nfkcStripped applies NFKC and drops whitespace. Each output rune maps to
// the first input rune of its segment, translated through from when set.
func nfkcStripped(s string, from []int) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	index := make([]int, 0, utf8.RuneCountInString(s))

	var it norm.Iter
	it.InitString(norm.NFKC, s)
	start, runeIdx := 0, 0
	for !it.Done() {
		seg := it.Next()
		src := runeIdx
		if from != nil {
			src = from[runeIdx]
		}
		for _, r := range string(seg) {
			if unicode.IsSpace(r) {
				continue
			}
			b.WriteRune(r)
			index = append(index, src)
		}
		end := it.Pos()
		runeIdx += utf8.RuneCountInString(s[start:end])
		start = end
	}
	return b.String(), index
}

// Contains reports whether needle occurs in haystack after normalizing both.
func Contains(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}
