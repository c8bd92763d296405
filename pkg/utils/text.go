package utils

import (
	"strings"
	"unicode"

	"github.com/aryann/difflib"
)

// TokenizeWords splits s into runs of whitespace, word characters and punctuation.
func TokenizeWords(s string) []string {
	var out []string
	var cur []rune
	kind := -1 // 0=space,1=word,2=punct
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, string(cur))
		cur = cur[:0]
	}
	for _, r := range s {
		k := 2
		switch {
		case unicode.IsSpace(r):
			k = 0
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '-' || r == '\'':
			k = 1
		}
		if kind == -1 {
			kind = k
		}
		if k != kind {
			flush()
			kind = k
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// WordDelta is one token of a word-level diff: Op is -1 for removed,
// +1 for added and 0 for unchanged.
type WordDelta struct {
	Op   int
	Text string
}

// DiffWords diffs a and b at word granularity.
func DiffWords(a, b string) []WordDelta {
	at := TokenizeWords(a)
	bt := TokenizeWords(b)
	recs := difflib.Diff(at, bt)
	out := make([]WordDelta, 0, len(recs))
	for _, r := range recs {
		switch r.Delta {
		case difflib.Common:
			out = append(out, WordDelta{Op: 0, Text: r.Payload})
		case difflib.LeftOnly:
			out = append(out, WordDelta{Op: -1, Text: r.Payload})
		case difflib.RightOnly:
			out = append(out, WordDelta{Op: +1, Text: r.Payload})
		}
	}
	return out
}

// ChangedWords counts the words removed from a or added in b. Whitespace runs
// are ignored, so a one-word swap for a two-word phrase counts three.
func ChangedWords(a, b string) int {
	if a == b {
		return 0
	}
	n := 0
	for _, d := range DiffWords(a, b) {
		if d.Op != 0 && strings.TrimSpace(d.Text) != "" {
			n++
		}
	}
	return n
}
