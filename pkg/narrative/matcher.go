package narrative

import (
	"strings"

	"github.com/coregx/ahocorasick"

	"taleweaver/pkg/utils"
)

// keywordSet answers "which of these words occur in the text" in one pass.
// Matching is case-insensitive substring containment, and results keep the
// order of the original word list.
type keywordSet struct {
	words []string
	ac    *ahocorasick.Automaton
}

func newKeywordSet(words []string) (*keywordSet, error) {
	ks := &keywordSet{}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			ks.words = append(ks.words, w)
		}
	}
	if len(ks.words) == 0 {
		return ks, nil
	}

	patterns := make([]string, len(ks.words))
	for i, w := range ks.words {
		patterns[i] = utils.LowerASCII(w)
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	ks.ac = automaton
	return ks, nil
}

// present reports, per word index, whether the word occurs in text.
func (k *keywordSet) present(text string) []bool {
	hits := make([]bool, len(k.words))
	if k.ac == nil || text == "" {
		return hits
	}
	for _, m := range k.ac.FindAllOverlapping([]byte(utils.LowerASCII(text))) {
		if m.PatternID >= 0 && m.PatternID < len(hits) {
			hits[m.PatternID] = true
		}
	}
	return hits
}

// find returns up to limit words found in text, in word-list order.
// limit <= 0 means no cap.
func (k *keywordSet) find(text string, limit int) []string {
	out := []string{}
	for i, hit := range k.present(text) {
		if !hit {
			continue
		}
		out = append(out, k.words[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// last returns the word whose occurrence ends furthest into text, or "".
func (k *keywordSet) last(text string) string {
	if k.ac == nil || text == "" {
		return ""
	}
	best, end := -1, -1
	for _, m := range k.ac.FindAllOverlapping([]byte(utils.LowerASCII(text))) {
		if m.PatternID < 0 || m.PatternID >= len(k.words) {
			continue
		}
		if m.End > end || (m.End == end && len(k.words[m.PatternID]) > len(k.words[best])) {
			best, end = m.PatternID, m.End
		}
	}
	if best < 0 {
		return ""
	}
	return k.words[best]
}

func (k *keywordSet) any(text string) bool {
	for _, hit := range k.present(text) {
		if hit {
			return true
		}
	}
	return false
}
