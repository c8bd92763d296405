package narrative

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/orsinium-labs/stopwords"
)

// Entities is the result of one extraction pass over story text.
type Entities struct {
	Characters []string `json:"characters"`
	Locations  []string `json:"locations"`
	Objects    []string `json:"objects"`
	Emotions   []string `json:"emotions"`
	Actions    []string `json:"actions"`
}

// DefaultKeyElement is used when no capitalized token can anchor a choice.
const DefaultKeyElement = "the discovery"

var capitalizedRX = regexp.MustCompile(`\b[A-Z][A-Za-z']*\b`)

// Extractor finds best-effort entity hints in story text. It is safe for
// concurrent use once constructed.
type Extractor struct {
	vocab    *Vocabulary
	stop     map[string]struct{}
	english  *stopwords.Stopwords
	location *keywordSet
	object   *keywordSet
	emotion  *keywordSet
	action   *keywordSet
}

// NewExtractor compiles the vocabulary lists into matchers. A nil vocabulary
// uses DefaultVocabulary.
func NewExtractor(v *Vocabulary) (*Extractor, error) {
	if v == nil {
		v = DefaultVocabulary()
	}
	e := &Extractor{
		vocab:   v,
		stop:    make(map[string]struct{}, len(v.StopWords)),
		english: stopwords.MustGet("en"),
	}
	for _, w := range v.StopWords {
		e.stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}

	var err error
	if e.location, err = newKeywordSet(v.Locations); err != nil {
		return nil, err
	}
	if e.object, err = newKeywordSet(v.Objects); err != nil {
		return nil, err
	}
	if e.emotion, err = newKeywordSet(v.Emotions); err != nil {
		return nil, err
	}
	if e.action, err = newKeywordSet(v.Actions); err != nil {
		return nil, err
	}
	return e, nil
}

// Vocabulary returns the word lists the extractor was built from.
func (e *Extractor) Vocabulary() *Vocabulary {
	return e.vocab
}

// Extract runs every category over text. Character frequency is counted
// within text itself, so callers pass cumulative story text.
func (e *Extractor) Extract(text string) Entities {
	return e.ExtractIn(text, "")
}

// ExtractIn takes character candidates from text but counts their frequency
// over history plus text. Vocabulary categories only look at text.
func (e *Extractor) ExtractIn(text, history string) Entities {
	l := e.vocab.Limits
	return Entities{
		Characters: e.characters(text, history+"\n"+text, l.Characters),
		Locations:  e.location.find(text, l.Locations),
		Objects:    e.object.find(text, l.Objects),
		Emotions:   e.emotion.find(text, l.Emotions),
		Actions:    e.action.find(text, l.Actions),
	}
}

// IsStopWord reports whether a capitalized token is too common to be a name.
func (e *Extractor) IsStopWord(token string) bool {
	key := strings.ToLower(token)
	if _, ok := e.stop[key]; ok {
		return true
	}
	return e.english != nil && e.english.Contains(key)
}

func (e *Extractor) candidate(token string) bool {
	return utf8.RuneCountInString(token) > 2 && !e.IsStopWord(token)
}

func (e *Extractor) characters(text, cumulative string, limit int) []string {
	candidates := map[string]int{} // token -> first position in text
	var order []string
	for _, tok := range capitalizedRX.FindAllString(text, -1) {
		tok = strings.TrimSuffix(tok, "'s")
		if !e.candidate(tok) {
			continue
		}
		if _, ok := candidates[tok]; !ok {
			candidates[tok] = len(order)
			order = append(order, tok)
		}
	}
	if len(order) == 0 {
		return []string{}
	}

	counts := make(map[string]int, len(order))
	for _, tok := range capitalizedRX.FindAllString(cumulative, -1) {
		tok = strings.TrimSuffix(tok, "'s")
		if _, ok := candidates[tok]; ok {
			counts[tok]++
		}
	}

	kept := make([]string, 0, len(order))
	for _, tok := range order {
		if counts[tok] >= 2 {
			kept = append(kept, tok)
		}
	}
	slices.SortStableFunc(kept, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// KeyElement returns the first capitalized, non-stop token of text, or
// DefaultKeyElement when there is none.
func (e *Extractor) KeyElement(text string) string {
	for _, tok := range capitalizedRX.FindAllString(text, -1) {
		tok = strings.TrimSuffix(tok, "'s")
		if e.candidate(tok) {
			return tok
		}
	}
	return DefaultKeyElement
}

// Mentions counts how often name appears as a capitalized token in text.
func Mentions(text, name string) int {
	var n int
	for _, tok := range capitalizedRX.FindAllString(text, -1) {
		if strings.TrimSuffix(tok, "'s") == name {
			n++
		}
	}
	return n
}
