package safety

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"

	"taleweaver/pkg/utils"
)

// Rule replaces a whole word or phrase with a gentler one.
type Rule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// DefaultRules returns the built-in replacements for children's stories.
func DefaultRules() []Rule {
	return []Rule{
		{"fight", "work together"},
		{"fights", "work together"},
		{"fighting", "working together"},
		{"fought", "worked together"},
		{"fighter", "helper"},
		{"fighters", "helpers"},
		{"firefight", "rescue"},
		{"firefighter", "fire rescuer"},
		{"firefighters", "fire rescuers"},
		{"battle", "challenge"},
		{"battles", "challenges"},
		{"battled", "took on a challenge"},
		{"battling", "taking on a challenge"},
		{"kill", "stop"},
		{"kills", "stops"},
		{"killed", "stopped"},
		{"killing", "stopping"},
		{"killer", "troublemaker"},
		{"killers", "troublemakers"},
		{"weapon", "tool"},
		{"weapons", "tools"},
		{"gun", "bubble wand"},
		{"guns", "bubble wands"},
		{"blood", "paint"},
		{"bloody", "messy"},
		{"die", "rest"},
		{"died", "fell asleep"},
		{"dying", "resting"},
		{"dead", "sleeping"},
		{"death", "goodbye"},
		{"hate", "dislike"},
		{"hates", "dislikes"},
		{"hated", "disliked"},
		{"stupid", "silly"},
		{"idiot", "silly goose"},
		{"terrifying", "surprising"},
		{"evil", "grumpy"},
		{"attack", "surprise"},
		{"attacked", "surprised"},
		{"attacks", "surprises"},
		{"attacking", "surprising"},
		{"hurt", "bumped"},
		{"hurts", "bumps"},
		{"hurting", "bumping"},
		{"shut up", "please be quiet"},
	}
}

// Hit is one replaced occurrence. Offsets refer to the original text.
type Hit struct {
	Word        string `json:"word"`
	Replacement string `json:"replacement"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Report is the result of sanitizing one piece of text.
type Report struct {
	Text    string `json:"text"`
	Hits    []Hit  `json:"hits"`
	Changed int    `json:"changed"`
}

func (r Report) Clean() bool {
	return len(r.Hits) == 0
}

// Filter mechanically replaces flagged words. It never rejects text.
type Filter struct {
	rules []Rule
	ac    *ahocorasick.Automaton
}

// New compiles rules into a Filter. Nil rules use DefaultRules.
func New(rules []Rule) (*Filter, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	f := &Filter{}
	for _, r := range rules {
		if p := strings.TrimSpace(r.Pattern); p != "" {
			f.rules = append(f.rules, Rule{Pattern: utils.LowerASCII(p), Replacement: r.Replacement})
		}
	}
	if len(f.rules) == 0 {
		return f, nil
	}

	patterns := make([]string, len(f.rules))
	for i, r := range f.rules {
		patterns[i] = r.Pattern
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	f.ac = automaton
	return f, nil
}

// Sanitize replaces every whole-word, case-insensitive match. Where matches
// overlap the leftmost then longest wins. A capitalized match gets a
// capitalized replacement.
func (f *Filter) Sanitize(text string) Report {
	report := Report{Text: text, Hits: []Hit{}}
	if f == nil || f.ac == nil || text == "" {
		return report
	}

	type span struct{ start, end, rule int }
	var spans []span
	for _, m := range f.ac.FindAllOverlapping([]byte(utils.LowerASCII(text))) {
		if m.PatternID < 0 || m.PatternID >= len(f.rules) {
			continue
		}
		if wordBoundary(text, m.Start, m.End) {
			spans = append(spans, span{m.Start, m.End, m.PatternID})
		}
	}
	if len(spans) == 0 {
		return report
	}
	slices.SortFunc(spans, func(a, b span) int {
		return cmp.Or(cmp.Compare(a.start, b.start), cmp.Compare(b.end, a.end))
	})

	var sb strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			continue
		}
		word := text[s.start:s.end]
		repl := matchCase(word, f.rules[s.rule].Replacement)
		sb.WriteString(text[last:s.start])
		sb.WriteString(repl)
		report.Hits = append(report.Hits, Hit{Word: word, Replacement: repl, Start: s.start, End: s.end})
		last = s.end
	}
	sb.WriteString(text[last:])
	report.Text = sb.String()

	report.Changed = utils.ChangedWords(text, report.Text)
	return report
}

// Clean is Sanitize returning only the text.
func (f *Filter) Clean(text string) string {
	return f.Sanitize(text).Text
}

func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWord(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWord(r) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func matchCase(word, repl string) string {
	r, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsUpper(r) || repl == "" {
		return repl
	}
	if strings.ToUpper(word) == word && utf8.RuneCountInString(word) > 1 {
		return strings.ToUpper(repl)
	}
	first, size := utf8.DecodeRuneInString(repl)
	return string(unicode.ToUpper(first)) + repl[size:]
}
