package narrative

import (
	"fmt"
	"slices"
	"strings"
)

// NeutralTone is reported when no tone group matches.
const NeutralTone = "neutral"

type toneMatcher struct {
	name string
	set  *keywordSet
}

// Checker compares the current setting against the story so far and emits
// advisory warnings. Warnings never block generation.
type Checker struct {
	tones   []toneMatcher
	setting *keywordSet
}

// NewChecker compiles the tone groups and setting keywords of v.
func NewChecker(v *Vocabulary) (*Checker, error) {
	if v == nil {
		v = DefaultVocabulary()
	}
	c := &Checker{}
	for _, g := range v.ToneGroups {
		set, err := newKeywordSet(g.Keywords)
		if err != nil {
			return nil, fmt.Errorf("tone group %q: %w", g.Name, err)
		}
		c.tones = append(c.tones, toneMatcher{name: g.Name, set: set})
	}
	set, err := newKeywordSet(v.SettingKeywords)
	if err != nil {
		return nil, fmt.Errorf("setting keywords: %w", err)
	}
	c.setting = set
	return c, nil
}

// Tone returns the first tone group whose keywords appear in text.
func (c *Checker) Tone(text string) string {
	for _, t := range c.tones {
		if t.set.any(text) {
			return t.name
		}
	}
	return NeutralTone
}

// Tones returns every tone group present in text, in group order.
func (c *Checker) Tones(text string) []string {
	var out []string
	for _, t := range c.tones {
		if t.set.any(text) {
			out = append(out, t.name)
		}
	}
	return out
}

// Check returns tone and setting warnings for current given the text of the
// previous segments. No history means no warnings.
func (c *Checker) Check(previous []string, current SettingInfo) []string {
	warnings := []string{}
	history := strings.Join(previous, "\n")
	if strings.TrimSpace(history) == "" {
		return warnings
	}

	now := current.Location + " " + current.Atmosphere
	tone := c.Tone(now)
	if before := c.Tones(history); len(before) > 0 && !slices.Contains(before, tone) {
		warnings = append(warnings, fmt.Sprintf(
			"Tone shift: the story has been %s but the current scene feels %s. Keep the mood consistent or explain the change.",
			strings.Join(before, "/"), tone))
	}

	seen := c.setting.find(history, 0)
	if len(seen) == 0 {
		return warnings
	}
	hits := c.setting.present(current.Location)
	var stayed bool
	for i, w := range c.setting.words {
		if hits[i] && slices.Contains(seen, w) {
			stayed = true
			break
		}
	}
	if !stayed {
		to := current.Location
		if strings.TrimSpace(to) == "" {
			to = "an unknown place"
		}
		warnings = append(warnings, fmt.Sprintf(
			"Setting changed from %s to %s. Describe how the characters got there.",
			strings.Join(seen, ", "), to))
	}
	return warnings
}
