package narrative

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"taleweaver/pkg/schema"
	"taleweaver/pkg/utils"
)

// ArcStage is the coarse position of a story in its narrative arc.
type ArcStage string

const (
	ArcSetup        ArcStage = "setup"
	ArcIntroduction ArcStage = "introduction"
	ArcDevelopment  ArcStage = "development"
	ArcRisingAction ArcStage = "rising-action"
	ArcClimax       ArcStage = "climax"
	ArcResolution   ArcStage = "resolution"
)

// StageFor maps a segment count onto an arc stage. It never decreases as
// count grows.
func StageFor(count int) ArcStage {
	switch {
	case count <= 0:
		return ArcSetup
	case count <= 2:
		return ArcIntroduction
	case count <= 4:
		return ArcDevelopment
	case count <= 6:
		return ArcRisingAction
	case count <= 8:
		return ArcClimax
	default:
		return ArcResolution
	}
}

type ThreadStatus string

const (
	ThreadIntroduced ThreadStatus = "introduced"
	ThreadActive     ThreadStatus = "active"
	ThreadResolved   ThreadStatus = "resolved"
)

type Importance string

const (
	ImportanceMajor Importance = "major"
	ImportanceMinor Importance = "minor"
)

const (
	RoleProtagonist = "protagonist"
	RoleSupporting  = "supporting"
)

// CharacterInfo is what the heuristics could infer about one character.
type CharacterInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Role           string   `json:"role"`
	Personality    string   `json:"personality"`
	Appearance     string   `json:"appearance"`
	Relationships  []string `json:"relationships"`
	Location       string   `json:"location"`
	EmotionalState string   `json:"emotional_state"`
	Mentions       int      `json:"mentions"`
}

type SettingInfo struct {
	Location    string `json:"location"`
	Atmosphere  string `json:"atmosphere"`
	Description string `json:"description"`
}

type PlotThread struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      ThreadStatus `json:"status"`
	Importance  Importance   `json:"importance"`
}

// Open reports whether the thread still needs resolving.
func (t PlotThread) Open() bool {
	return t.Status != ThreadResolved
}

type WorldRule struct {
	Genre       string `json:"genre"`
	Description string `json:"description"`
}

// Transition describes a location change requested by the reader's choice.
type Transition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Method string `json:"method"`
}

// StoryContext is rebuilt from segment history on every request and never
// persisted.
type StoryContext struct {
	Summary      string          `json:"summary"`
	Objective    string          `json:"objective"`
	Arc          ArcStage        `json:"arc_stage"`
	Characters   []CharacterInfo `json:"characters"`
	Setting      SettingInfo     `json:"setting"`
	Threads      []PlotThread    `json:"plot_threads"`
	Rules        []WorldRule     `json:"world_rules"`
	Tone         string          `json:"tone"`
	Genre        string          `json:"genre"`
	Warnings     []string        `json:"warnings"`
	RecentEvent  string          `json:"recent_event"`
	SegmentCount int             `json:"segment_count"`
	Transition   *Transition     `json:"transition,omitempty"`
}

// ActiveThreads returns the threads that are not resolved.
func (c StoryContext) ActiveThreads() []PlotThread {
	var out []PlotThread
	for _, t := range c.Threads {
		if t.Open() {
			out = append(out, t)
		}
	}
	return out
}

// Builder reconstructs a StoryContext from raw segment text.
type Builder struct {
	vocab      *Vocabulary
	extractor  *Extractor
	checker    *Checker
	conflict   *keywordSet
	resolution *keywordSet
	transition *keywordSet
	tones      *keywordSet
}

// NewBuilder compiles every matcher the builder needs from v. A nil
// vocabulary uses DefaultVocabulary.
func NewBuilder(v *Vocabulary) (*Builder, error) {
	if v == nil {
		v = DefaultVocabulary()
	}
	ex, err := NewExtractor(v)
	if err != nil {
		return nil, err
	}
	ch, err := NewChecker(v)
	if err != nil {
		return nil, err
	}
	b := &Builder{vocab: v, extractor: ex, checker: ch}
	if b.conflict, err = newKeywordSet(v.ConflictKeywords); err != nil {
		return nil, err
	}
	if b.resolution, err = newKeywordSet(v.ResolutionKeywords); err != nil {
		return nil, err
	}
	if b.transition, err = newKeywordSet(v.TransitionPhrases); err != nil {
		return nil, err
	}
	var toneWords []string
	for _, g := range v.ToneGroups {
		toneWords = append(toneWords, g.Keywords...)
	}
	if b.tones, err = newKeywordSet(toneWords); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Builder) Extractor() *Extractor { return b.extractor }

func (b *Builder) Checker() *Checker { return b.checker }

// Build reconstructs the context from segments, oldest first. The segment
// count is taken to be len(segments).
func (b *Builder) Build(genre string, segments []string, choiceText string) StoryContext {
	return b.BuildAt(len(segments), genre, segments, choiceText)
}

// BuildAt is Build for callers that only pass the tail of a longer story.
// total is the number of segments the whole story has so far.
func (b *Builder) BuildAt(total int, genre string, segments []string, choiceText string) StoryContext {
	total = max(total, len(segments))
	sc := StoryContext{
		Genre:        genre,
		SegmentCount: total,
		Arc:          StageFor(total),
		Characters:   []CharacterInfo{},
		Threads:      []PlotThread{},
		Warnings:     []string{},
		Rules:        b.rules(genre),
		Tone:         NeutralTone,
	}

	var kept []string
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) > 0 {
		all := strings.Join(kept, "\n")
		latest := kept[len(kept)-1]
		sentences := b.sentences(kept)

		sc.Setting = b.setting(latest, all)
		sc.Tone = b.checker.Tone(all)
		sc.Characters = b.characters(all, sentences, sc.Setting.Location)
		sc.Threads = b.threads(sentences, len(kept)-1, sc.Characters)
		sc.Summary = summarize(sentences)
		sc.RecentEvent = recentEvent(sc.Threads, sentences)
		sc.Warnings = b.checker.Check(kept[:len(kept)-1], sc.Setting)
	}

	sc.Objective = objective(sc.Threads, choiceText)
	if sc.Arc == ArcResolution {
		if open := len(majorOpen(sc.Threads)); open > 0 {
			sc.Warnings = append(sc.Warnings, fmt.Sprintf(
				"The story is nearing its end but %d major plot thread(s) are still open. Start resolving them.", open))
		}
	}
	sc.Transition = b.DetectTransition(choiceText, sc.Setting.Location)
	return sc
}

// DetectTransition reports a location change when choiceText contains a
// transition phrase such as "go to". The destination is guessed from the
// vocabulary's destination map.
func (b *Builder) DetectTransition(choiceText, from string) *Transition {
	if !b.transition.any(choiceText) {
		return nil
	}
	to := "new location"
	lower := strings.ToLower(choiceText)
	for _, d := range b.vocab.Destinations {
		if d.Keyword != "" && strings.Contains(lower, strings.ToLower(d.Keyword)) {
			to = d.Place
			break
		}
	}
	if strings.TrimSpace(from) == "" {
		from = "the current location"
	}
	return &Transition{From: from, To: to, Method: "walking together"}
}

type sentence struct {
	text    string
	segment int
}

func (b *Builder) sentences(segments []string) []sentence {
	var out []sentence
	for i, seg := range segments {
		for _, s := range utils.Sentences(seg) {
			out = append(out, sentence{text: s, segment: i})
		}
	}
	return out
}

func (b *Builder) rules(genre string) []WorldRule {
	out := []WorldRule{}
	for _, r := range b.vocab.WorldRules[schema.NormalizeGenre(genre)] {
		out = append(out, WorldRule{Genre: genre, Description: r})
	}
	return out
}

func (b *Builder) setting(latest, all string) SettingInfo {
	loc := b.extractor.location.last(latest)
	if loc == "" {
		loc = b.extractor.location.last(all)
	}
	info := SettingInfo{
		Location:   loc,
		Atmosphere: strings.Join(b.tones.find(latest, 3), ", "),
	}
	if loc != "" {
		for _, s := range utils.Sentences(latest) {
			if strings.Contains(strings.ToLower(s), strings.ToLower(loc)) {
				info.Description = utils.TruncateWords(s, 160)
				break
			}
		}
	}
	return info
}

func (b *Builder) characters(all string, sentences []sentence, where string) []CharacterInfo {
	names := b.extractor.Extract(all).Characters
	out := make([]CharacterInfo, 0, len(names))
	for i, name := range names {
		info := CharacterInfo{
			Name:          name,
			Role:          RoleSupporting,
			Mentions:      Mentions(all, name),
			Location:      where,
			Relationships: []string{},
		}
		if i == 0 {
			info.Role = RoleProtagonist
		}

		var traits []string
		for _, s := range sentences {
			if Mentions(s.text, name) == 0 {
				continue
			}
			if info.Description == "" {
				info.Description = utils.TruncateWords(s.text, 160)
			}
			for _, other := range names {
				if other != name && Mentions(s.text, other) > 0 && !slices.Contains(info.Relationships, other) {
					info.Relationships = append(info.Relationships, other)
				}
			}
			for _, e := range b.extractor.emotion.find(s.text, 0) {
				if !slices.Contains(traits, e) {
					traits = append(traits, e)
				}
			}
			if loc := b.extractor.location.last(s.text); loc != "" {
				info.Location = loc
			}
			if emo := b.extractor.emotion.last(s.text); emo != "" {
				info.EmotionalState = emo
			}
		}
		if len(traits) > 2 {
			traits = traits[:2]
		}
		info.Personality = strings.Join(traits, ", ")
		if info.EmotionalState == "" {
			info.EmotionalState = "calm"
		}
		out = append(out, info)
	}
	return out
}

var wordRX = regexp.MustCompile(`[A-Za-z']+`)

func (b *Builder) contentWords(s string) []string {
	var out []string
	for _, w := range wordRX.FindAllString(strings.ToLower(s), -1) {
		w = strings.TrimSuffix(w, "'s")
		if len(w) <= 3 || b.extractor.IsStopWord(w) {
			continue
		}
		if slices.Contains(b.vocab.ConflictKeywords, w) || slices.Contains(b.vocab.ResolutionKeywords, w) {
			continue
		}
		if !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// threads creates a thread per conflict sentence and resolves open threads
// when a later sentence carries a resolution keyword and shares a content
// word with the thread.
func (b *Builder) threads(sentences []sentence, latest int, chars []CharacterInfo) []PlotThread {
	type tracked struct {
		PlotThread
		words []string
	}
	var all []tracked
	for _, s := range sentences {
		if b.resolution.any(s.text) {
			words := b.contentWords(s.text)
			for i := range all {
				if !all[i].Open() {
					continue
				}
				for _, w := range words {
					if slices.Contains(all[i].words, w) {
						all[i].Status = ThreadResolved
						break
					}
				}
			}
			continue
		}
		if !b.conflict.any(s.text) {
			continue
		}
		t := tracked{
			PlotThread: PlotThread{
				ID:          fmt.Sprintf("thread-%d", len(all)+1),
				Description: utils.TruncateWords(s.text, 160),
				Status:      ThreadActive,
				Importance:  ImportanceMinor,
			},
			words: b.contentWords(s.text),
		}
		if s.segment == latest {
			t.Status = ThreadIntroduced
		}
		if len(all) == 0 || (len(chars) > 0 && Mentions(s.text, chars[0].Name) > 0) {
			t.Importance = ImportanceMajor
		}
		all = append(all, t)
	}

	out := make([]PlotThread, 0, len(all))
	for _, t := range all {
		out = append(out, t.PlotThread)
	}
	if limit := b.vocab.Limits.Threads; limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func majorOpen(threads []PlotThread) []PlotThread {
	var out []PlotThread
	for _, t := range threads {
		if t.Open() && t.Importance == ImportanceMajor {
			out = append(out, t)
		}
	}
	return out
}

func summarize(sentences []sentence) string {
	if len(sentences) == 0 {
		return ""
	}
	first := utils.TruncateWords(sentences[0].text, 160)
	if len(sentences) == 1 {
		return first
	}
	return first + " ... " + utils.TruncateWords(sentences[len(sentences)-1].text, 160)
}

func recentEvent(threads []PlotThread, sentences []sentence) string {
	for i := len(threads) - 1; i >= 0; i-- {
		if threads[i].Open() {
			return threads[i].Description
		}
	}
	if len(sentences) == 0 {
		return ""
	}
	return sentences[len(sentences)-1].text
}

func objective(threads []PlotThread, choiceText string) string {
	if major := majorOpen(threads); len(major) > 0 {
		return major[len(major)-1].Description
	}
	if choiceText = strings.TrimSpace(choiceText); choiceText != "" {
		return "Follow the reader's choice: " + choiceText
	}
	return "Begin a new adventure and introduce the main character."
}
