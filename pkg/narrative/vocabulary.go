package narrative

import (
	"taleweaver/pkg/schema"
	"taleweaver/pkg/utils"
)

// ToneGroup is a named set of keywords signalling a story tone.
type ToneGroup struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Destination maps a keyword found in a reader's choice to the place the
// story is most likely moving to.
type Destination struct {
	Keyword string `json:"keyword"`
	Place   string `json:"place"`
}

// Limits caps the number of entities reported per category.
type Limits struct {
	Characters int `json:"characters"`
	Locations  int `json:"locations"`
	Objects    int `json:"objects"`
	Emotions   int `json:"emotions"`
	Actions    int `json:"actions"`
	Threads    int `json:"threads"`
}

// Vocabulary is the data behind every narrative heuristic. None of it is a
// source of truth; it only shapes hints for the next generation prompt.
type Vocabulary struct {
	StopWords          []string            `json:"stop_words"`
	Locations          []string            `json:"locations"`
	Objects            []string            `json:"objects"`
	Emotions           []string            `json:"emotions"`
	Actions            []string            `json:"actions"`
	ToneGroups         []ToneGroup         `json:"tone_groups"`
	SettingKeywords    []string            `json:"setting_keywords"`
	ConflictKeywords   []string            `json:"conflict_keywords"`
	ResolutionKeywords []string            `json:"resolution_keywords"`
	TransitionPhrases  []string            `json:"transition_phrases"`
	Destinations       []Destination       `json:"destinations"`
	WorldRules         map[string][]string `json:"world_rules"`
	Limits             Limits              `json:"limits"`
}

// DefaultVocabulary returns the built-in word lists.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		StopWords: []string{
			"The", "And", "But", "She", "He", "They", "Then", "When", "What", "Where",
			"Why", "How", "This", "That", "There", "Their", "These", "Those", "Once",
			"Upon", "Time", "After", "Before", "Suddenly", "Finally", "Together",
			"Everyone", "Someone", "Something", "Yes", "Now", "Her", "His", "Its",
			"You", "Your", "Our", "Let", "Maybe", "Today", "Tomorrow", "Just", "With",
			"For", "From", "Into", "Soon", "Even", "Still", "All", "Not",
		},
		Locations: []string{
			"forest", "castle", "garden", "cave", "river", "mountain", "village", "beach",
			"ocean", "meadow", "library", "school", "playground", "house", "tower", "island",
			"desert", "pyramid", "jungle", "space",
		},
		Objects: []string{
			"key", "map", "book", "treasure", "box", "wand", "crystal", "lantern", "door",
			"flower", "star", "rope", "boat", "shell", "clock", "ball", "letter",
		},
		Emotions: []string{
			"happy", "curious", "excited", "brave", "scared", "sad", "surprised", "calm",
			"proud", "worried", "kind", "amazed",
		},
		Actions: []string{
			"explore", "discover", "help", "search", "climb", "run", "fly", "swim",
			"build", "share", "follow", "open", "learn", "play", "found",
		},
		ToneGroups: []ToneGroup{
			{Name: "dark", Keywords: []string{"dark", "shadow", "gloomy", "spooky", "night", "storm"}},
			{Name: "bright", Keywords: []string{"bright", "sunny", "cheerful", "sparkling", "light", "colorful"}},
			{Name: "magical", Keywords: []string{"magic", "enchanted", "spell", "glowing", "fairy", "wizard"}},
			{Name: "romantic", Keywords: []string{"love", "heart", "sweet", "gentle", "caring"}},
		},
		SettingKeywords: []string{
			"pyramid", "forest", "castle", "cave", "ocean", "beach", "mountain", "village",
			"school", "garden", "desert", "jungle", "island", "space", "library", "river",
			"tower", "meadow",
		},
		ConflictKeywords: []string{
			"lost", "missing", "problem", "mystery", "stuck", "broken", "trapped", "need",
			"must find", "search", "puzzle", "trouble",
		},
		ResolutionKeywords: []string{"solved", "found", "home", "fixed", "rescued", "finally"},
		TransitionPhrases: []string{
			"go to", "travel to", "enter", "walk to", "head to", "visit", "return to", "leave",
		},
		Destinations: []Destination{
			{Keyword: "castle", Place: "the castle"},
			{Keyword: "forest", Place: "the forest"},
			{Keyword: "cave", Place: "the cave"},
			{Keyword: "garden", Place: "the garden"},
			{Keyword: "home", Place: "home"},
			{Keyword: "village", Place: "the village"},
			{Keyword: "beach", Place: "the beach"},
			{Keyword: "library", Place: "the library"},
		},
		WorldRules: map[string][]string{
			schema.GenreFantasyMagic: {
				"Magic is gentle and never hurts anyone",
				"Talking animals are friendly helpers",
			},
			schema.GenreMystery: {
				"Every mystery has a kind, logical explanation",
				"Clues are found by observing carefully",
			},
			schema.GenreAdventure: {
				"Explorers always stay together and keep each other safe",
			},
			schema.GenreScience: {
				"Science facts stay accurate and age-appropriate",
			},
			schema.GenreAnimalFriends: {
				"Animals behave kindly and help one another",
			},
			schema.GenreFriendship: {
				"Disagreements are solved by talking and listening",
			},
			schema.GenreBedtimeStories: {
				"The pace stays calm and soothing",
			},
		},
		Limits: Limits{
			Characters: 5,
			Locations:  3,
			Objects:    5,
			Emotions:   2,
			Actions:    3,
			Threads:    5,
		},
	}
}

// LoadVocabulary reads a JSON vocabulary from path. Empty fields keep their
// built-in defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	v, err := utils.Load[Vocabulary](path)
	if err != nil {
		return nil, err
	}
	return v.withDefaults(), nil
}

func (v Vocabulary) withDefaults() *Vocabulary {
	d := DefaultVocabulary()
	if len(v.StopWords) == 0 {
		v.StopWords = d.StopWords
	}
	if len(v.Locations) == 0 {
		v.Locations = d.Locations
	}
	if len(v.Objects) == 0 {
		v.Objects = d.Objects
	}
	if len(v.Emotions) == 0 {
		v.Emotions = d.Emotions
	}
	if len(v.Actions) == 0 {
		v.Actions = d.Actions
	}
	if len(v.ToneGroups) == 0 {
		v.ToneGroups = d.ToneGroups
	}
	if len(v.SettingKeywords) == 0 {
		v.SettingKeywords = d.SettingKeywords
	}
	if len(v.ConflictKeywords) == 0 {
		v.ConflictKeywords = d.ConflictKeywords
	}
	if len(v.ResolutionKeywords) == 0 {
		v.ResolutionKeywords = d.ResolutionKeywords
	}
	if len(v.TransitionPhrases) == 0 {
		v.TransitionPhrases = d.TransitionPhrases
	}
	if len(v.Destinations) == 0 {
		v.Destinations = d.Destinations
	}
	if v.WorldRules == nil {
		v.WorldRules = d.WorldRules
	}
	if v.Limits.Characters <= 0 {
		v.Limits.Characters = d.Limits.Characters
	}
	if v.Limits.Locations <= 0 {
		v.Limits.Locations = d.Limits.Locations
	}
	if v.Limits.Objects <= 0 {
		v.Limits.Objects = d.Limits.Objects
	}
	if v.Limits.Emotions <= 0 {
		v.Limits.Emotions = d.Limits.Emotions
	}
	if v.Limits.Actions <= 0 {
		v.Limits.Actions = d.Limits.Actions
	}
	if v.Limits.Threads <= 0 {
		v.Limits.Threads = d.Limits.Threads
	}
	return &v
}
