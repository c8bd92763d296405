package server

import (
	"fmt"
	"strconv"
	"strings"

	"taleweaver/pkg/schema"
)

const storyPrompt = `You are a warm, imaginative storyteller writing an interactive story for a young child. Continue the story from where it left off, or begin it if there is no story yet.

**Rules:**
- Write two or three short paragraphs. Keep every sentence easy to read aloud.
- Stay kind and safe: no violence, no weapons, no scary or mean outcomes. Problems are solved by helping, sharing and being clever.
- Keep names, places and objects consistent with the story so far.
- End at a moment where the reader can choose what happens next.
- Offer exactly three short choices that follow from what just happened.
- Give a one-sentence description of a friendly illustration of this scene.
- Only set "is_end" to true when the story has reached a happy ending.
- Output only a JSON object, no commentary or markdown.

**Schema:**
` + "%s"

var genreTemplates = map[string]string{
	schema.GenreFantasyMagic: `- Genre: fantasy and magic. Gentle spells, talking creatures and enchanted places.
- Magic always has a kind purpose and never hurts anyone.`,
	schema.GenreAnimalFriends: `- Genre: animal friends. The main characters are animals who talk and work together.
- Show animals caring for each other and for nature.`,
	schema.GenreAdventure: `- Genre: adventure. Exploring, maps, journeys and discoveries.
- Danger is only ever a puzzle or an obstacle, never a threat to anyone.`,
	schema.GenreScience: `- Genre: space and science. Rockets, planets, robots and curious experiments.
- Weave in one small, true science fact when it fits.`,
	schema.GenreMystery: `- Genre: gentle mystery. Clues, riddles and friendly surprises.
- The mystery is always solved by noticing things and asking questions.`,
	schema.GenreFriendship: `- Genre: friendship. Making friends, sharing and understanding feelings.
- Name the feelings characters have and show how they are kind about them.`,
	schema.GenreBedtimeStories: `- Genre: bedtime story. Calm, cosy and slow.
- Keep the pace soft and finish scenes on a peaceful note.`,
}

const defaultGenreTemplate = `- Genre: a gentle everyday adventure for young children.`

// ageGuidance maps an age band like "4-6" to reading guidance. The lower
// bound decides the band.
func ageGuidance(age string) string {
	lower, ok := ageLowerBound(age)
	switch {
	case !ok:
		return "- Reader age: young child. Use simple words and short sentences."
	case lower <= 3:
		return "- Reader age: " + age + ". Very short sentences, familiar words, lots of repetition and sounds."
	case lower <= 6:
		return "- Reader age: " + age + ". Short sentences and simple words. One new idea at a time."
	case lower <= 9:
		return "- Reader age: " + age + ". Clear sentences with a few interesting new words explained by context."
	default:
		return "- Reader age: " + age + ". Richer vocabulary and a little more detail, still kind and safe."
	}
}

func ageLowerBound(age string) (int, bool) {
	age = strings.TrimSpace(age)
	end := strings.IndexFunc(age, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0, false
	}
	if end > 0 {
		age = age[:end]
	}
	n, err := strconv.Atoi(age)
	return n, err == nil
}

// systemPrompt combines the story rules, the rendered context block, the
// genre template and the reading level.
func systemPrompt(contextBlock, genre, age string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(storyPrompt, schema.StoryReplyJSON))
	sb.WriteString("\n\n")
	if contextBlock != "" {
		sb.WriteString(contextBlock)
		sb.WriteString("\n\n")
	}
	sb.WriteString("**Style:**\n")
	if tmpl, ok := genreTemplates[schema.NormalizeGenre(genre)]; ok {
		sb.WriteString(tmpl)
	} else {
		sb.WriteString(defaultGenreTemplate)
	}
	sb.WriteString("\n")
	sb.WriteString(ageGuidance(age))
	return sb.String()
}

// userPrompt embeds only the most recent segments verbatim.
func userPrompt(prompt, choiceText string, recent []string) string {
	var sb strings.Builder
	if len(recent) > 0 {
		sb.WriteString("STORY SO FAR:\n")
		for _, r := range recent {
			sb.WriteString(strings.TrimSpace(r))
			sb.WriteString("\n\n")
		}
	}
	if choiceText != "" {
		fmt.Fprintf(&sb, "THE READER CHOSE: %s\n\n", choiceText)
	}
	fmt.Fprintf(&sb, "STORY IDEA: %s\n", prompt)
	if len(recent) == 0 {
		sb.WriteString("\nBegin the story.")
	} else {
		sb.WriteString("\nContinue the story.")
	}
	return sb.String()
}
