package choices

import (
	"fmt"
	"strings"

	"taleweaver/pkg/schema"
)

var systemPrompt = `You write the three choices a young reader picks from at the end of each part of an interactive story.

**Rules:**
- Every choice must follow directly from the story text you are given. Use the names, places and objects that appear in it.
- Choice 1 is a character interaction: talking to, helping or teaming up with someone from the story.
- Choice 2 is exploration or problem solving: going somewhere, searching, or working something out.
- Choice 3 is creative or learning: making, imagining, or finding out something new.
- Each choice is one short sentence that starts with a verb, under 12 words.
- Use simple words a 6 year old understands. No violence, no scary outcomes.
- The three choices must be clearly different from each other.
- Output only a JSON object, no commentary or markdown.

**Schema:**
` + schema.ChoiceReplyJSON + `

**Example Output:**
{"choices":["Ask Pip the owl what the map means","Follow the glowing path into the woods","Draw a picture of the secret door"],"reasoning":["Pip was just introduced","The path appeared at the end","The door is a mystery to imagine"],"choiceTypes":["character","exploration","creative"]}`

func (g *Generator) userPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("STORY TEXT:\n")
	sb.WriteString(strings.TrimSpace(req.Text))
	sb.WriteString("\n\nANALYSIS:\n")

	if g.extractor != nil {
		e := g.extractor.Extract(req.Text)
		writeList(&sb, "Characters in this part", e.Characters)
		writeList(&sb, "Places", e.Locations)
		writeList(&sb, "Objects", e.Objects)
		writeList(&sb, "Feelings", e.Emotions)
		writeList(&sb, "Actions", e.Actions)
		fmt.Fprintf(&sb, "- Key element: %s\n", g.extractor.KeyElement(req.Text))
	}
	writeList(&sb, "Known characters", req.Characters)
	if req.Location != "" {
		fmt.Fprintf(&sb, "- Current location: %s\n", req.Location)
	}
	if req.Genre != "" {
		fmt.Fprintf(&sb, "\nGENRE: %s\n", req.Genre)
	}
	if len(req.PreviousChoices) > 0 {
		sb.WriteString("\nAVOID REPEATING THESE EARLIER CHOICES:\n")
		for _, c := range req.PreviousChoices {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, strings.Join(items, ", "))
}
