package narrative

import (
	"fmt"
	"strings"
)

var continuityChecklist = []string{
	"Account for every character listed above, even if they only get a short mention",
	"Show how characters move when they change location",
	"Move at least one plot thread forward",
	"Refer back to something that already happened",
	"Keep each character's personality the same as before",
}

// BuildContextPrompt renders c as a text block to prepend to the generation
// system prompt. Sections always appear in the same order.
func BuildContextPrompt(c StoryContext) string {
	var sb strings.Builder

	chapter := c.SegmentCount/3 + 1
	fmt.Fprintf(&sb, "STORY PROGRESS: chapter %d, segment %d (arc stage: %s)\n", chapter, c.SegmentCount+1, c.Arc)
	if c.Summary != "" {
		fmt.Fprintf(&sb, "Summary so far: %s\n", c.Summary)
	}
	if c.Objective != "" {
		fmt.Fprintf(&sb, "Current objective: %s\n", c.Objective)
	}

	sb.WriteString("\nCHARACTERS:\n")
	if len(c.Characters) == 0 {
		sb.WriteString("- No recurring characters yet\n")
	}
	for _, ch := range c.Characters {
		loc := ch.Location
		if loc == "" {
			loc = "unknown location"
		}
		fmt.Fprintf(&sb, "- %s (%s): at %s, feeling %s", ch.Name, ch.Role, loc, ch.EmotionalState)
		if len(ch.Relationships) > 0 {
			fmt.Fprintf(&sb, ", often with %s", strings.Join(ch.Relationships, ", "))
		}
		sb.WriteString("\n")
	}

	location := c.Setting.Location
	if location == "" {
		location = "not yet established"
	}
	fmt.Fprintf(&sb, "\nCURRENT LOCATION: %s\n", location)
	if c.Setting.Atmosphere != "" {
		fmt.Fprintf(&sb, "Atmosphere: %s\n", c.Setting.Atmosphere)
	}

	active := c.ActiveThreads()
	fmt.Fprintf(&sb, "\nACTIVE PLOT THREADS (%d):\n", len(active))
	for _, t := range active {
		fmt.Fprintf(&sb, "- [%s] %s\n", t.Importance, t.Description)
	}

	if c.RecentEvent != "" {
		fmt.Fprintf(&sb, "\nMOST RECENT EVENT: %s\n", c.RecentEvent)
	}

	sb.WriteString("\nCONTINUITY REQUIREMENTS:\n")
	for _, item := range continuityChecklist {
		fmt.Fprintf(&sb, "- %s\n", item)
	}

	if len(c.Rules) > 0 {
		sb.WriteString("\nWORLD RULES:\n")
		for _, r := range c.Rules {
			fmt.Fprintf(&sb, "- %s\n", r.Description)
		}
	}

	if len(c.Warnings) > 0 {
		sb.WriteString("\nCONSISTENCY NOTES:\n")
		for _, w := range c.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	if t := c.Transition; t != nil {
		sb.WriteString("\nLOCATION TRANSITION:\n")
		fmt.Fprintf(&sb, "- From: %s\n- To: %s\n- Method: %s\n", t.From, t.To, t.Method)
		sb.WriteString("- Describe the journey so the reader sees the characters arrive.\n")
	}

	return sb.String()
}
