package narrative

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(nil)
	require.NoError(t, err)
	return b
}

func TestCheckEmptyHistory(t *testing.T) {
	c, err := NewChecker(nil)
	require.NoError(t, err)

	settings := []SettingInfo{
		{},
		{Location: "castle", Atmosphere: "dark, spooky"},
		{Location: "the bright meadow"},
	}
	for _, s := range settings {
		assert.Empty(t, c.Check(nil, s))
		assert.Empty(t, c.Check([]string{}, s))
		assert.Empty(t, c.Check([]string{"", "  "}, s))
	}
}

func TestCheckSettingChanged(t *testing.T) {
	c, err := NewChecker(nil)
	require.NoError(t, err)

	warnings := c.Check([]string{"They walked through the forest."}, SettingInfo{Location: "castle"})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Setting changed")
	assert.Contains(t, warnings[0], "forest")
	assert.Contains(t, warnings[0], "castle")

	assert.Empty(t, c.Check([]string{"Mia played in the garden."}, SettingInfo{Location: "the garden"}))
}

func TestCheckToneShift(t *testing.T) {
	c, err := NewChecker(nil)
	require.NoError(t, err)

	warnings := c.Check(
		[]string{"The night was dark and full of shadow."},
		SettingInfo{Location: "garden", Atmosphere: "sunny"},
	)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Tone shift")
	assert.Contains(t, warnings[0], "bright")

	assert.Equal(t, NeutralTone, c.Tone("a plain room"))
	assert.Equal(t, "magical", c.Tone("an enchanted door"))
}

func TestStageForIsMonotonic(t *testing.T) {
	order := []ArcStage{ArcSetup, ArcIntroduction, ArcDevelopment, ArcRisingAction, ArcClimax, ArcResolution}
	prev := 0
	for n := 0; n <= 20; n++ {
		rank := slices.Index(order, StageFor(n))
		require.GreaterOrEqual(t, rank, prev, "segment count %d", n)
		prev = rank
	}
	assert.Equal(t, ArcSetup, StageFor(0))
	assert.Equal(t, ArcIntroduction, StageFor(2))
	assert.Equal(t, ArcDevelopment, StageFor(3))
	assert.Equal(t, ArcRisingAction, StageFor(6))
	assert.Equal(t, ArcClimax, StageFor(7))
	assert.Equal(t, ArcResolution, StageFor(9))
}

var miaSegments = []string{
	"Mia found a map in the library. Mia was curious. The map was missing a piece.",
	"Mia and Leo walked to the castle. They searched for the missing piece.",
}

func TestBuildContext(t *testing.T) {
	b := newTestBuilder(t)
	sc := b.Build("fantasy-magic", miaSegments, "Let's go to the forest")

	assert.Equal(t, 2, sc.SegmentCount)
	assert.Equal(t, ArcIntroduction, sc.Arc)
	assert.Equal(t, "fantasy-magic", sc.Genre)
	assert.NotEmpty(t, sc.Rules)

	require.Len(t, sc.Characters, 1)
	mia := sc.Characters[0]
	assert.Equal(t, "Mia", mia.Name)
	assert.Equal(t, RoleProtagonist, mia.Role)
	assert.Equal(t, 3, mia.Mentions)
	assert.Equal(t, "castle", mia.Location)
	assert.Equal(t, "curious", mia.EmotionalState)

	assert.Equal(t, "castle", sc.Setting.Location)

	require.Len(t, sc.Threads, 2)
	assert.Equal(t, ThreadActive, sc.Threads[0].Status)
	assert.Equal(t, ImportanceMajor, sc.Threads[0].Importance)
	assert.Equal(t, ThreadIntroduced, sc.Threads[1].Status)
	assert.Equal(t, "They searched for the missing piece.", sc.RecentEvent)

	require.Len(t, sc.Warnings, 1)
	assert.Contains(t, sc.Warnings[0], "library")

	require.NotNil(t, sc.Transition)
	assert.Equal(t, Transition{From: "castle", To: "the forest", Method: "walking together"}, *sc.Transition)
}

func TestBuildEmpty(t *testing.T) {
	b := newTestBuilder(t)
	sc := b.Build("bedtime-stories", nil, "")

	assert.Equal(t, ArcSetup, sc.Arc)
	assert.Equal(t, NeutralTone, sc.Tone)
	assert.Empty(t, sc.Characters)
	assert.Empty(t, sc.Threads)
	assert.Empty(t, sc.Warnings)
	assert.Nil(t, sc.Transition)
	assert.NotEmpty(t, sc.Objective)
}

func TestBuildResolvesThreads(t *testing.T) {
	b := newTestBuilder(t)
	sc := b.Build("animal-friends", []string{
		"The kitten was lost in the garden.",
		"Tom finally rescued the kitten and took it home.",
	}, "")

	require.Len(t, sc.Threads, 1)
	assert.Equal(t, ThreadResolved, sc.Threads[0].Status)
	assert.Empty(t, sc.ActiveThreads())
}

func TestBuildAtWarnsAboutOpenThreadsNearTheEnd(t *testing.T) {
	b := newTestBuilder(t)
	sc := b.BuildAt(10, "", []string{"The dragon egg was missing."}, "")

	assert.Equal(t, ArcResolution, sc.Arc)
	assert.Equal(t, 10, sc.SegmentCount)
	require.Len(t, sc.Warnings, 1)
	assert.Contains(t, sc.Warnings[0], "plot thread")
}

func TestDetectTransition(t *testing.T) {
	b := newTestBuilder(t)

	assert.Nil(t, b.DetectTransition("Stay and play with the puppy", "garden"))

	tr := b.DetectTransition("Enter the cave", "")
	require.NotNil(t, tr)
	assert.Equal(t, "the current location", tr.From)
	assert.Equal(t, "the cave", tr.To)

	tr = b.DetectTransition("Travel to somewhere far away", "beach")
	require.NotNil(t, tr)
	assert.Equal(t, "new location", tr.To)
	assert.Equal(t, "walking together", tr.Method)
}

func TestBuildContextPromptOrder(t *testing.T) {
	b := newTestBuilder(t)
	prompt := BuildContextPrompt(b.Build("fantasy-magic", miaSegments, "Let's go to the forest"))

	sections := []string{
		"STORY PROGRESS",
		"CHARACTERS:",
		"CURRENT LOCATION: castle",
		"ACTIVE PLOT THREADS (2)",
		"MOST RECENT EVENT: They searched for the missing piece.",
		"CONTINUITY REQUIREMENTS",
		"CONSISTENCY NOTES",
		"LOCATION TRANSITION",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(prompt, s)
		require.NotEqual(t, -1, idx, "missing %q in:\n%s", s, prompt)
		assert.Greater(t, idx, last, "%q out of order", s)
		last = idx
	}
	assert.Contains(t, prompt, "Mia (protagonist)")
	assert.Contains(t, prompt, "To: the forest")

	empty := BuildContextPrompt(b.Build("", nil, ""))
	assert.NotContains(t, empty, "LOCATION TRANSITION")
	assert.Contains(t, empty, "ACTIVE PLOT THREADS (0)")
}
