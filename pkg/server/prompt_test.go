package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taleweaver/pkg/narrative"
	"taleweaver/pkg/schema"
)

func TestAgeGuidance(t *testing.T) {
	assert.Contains(t, ageGuidance("2-3"), "Very short sentences")
	assert.Contains(t, ageGuidance("4-6"), "One new idea at a time")
	assert.Contains(t, ageGuidance("7-9"), "interesting new words")
	assert.Contains(t, ageGuidance("10-12"), "Richer vocabulary")
	assert.Contains(t, ageGuidance(""), "young child")
	assert.Contains(t, ageGuidance("toddler"), "young child")
}

func TestSystemPromptSections(t *testing.T) {
	p := systemPrompt("STORY PROGRESS: chapter 1", "Fantasy-Magic", "4-6")
	assert.Contains(t, p, "STORY PROGRESS")
	assert.Contains(t, p, "Genre: fantasy and magic")
	assert.Contains(t, p, "Reader age: 4-6")
	assert.Less(t, strings.Index(p, "STORY PROGRESS"), strings.Index(p, "**Style:**"))

	assert.Contains(t, systemPrompt("", "unknown", ""), defaultGenreTemplate)
}

func TestUserPrompt(t *testing.T) {
	first := userPrompt("a fox finds a key", "", nil)
	assert.NotContains(t, first, "STORY SO FAR")
	assert.True(t, strings.HasSuffix(first, "Begin the story."))

	next := userPrompt("a fox finds a key", "Open the door", []string{"one", "two"})
	assert.Contains(t, next, "STORY SO FAR:\none\n\ntwo")
	assert.Contains(t, next, "THE READER CHOSE: Open the door")
}

func TestGenresResolveEverywhere(t *testing.T) {
	builder, err := narrative.NewBuilder(narrative.DefaultVocabulary())
	require.NoError(t, err)
	for _, genre := range schema.Genres {
		t.Run(genre, func(t *testing.T) {
			require.Contains(t, genreTemplates, genre)
			assert.NotContains(t, systemPrompt("", genre, "7-9"), defaultGenreTemplate)
			assert.NotEmpty(t, builder.Build(genre, nil, "").Rules)
		})
	}
	assert.Len(t, genreTemplates, len(schema.Genres))

	assert.NotEmpty(t, builder.Build(" Mystery-Detective ", nil, "").Rules)
	assert.Contains(t, systemPrompt("", "unknown-mode", "7-9"), defaultGenreTemplate)
}
