package schema

import "strings"

// Story modes accepted in the genre field of a request.
const (
	GenreFantasyMagic   = "fantasy-magic"
	GenreAnimalFriends  = "animal-friends"
	GenreAdventure      = "adventure-exploration"
	GenreScience        = "science-discovery"
	GenreMystery        = "mystery-detective"
	GenreFriendship     = "friendship"
	GenreBedtimeStories = "bedtime-stories"
)

var Genres = []string{
	GenreFantasyMagic,
	GenreAnimalFriends,
	GenreAdventure,
	GenreScience,
	GenreMystery,
	GenreFriendship,
	GenreBedtimeStories,
}

// NormalizeGenre lowercases and trims a genre tag so it can be used as a key.
func NormalizeGenre(genre string) string {
	return strings.ToLower(strings.TrimSpace(genre))
}
