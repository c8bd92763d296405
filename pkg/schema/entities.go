package schema

import (
	"time"

	"github.com/google/uuid"
)

// ImageStatus tracks the detached image task of a segment.
type ImageStatus string

const (
	ImagePending   ImageStatus = "pending"
	ImageCompleted ImageStatus = "completed"
	ImageSkipped   ImageStatus = "skipped"
	ImageFailed    ImageStatus = "failed"
)

func (s ImageStatus) Valid() bool {
	switch s {
	case ImagePending, ImageCompleted, ImageSkipped, ImageFailed:
		return true
	}
	return false
}

type Story struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Mode         string    `json:"mode" db:"mode"`
	Age          string    `json:"age" db:"age"`
	IsCompleted  bool      `json:"is_completed" db:"is_completed"`
	IsPublic     bool      `json:"is_public" db:"is_public"`
	SegmentCount int       `json:"segment_count" db:"segment_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Segment is one node of the story tree. Text never changes after insert;
// only the image columns are updated later.
type Segment struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	StoryID     uuid.UUID   `json:"story_id" db:"story_id"`
	ParentID    *uuid.UUID  `json:"parent_segment_id" db:"parent_segment_id"`
	Position    int         `json:"position" db:"position"`
	Text        string      `json:"text" db:"text"`
	ChoiceText  string      `json:"choice_text" db:"choice_text"`
	Choices     []string    `json:"choices" db:"choices"`
	ImagePrompt string      `json:"image_prompt" db:"image_prompt"`
	ImageURL    string      `json:"image_url" db:"image_url"`
	ImageStatus ImageStatus `json:"image_generation_status" db:"image_status"`
	IsEnd       bool        `json:"is_end" db:"is_end"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// StoryReply is the object the text provider is asked to return.
type StoryReply struct {
	Text        string   `json:"text" jsonschema_description:"The next part of the story, two or three short paragraphs"`
	Choices     []string `json:"choices" jsonschema_description:"Exactly three short options for what happens next"`
	ImagePrompt string   `json:"image_prompt" jsonschema_description:"One sentence describing a friendly illustration of this scene"`
	IsEnd       bool     `json:"is_end" jsonschema_description:"True only when the story has reached a happy ending"`
}

// ChoiceReply is the object the choice generator asks for.
type ChoiceReply struct {
	Choices     []string `json:"choices" jsonschema_description:"Exactly three choices: character interaction, exploration or problem solving, creative or learning"`
	Reasoning   []string `json:"reasoning" jsonschema_description:"One short reason per choice explaining how it follows from the story"`
	ChoiceTypes []string `json:"choiceTypes" jsonschema:"enum=character,enum=exploration,enum=creative" jsonschema_description:"The slot each choice fills"`
}
