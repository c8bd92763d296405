package schema

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Prompt          string `json:"prompt"`
	Age             string `json:"age"`
	Genre           string `json:"genre"`
	StoryID         string `json:"storyId,omitempty"`
	ParentSegmentID string `json:"parentSegmentId,omitempty"`
	ChoiceText      string `json:"choiceText,omitempty"`
	SkipImage       bool   `json:"skipImage,omitempty"`
}

type GenerateResponse struct {
	Text              string      `json:"text"`
	ImageURL          string      `json:"image_url"`
	ID                string      `json:"id"`
	StoryID           string      `json:"story_id"`
	Choices           []string    `json:"choices"`
	IsEnd             bool        `json:"is_end"`
	ImageStatus       ImageStatus `json:"image_generation_status"`
	IsImageGenerating bool        `json:"is_image_generating"`
}
