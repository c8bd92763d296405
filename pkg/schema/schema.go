package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
)

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

func schemaText(s any) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return string(b)
}

var (
	StoryReplySchema  = generateSchema[StoryReply]()
	ChoiceReplySchema = generateSchema[ChoiceReply]()

	// StoryReplyJSON and ChoiceReplyJSON are embedded in prompts for
	// providers that only support json_object mode.
	StoryReplyJSON  = schemaText(StoryReplySchema)
	ChoiceReplyJSON = schemaText(ChoiceReplySchema)
)

// StructuredOutputsResponseFormat requests a strict story reply from
// providers that support json_schema response formats.
func StructuredOutputsResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "story_segment",
		Description: openai.String("The next segment of a children's interactive story"),
		Schema:      StoryReplySchema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}
