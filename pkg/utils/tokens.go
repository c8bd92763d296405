package utils

import (
	"github.com/pkoukk/tiktoken-go"
)

// NumTokens counts the tokens of text using the cl100k encoding shared by
// the OpenAI-compatible chat models.
func NumTokens(text string) (int, error) {
	tkm, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0, err
	}

	return len(tkm.Encode(text, nil, nil)), nil
}
