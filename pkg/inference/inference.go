package inference

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
)

// Inferencer defines an interface for running model inference and verification.
type Inferencer interface {
	Name() string
	Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error)
	Verify(ctx context.Context, result string) (bool, error)
}

var (
	ErrExhausted = errors.New("all text providers failed")
	ErrEmpty     = errors.New("empty result")
)

// IsRateLimited reports whether err carries an HTTP 429 from the provider.
func IsRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// JSONObject is the response_format asking for a bare JSON object.
func JSONObject() openai.ChatCompletionNewParamsResponseFormatUnion {
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
	}
}

func verify(result string) (bool, error) {
	if result == "" {
		return false, ErrEmpty
	}
	return true, nil
}
