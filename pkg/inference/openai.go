package inference

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OVHBaseURL is the OpenAI-compatible endpoint of OVHcloud AI Endpoints.
const OVHBaseURL = "https://oai.endpoints.kepler.ai.cloud.ovh.net/v1"

// OpenAIInferencer implements Inferencer using OpenAI's official Go SDK.
// Any OpenAI-compatible endpoint works through ChangeBaseURL.
type OpenAIInferencer struct {
	client *openai.Client
	name   string
	apiKey string
	model  string

	// maxTokens sends the limit as max_tokens, which OpenAI-compatible
	// servers other than OpenAI's own expect.
	maxTokens bool
}

// NewOpenAIInferencer creates a new inferencer instance using OpenAI client.
func NewOpenAIInferencer(apiKey string, model string) *OpenAIInferencer {
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &OpenAIInferencer{
		client: &client,
		name:   "openai",
		apiKey: apiKey,
		model:  model,
	}
}

// NewOVHInferencer points an OpenAIInferencer at OVHcloud AI Endpoints.
func NewOVHInferencer(apiKey string, model string) *OpenAIInferencer {
	o := NewOpenAIInferencer(apiKey, cmp.Or(model, "Meta-Llama-3_3-70B-Instruct"))
	o.ChangeBaseURL(OVHBaseURL)
	o.SetName("ovh")
	return o
}

func (o *OpenAIInferencer) ChangeBaseURL(baseURL string) {
	client := openai.NewClient(
		option.WithAPIKey(o.apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)
	o.client = &client
	o.maxTokens = !isOpenAIHost(baseURL)
}

func isOpenAIHost(baseURL string) bool {
	u, err := url.Parse(baseURL)
	return err == nil && u.Hostname() == "api.openai.com"
}

func (o *OpenAIInferencer) SetModel(model string) {
	o.model = model
}

func (o *OpenAIInferencer) SetName(name string) {
	o.name = name
}

func (o *OpenAIInferencer) Name() string {
	return o.name
}

// Infer sends text to the OpenAI chat completion endpoint and returns the output.
func (o *OpenAIInferencer) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	var p openai.ChatCompletionNewParams
	if params != nil {
		p = *params
	}
	p.Model = cmp.Or(p.Model, o.model)
	p.Messages = []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role: "system",
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.Opt[string]{Value: system},
				},
			}},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Role: "user",
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: param.Opt[string]{Value: user},
				},
			},
		},
	}

	limit := cmp.Or(p.MaxCompletionTokens.Value, p.MaxTokens.Value, 1024)
	if o.maxTokens {
		p.MaxTokens = openai.Int(limit)
		p.MaxCompletionTokens = param.Opt[int64]{}
	} else {
		p.MaxCompletionTokens = openai.Int(limit)
		p.MaxTokens = param.Opt[int64]{}
	}
	p.Temperature = openai.Float(cmp.Or(p.Temperature.Value, 0.7))
	p.TopP = openai.Float(cmp.Or(p.TopP.Value, 1.0))

	resp, err := o.client.Chat.Completions.New(ctx, p)
	if err != nil {
		return "", fmt.Errorf("%s inference error: %w", o.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	if resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty completion content")
	}

	return resp.Choices[0].Message.Content, nil
}

// Verify checks that the result is non-empty.
func (o *OpenAIInferencer) Verify(ctx context.Context, result string) (bool, error) {
	return verify(result)
}
