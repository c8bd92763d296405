package images

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"taleweaver/pkg/utils"
)

// ErrRenderFailed wraps every image provider failure.
var ErrRenderFailed = errors.New("image generation failed")

const DefaultNegativePrompt = "scary, violent, blood, weapon, dark, horror, text, watermark, blurry, deformed"

// Renderer turns a prompt into raw image bytes.
type Renderer interface {
	Render(ctx context.Context, prompt string) ([]byte, error)
}

type renderRequest struct {
	Prompt            string `json:"prompt"`
	NegativePrompt    string `json:"negative_prompt"`
	NumInferenceSteps int    `json:"num_inference_steps"`
}

// HTTPProvider calls an image endpoint that answers with the raw image blob.
type HTTPProvider struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *log.Logger

	NegativePrompt string
	Steps          int
	StyleSuffix    string
}

func NewHTTPProvider(endpoint, token string, timeout time.Duration, logger *log.Logger) *HTTPProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPProvider{
		endpoint:       endpoint,
		token:          token,
		client:         &http.Client{Timeout: timeout},
		logger:         logger.WithPrefix("images"),
		NegativePrompt: DefaultNegativePrompt,
		Steps:          20,
		StyleSuffix:    ", children's book illustration, soft colors, friendly, whimsical",
	}
}

func (p *HTTPProvider) Render(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(renderRequest{
		Prompt:            prompt + p.StyleSuffix,
		NegativePrompt:    p.NegativePrompt,
		NumInferenceSteps: p.Steps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	p.logger.Debug("rendering image", "prompt", utils.LimitStr(prompt, 60))
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %w", ErrRenderFailed, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			p.logger.Warn("image provider rate limited")
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRenderFailed, resp.StatusCode, utils.LimitStr(string(data), 200))
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrRenderFailed, readErr)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrRenderFailed)
	}
	return data, nil
}
