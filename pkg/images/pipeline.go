package images

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/segmentio/ksuid"
)

// Pipeline renders a prompt, transcodes the result to WebP and stores it
// under a random key.
type Pipeline struct {
	renderer Renderer
	storage  Storage
	logger   *log.Logger

	Prefix  string
	Quality int
	// MaxSide bounds the stored image's width and height. Zero keeps the
	// rendered size.
	MaxSide int
}

func NewPipeline(r Renderer, s Storage, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		renderer: r,
		storage:  s,
		logger:   logger.WithPrefix("images"),
		Prefix:   "segments/",
		Quality:  85,
		MaxSide:  1024,
	}
}

// Generate returns the public URL of the stored image.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrRenderFailed)
	}
	raw, err := p.renderer.Render(ctx, prompt)
	if err != nil {
		return "", err
	}

	id := ksuid.New().String()
	contentType := http.DetectContentType(raw)
	data, key := raw, p.Prefix+id+extension(contentType)
	if encoded, err := ToWebP(raw, p.Quality, p.MaxSide); err != nil {
		p.logger.Warn("storing image without transcoding", "error", err)
	} else {
		data, contentType, key = encoded, "image/webp", p.Prefix+id+".webp"
	}

	url, err := p.storage.Put(ctx, key, contentType, data)
	if err != nil {
		return "", err
	}
	p.logger.Info("stored image", "key", key, "bytes", len(data))
	return url, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
