package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"taleweaver/pkg/schema"
)

var ErrNotFound = errors.New("not found")

// Store persists stories and their segment trees.
type Store interface {
	CreateStory(ctx context.Context, story *schema.Story) error
	GetStory(ctx context.Context, id uuid.UUID) (*schema.Story, error)
	CreateSegment(ctx context.Context, seg *schema.Segment) error
	GetSegment(ctx context.Context, id uuid.UUID) (*schema.Segment, error)
	// Lineage returns up to limit segments ending at id, oldest first.
	Lineage(ctx context.Context, id uuid.UUID, limit int) ([]schema.Segment, error)
	// UpdateSegmentImage is the only mutation of an existing segment.
	UpdateSegmentImage(ctx context.Context, id uuid.UUID, url string, status schema.ImageStatus) error
}
