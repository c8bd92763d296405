package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"taleweaver/pkg/schema"
)

// Memory keeps everything in process. It backs tests and runs without a
// database.
type Memory struct {
	mu       sync.RWMutex
	stories  map[uuid.UUID]schema.Story
	segments map[uuid.UUID]schema.Segment
}

func NewMemory() *Memory {
	return &Memory{
		stories:  make(map[uuid.UUID]schema.Story),
		segments: make(map[uuid.UUID]schema.Segment),
	}
}

func (m *Memory) CreateStory(_ context.Context, story *schema.Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	now := time.Now()
	story.CreatedAt, story.UpdatedAt = now, now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories[story.ID] = *story
	return nil
}

func (m *Memory) GetStory(_ context.Context, id uuid.UUID) (*schema.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) CreateSegment(_ context.Context, seg *schema.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	story, ok := m.stories[seg.StoryID]
	if !ok {
		return ErrNotFound
	}
	if seg.ParentID != nil {
		if _, ok := m.segments[*seg.ParentID]; !ok {
			return ErrNotFound
		}
	}
	if seg.ID == uuid.Nil {
		seg.ID = uuid.New()
	}
	now := time.Now()
	seg.CreatedAt, seg.UpdatedAt = now, now

	stored := *seg
	stored.Choices = slices.Clone(seg.Choices)
	m.segments[seg.ID] = stored

	story.SegmentCount++
	story.IsCompleted = story.IsCompleted || seg.IsEnd
	story.UpdatedAt = now
	m.stories[story.ID] = story
	return nil
}

func (m *Memory) GetSegment(_ context.Context, id uuid.UUID) (*schema.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.segments[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Choices = slices.Clone(s.Choices)
	return &s, nil
}

func (m *Memory) Lineage(_ context.Context, id uuid.UUID, limit int) ([]schema.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schema.Segment
	cur, ok := m.segments[id]
	if !ok {
		return nil, ErrNotFound
	}
	for {
		cur.Choices = slices.Clone(cur.Choices)
		out = append(out, cur)
		if (limit > 0 && len(out) == limit) || cur.ParentID == nil {
			break
		}
		if cur, ok = m.segments[*cur.ParentID]; !ok {
			break
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (m *Memory) UpdateSegmentImage(_ context.Context, id uuid.UUID, url string, status schema.ImageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.segments[id]
	if !ok {
		return ErrNotFound
	}
	s.ImageURL = url
	s.ImageStatus = status
	s.UpdatedAt = time.Now()
	m.segments[id] = s
	return nil
}
