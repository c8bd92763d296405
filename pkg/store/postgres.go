package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taleweaver/pkg/schema"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	segmentColumns = `id, story_id, parent_segment_id, position, text, choice_text, choices,
        COALESCE(image_prompt, '') AS image_prompt, COALESCE(image_url, '') AS image_url,
        image_status, is_end, created_at, updated_at`

	createStoryQuery = `
        INSERT INTO stories (id, title, description, mode, age, is_completed, is_public, segment_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
        RETURNING created_at, updated_at`
	getStoryQuery = `
        SELECT id, title, description, mode, age, is_completed, is_public, segment_count, created_at, updated_at
        FROM stories WHERE id = $1`
	createSegmentQuery = `
        INSERT INTO story_segments (id, story_id, parent_segment_id, position, text, choice_text, choices,
            image_prompt, image_url, image_status, is_end)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
        RETURNING created_at, updated_at`
	bumpStoryQuery = `
        UPDATE stories SET segment_count = segment_count + 1,
            is_completed = is_completed OR $2, updated_at = NOW()
        WHERE id = $1`
	getSegmentQuery = `SELECT ` + segmentColumns + ` FROM story_segments WHERE id = $1`
	lineageQuery    = `
        WITH RECURSIVE lineage AS (
            SELECT s.*, 1 AS depth FROM story_segments s WHERE s.id = $1
            UNION ALL
            SELECT p.*, l.depth + 1 FROM story_segments p
            JOIN lineage l ON p.id = l.parent_segment_id
            WHERE l.depth < $2
        )
        SELECT ` + segmentColumns + ` FROM lineage ORDER BY depth DESC`
	updateImageQuery = `
        UPDATE story_segments SET image_url = NULLIF($2, ''), image_status = $3, updated_at = NOW()
        WHERE id = $1`
)

// Postgres implements Store on the stories and story_segments tables.
type Postgres struct {
	db     DBTX
	pool   *pgxpool.Pool
	logger *log.Logger
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string, maxConns int32, logger *log.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	p := NewPostgres(pool, logger)
	p.pool = pool
	return p, nil
}

func NewPostgres(db DBTX, logger *log.Logger) *Postgres {
	if logger == nil {
		logger = log.Default()
	}
	return &Postgres{db: db, logger: logger.WithPrefix("store")}
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) CreateStory(ctx context.Context, story *schema.Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	err := p.db.QueryRow(ctx, createStoryQuery,
		story.ID, story.Title, story.Description, story.Mode, story.Age, story.IsCompleted, story.IsPublic,
	).Scan(&story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

func (p *Postgres) GetStory(ctx context.Context, id uuid.UUID) (*schema.Story, error) {
	var story schema.Story
	if err := pgxscan.Get(ctx, p.db, &story, getStoryQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}
	return &story, nil
}

func (p *Postgres) CreateSegment(ctx context.Context, seg *schema.Segment) error {
	if seg.ID == uuid.Nil {
		seg.ID = uuid.New()
	}
	choices := seg.Choices
	if choices == nil {
		choices = []string{}
	}
	err := p.db.QueryRow(ctx, createSegmentQuery,
		seg.ID, seg.StoryID, seg.ParentID, seg.Position, seg.Text, seg.ChoiceText, choices,
		seg.ImagePrompt, seg.ImageURL, string(seg.ImageStatus), seg.IsEnd,
	).Scan(&seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to create segment: %w", err)
	}
	if _, err := p.db.Exec(ctx, bumpStoryQuery, seg.StoryID, seg.IsEnd); err != nil {
		p.logger.Warn("failed to update story counters", "story", seg.StoryID, "error", err)
	}
	return nil
}

func (p *Postgres) GetSegment(ctx context.Context, id uuid.UUID) (*schema.Segment, error) {
	var seg schema.Segment
	if err := pgxscan.Get(ctx, p.db, &seg, getSegmentQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get segment %s: %w", id, err)
	}
	return &seg, nil
}

func (p *Postgres) Lineage(ctx context.Context, id uuid.UUID, limit int) ([]schema.Segment, error) {
	if limit <= 0 {
		limit = 1 << 20
	}
	var segs []schema.Segment
	if err := pgxscan.Select(ctx, p.db, &segs, lineageQuery, id, limit); err != nil {
		return nil, fmt.Errorf("failed to load lineage of %s: %w", id, err)
	}
	if len(segs) == 0 {
		return nil, ErrNotFound
	}
	return segs, nil
}

func (p *Postgres) UpdateSegmentImage(ctx context.Context, id uuid.UUID, url string, status schema.ImageStatus) error {
	tag, err := p.db.Exec(ctx, updateImageQuery, id, url, string(status))
	if err != nil {
		return fmt.Errorf("failed to update image of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
