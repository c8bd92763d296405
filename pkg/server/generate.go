package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/openai/openai-go/v3"

	"taleweaver/pkg/choices"
	"taleweaver/pkg/inference"
	"taleweaver/pkg/narrative"
	"taleweaver/pkg/queue"
	"taleweaver/pkg/schema"
	"taleweaver/pkg/store"
	"taleweaver/pkg/utils"
)

// MockStory is served when no text provider produced a usable reply.
const MockStory = `Once upon a time, in a cozy little village at the edge of a sunny meadow, there lived a curious little fox named Pip. Every morning Pip would wander through the garden, saying hello to the bees and the butterflies.

One day Pip found a tiny golden key hidden under a leaf. "I wonder what this opens," Pip whispered with a smile. Pip looked around the garden and saw a little wooden door in the old oak tree.`

// MockChoices accompany MockStory.
var MockChoices = []string{"Explore the garden", "Make new friends", "Share with others"}

// recentSegments is how many segments of raw text go into the prompt.
const recentSegments = 2

type generation struct {
	req      schema.GenerateRequest
	story    *schema.Story
	parent   *schema.Segment
	history  []schema.Segment
	context  narrative.StoryContext
	reply    schema.StoryReply
	mocked   bool
	choices  []string
	segment  schema.Segment
	imageURL string
}

// POST /api/generate
func (s *Server) handlePostGenerate(c echo.Context) error {
	var req schema.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("invalid json"))
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("prompt is required"))
	}

	ctx := c.Request().Context()
	g := &generation{req: req}

	if err := s.loadHistory(ctx, g); err != nil {
		return s.requestError(c, err)
	}
	if err := s.resolveStory(ctx, g); err != nil {
		return s.requestError(c, err)
	}

	s.buildContext(g)
	s.writeStory(ctx, g)
	s.sanitize(g)
	s.pickChoices(ctx, g)
	s.persist(ctx, g)
	s.enqueueImage(ctx, g)

	seg := g.segment
	return c.JSON(http.StatusOK, schema.GenerateResponse{
		Text:              seg.Text,
		ImageURL:          g.imageURL,
		ID:                seg.ID.String(),
		StoryID:           seg.StoryID.String(),
		Choices:           seg.Choices,
		IsEnd:             seg.IsEnd,
		ImageStatus:       seg.ImageStatus,
		IsImageGenerating: seg.ImageStatus == schema.ImagePending,
	})
}

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (s *Server) requestError(c echo.Context, err error) error {
	var br badRequest
	if errors.As(err, &br) {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(br.msg))
	}
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, utils.ErrJSON(err.Error()))
	}
	s.logger.Error("generation failed", "error", err)
	return c.JSON(http.StatusInternalServerError, utils.ErrJSON("failed to generate story"))
}

// loadHistory fetches the last segments of the parent's lineage through the
// lineage cache.
func (s *Server) loadHistory(ctx context.Context, g *generation) error {
	if g.req.ParentSegmentID == "" {
		return nil
	}
	id, err := uuid.Parse(g.req.ParentSegmentID)
	if err != nil {
		return badRequest{"invalid parentSegmentId"}
	}
	s.metrics.LineageLookup()
	history, err := s.lineage.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("parent segment %w", store.ErrNotFound)
		}
		return err
	}
	parent := history[len(history)-1]
	g.history = history
	g.parent = &parent
	return nil
}

// resolveStory loads the story named by the request or by the parent
// segment, or creates one. A failed insert is logged and the request
// continues with an unsaved story.
func (s *Server) resolveStory(ctx context.Context, g *generation) error {
	var id uuid.UUID
	switch {
	case g.req.StoryID != "":
		var err error
		if id, err = uuid.Parse(g.req.StoryID); err != nil {
			return badRequest{"invalid storyId"}
		}
		if g.parent != nil && g.parent.StoryID != id {
			return badRequest{"parentSegmentId belongs to another story"}
		}
	case g.parent != nil:
		id = g.parent.StoryID
	}

	if id != uuid.Nil {
		story, err := s.store.GetStory(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("story %w", store.ErrNotFound)
			}
			return err
		}
		g.story = story
		return nil
	}

	g.story = &schema.Story{
		Title:       utils.TruncateWords(g.req.Prompt, 60),
		Description: g.req.Prompt,
		Mode:        g.req.Genre,
		Age:         g.req.Age,
	}
	if err := s.store.CreateStory(ctx, g.story); err != nil {
		s.logger.Error("failed to create story", "error", err)
		if g.story.ID == uuid.Nil {
			g.story.ID = uuid.New()
		}
		return nil
	}
	s.logger.Info("created story", "story", g.story.ID, "genre", g.req.Genre)
	return nil
}

func (s *Server) buildContext(g *generation) {
	texts := make([]string, len(g.history))
	for i, seg := range g.history {
		texts[i] = seg.Text
	}
	total := 0
	if g.parent != nil {
		total = g.parent.Position + 1
	}
	g.context = s.builder.BuildAt(total, g.req.Genre, texts, g.req.ChoiceText)
	for _, w := range g.context.Warnings {
		s.logger.Debug("consistency warning", "story", g.story.ID, "warning", w)
	}
}

// writeStory asks the provider chain for the next segment and falls back to
// the mock story when the chain is empty or exhausted.
func (s *Server) writeStory(ctx context.Context, g *generation) {
	var block string
	if len(g.history) > 0 {
		block = narrative.BuildContextPrompt(g.context)
	}
	recent := make([]string, 0, recentSegments)
	for _, seg := range g.history[max(0, len(g.history)-recentSegments):] {
		recent = append(recent, seg.Text)
	}
	system := systemPrompt(block, g.req.Genre, g.req.Age)
	user := userPrompt(g.req.Prompt, g.req.ChoiceText, recent)

	if s.countTok {
		if n, err := utils.NumTokens(system + "\n" + user); err != nil {
			s.logger.Debug("failed to count prompt tokens", "error", err)
		} else {
			s.metrics.PromptTokens(n)
			s.logger.Debug("prompt assembled", "tokens", n, "arc", g.context.Arc)
		}
	}

	if s.chain.Len() == 0 {
		s.mock(g, "no provider configured", nil)
		return
	}
	params := &openai.ChatCompletionNewParams{ResponseFormat: inference.JSONObject()}
	if s.strict {
		params.ResponseFormat = schema.StructuredOutputsResponseFormat()
	}
	out, err := s.chain.Infer(ctx, params, system, user)
	if err != nil {
		s.mock(g, "provider chain exhausted", err)
		return
	}
	g.reply = parseReply(out)
	if strings.TrimSpace(g.reply.Text) == "" {
		s.mock(g, "empty story text", nil)
	}
}

func (s *Server) mock(g *generation, reason string, err error) {
	s.logger.Warn("serving mock story", "reason", reason, "error", err)
	s.metrics.Fallback("story")
	g.mocked = true
	g.reply = schema.StoryReply{Text: MockStory, Choices: append([]string(nil), MockChoices...)}
}

// parseReply reads the JSON story object, or takes the whole reply as the
// story text when it is not JSON.
func parseReply(out string) schema.StoryReply {
	var reply schema.StoryReply
	if err := json.Unmarshal([]byte(utils.CleanJSON(out)), &reply); err == nil && strings.TrimSpace(reply.Text) != "" {
		reply.Text = strings.TrimSpace(reply.Text)
		return reply
	}
	return schema.StoryReply{Text: strings.TrimSpace(out)}
}

func (s *Server) sanitize(g *generation) {
	report := s.filter.Sanitize(g.reply.Text)
	if !report.Clean() {
		s.logger.Info("sanitized story text", "story", g.story.ID, "hits", len(report.Hits), "changed", report.Changed)
	}
	g.reply.Text = report.Text
	g.reply.ImagePrompt = s.filter.Clean(g.reply.ImagePrompt)
	for i, c := range g.reply.Choices {
		g.reply.Choices[i] = s.filter.Clean(c)
	}
}

// pickChoices asks the primary provider for contextual choices. The mock
// story keeps its own choices.
func (s *Server) pickChoices(ctx context.Context, g *generation) {
	if g.mocked {
		g.choices = append([]string(nil), MockChoices...)
		return
	}
	req := choices.Request{
		Text:     g.reply.Text,
		Location: g.context.Setting.Location,
		Genre:    g.req.Genre,
	}
	for _, ch := range g.context.Characters {
		req.Characters = append(req.Characters, ch.Name)
	}
	req.PreviousChoices = previousChoices(g.history)
	resp := s.choices.Generate(ctx, req)
	g.choices = make([]string, len(resp.Choices))
	for i, c := range resp.Choices {
		g.choices[i] = s.filter.Clean(c)
	}
}

// previousChoices collects every choice offered or taken along the lineage.
func previousChoices(history []schema.Segment) []string {
	var out []string
	for _, seg := range history {
		out = append(out, seg.Choices...)
		if seg.ChoiceText != "" {
			out = append(out, seg.ChoiceText)
		}
	}
	return out
}

// persist writes the segment. A failed write is logged and the response is
// still served.
func (s *Server) persist(ctx context.Context, g *generation) {
	status := schema.ImagePending
	if g.req.SkipImage || s.queue == nil {
		status = schema.ImageSkipped
	}
	imagePrompt := g.reply.ImagePrompt
	if imagePrompt == "" && status == schema.ImagePending {
		imagePrompt = "A friendly children's book illustration: " + utils.TruncateWords(g.reply.Text, 200)
	}

	g.segment = schema.Segment{
		ID:          uuid.New(),
		StoryID:     g.story.ID,
		Text:        g.reply.Text,
		ChoiceText:  g.req.ChoiceText,
		Choices:     g.choices,
		ImagePrompt: imagePrompt,
		ImageStatus: status,
		IsEnd:       g.reply.IsEnd,
	}
	if g.parent != nil {
		pid := g.parent.ID
		g.segment.ParentID = &pid
		g.segment.Position = g.parent.Position + 1
	}

	if err := s.store.CreateSegment(ctx, &g.segment); err != nil {
		s.logger.Error("failed to persist segment", "story", g.story.ID, "segment", g.segment.ID, "error", err)
		if g.segment.ImageStatus == schema.ImagePending {
			g.segment.ImageStatus = schema.ImageSkipped
		}
		return
	}
	s.logger.Info("persisted segment", "story", g.story.ID, "segment", g.segment.ID, "position", g.segment.Position, "mock", g.mocked)
}

// enqueueImage hands the render to the queue. The response carries the
// placeholder until the real image lands.
func (s *Server) enqueueImage(ctx context.Context, g *generation) {
	if g.segment.ImageStatus != schema.ImagePending {
		return
	}
	g.imageURL = s.queue.Placeholder()
	err := s.queue.Add(queue.Task{SegmentID: g.segment.ID, Prompt: g.segment.ImagePrompt})
	if err == nil {
		return
	}
	s.logger.Warn("image queue rejected task, using placeholder", "segment", g.segment.ID, "error", err)
	s.metrics.Fallback("image")
	if err := s.store.UpdateSegmentImage(ctx, g.segment.ID, g.imageURL, schema.ImageCompleted); err != nil {
		s.logger.Error("failed to write placeholder image", "segment", g.segment.ID, "error", err)
	}
	g.segment.ImageStatus = schema.ImageCompleted
	g.segment.ImageURL = g.imageURL
}
