package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"taleweaver/pkg/store"
	"taleweaver/pkg/utils"
)

func (s *Server) handleGetRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":   "Taleweaver Story API",
		"status":    "ok",
		"providers": s.chain.Len(),
		"images":    s.queue != nil,
	})
}

// GET /api/segments/:id
func (s *Server) handleGetSegment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("invalid segment id"))
	}
	seg, err := s.store.GetSegment(c.Request().Context(), id)
	if err != nil {
		return s.storeError(c, "segment", err)
	}
	return c.JSON(http.StatusOK, seg)
}

// GET /api/stories/:id
func (s *Server) handleGetStory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("invalid story id"))
	}
	story, err := s.store.GetStory(c.Request().Context(), id)
	if err != nil {
		return s.storeError(c, "story", err)
	}
	return c.JSON(http.StatusOK, story)
}

func (s *Server) storeError(c echo.Context, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, utils.ErrJSON(what+" not found"))
	}
	s.logger.Error("store read failed", "what", what, "error", err)
	return c.JSON(http.StatusInternalServerError, utils.ErrJSON("failed to load "+what))
}

func methodNotAllowed(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, utils.ErrJSON("method not allowed"))
}
