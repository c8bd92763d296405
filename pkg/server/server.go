package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"taleweaver/pkg/choices"
	"taleweaver/pkg/flight"
	"taleweaver/pkg/inference"
	"taleweaver/pkg/metrics"
	"taleweaver/pkg/narrative"
	"taleweaver/pkg/queue"
	"taleweaver/pkg/safety"
	"taleweaver/pkg/schema"
	"taleweaver/pkg/store"
)

// Options carries the collaborators of a Server. Store is required. A nil
// Chain serves the mock story, a nil Queue skips images.
type Options struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics
	Store   store.Store
	Chain   *inference.Chain
	Queue   *queue.Queue
	Builder *narrative.Builder
	Filter  *safety.Filter

	LineageLimit      int
	LineageTTL        time.Duration
	CountTokens       bool
	StructuredOutputs bool

	// ImageDir is served under ImageBaseURL when images are stored locally.
	ImageDir     string
	ImageBaseURL string
}

type Server struct {
	Echo *echo.Echo

	logger   *log.Logger
	metrics  *metrics.Metrics
	store    store.Store
	chain    *inference.Chain
	choices  *choices.Generator
	queue    *queue.Queue
	builder  *narrative.Builder
	filter   *safety.Filter
	lineage  *flight.Cache[uuid.UUID, []schema.Segment]
	limit    int
	countTok bool
	strict   bool
}

func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	builder := opts.Builder
	if builder == nil {
		var err error
		if builder, err = narrative.NewBuilder(nil); err != nil {
			return nil, err
		}
	}
	filter := opts.Filter
	if filter == nil {
		var err error
		if filter, err = safety.New(nil); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	s := &Server{
		Echo:     e,
		logger:   logger.WithPrefix("server"),
		metrics:  opts.Metrics,
		store:    opts.Store,
		chain:    opts.Chain,
		queue:    opts.Queue,
		builder:  builder,
		filter:   filter,
		limit:    opts.LineageLimit,
		countTok: opts.CountTokens,
		strict:   opts.StructuredOutputs,
	}
	if s.limit <= 0 {
		s.limit = 10
	}

	// Choices come from the primary provider only.
	s.choices = choices.New(opts.Chain.Primary(), builder.Extractor(), logger)
	s.choices.OnFallback(func(string) { s.metrics.Fallback("choices") })

	// Segment text never changes, so a parent's history can be reused by
	// every branch that continues from it.
	s.lineage = flight.New(func(ctx context.Context, id uuid.UUID) ([]schema.Segment, error) {
		s.metrics.LineageLoad()
		return s.store.Lineage(ctx, id, s.limit)
	}, opts.LineageTTL)

	e.Use(s.observe)
	s.registerRoutes(opts.ImageDir, opts.ImageBaseURL)
	return s, nil
}

func (s *Server) registerRoutes(imageDir, imageBaseURL string) {
	s.Echo.GET("/", s.handleGetRoot)
	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.Echo.Group("/api")
	api.POST("/generate", s.handlePostGenerate)
	api.Match([]string{"GET", "PUT", "PATCH", "DELETE"}, "/generate", methodNotAllowed)
	api.GET("/segments/:id", s.handleGetSegment)
	api.GET("/stories/:id", s.handleGetStory)

	if imageDir != "" {
		if imageBaseURL == "" {
			imageBaseURL = "/images"
		}
		s.Echo.Static(imageBaseURL, imageDir)
	}
}

// observe records request latency per route.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		code := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		s.metrics.Request(c.Path(), code, time.Since(start))
		return err
	}
}

func (s *Server) Start(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.Echo.Shutdown(ctx)
}
