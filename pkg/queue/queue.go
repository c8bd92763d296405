package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"taleweaver/pkg/schema"
	"taleweaver/pkg/utils"
)

var ErrFull = errors.New("queue is full")

// Outcome labels passed to the observer.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeTimeout     = "timeout"
	OutcomeLateSuccess = "late_success"
	OutcomeLateFailure = "late_failure"
	OutcomeUpdateError = "update_error"
)

// DefaultPlaceholder is the stock illustration written when an image cannot
// be produced in time.
const DefaultPlaceholder = "https://images.unsplash.com/photo-1618944847828-82e943c3bdb7?w=1024"

// Generator produces an image URL for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Updater writes the image columns of a segment.
type Updater interface {
	UpdateSegmentImage(ctx context.Context, id uuid.UUID, url string, status schema.ImageStatus) error
}

type Task struct {
	SegmentID uuid.UUID
	Prompt    string
}

type Options struct {
	Workers  int
	Capacity int
	// Timeout is how long a task waits before the placeholder is written.
	Timeout time.Duration
	// RenderDeadline bounds the render itself, which keeps running after
	// Timeout and may still overwrite the placeholder.
	RenderDeadline time.Duration
	Placeholder    string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Capacity <= 0 {
		o.Capacity = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.RenderDeadline < o.Timeout {
		o.RenderDeadline = 3 * o.Timeout
	}
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	return o
}

// Queue runs image tasks detached from the request that created them.
type Queue struct {
	gen     Generator
	updater Updater
	logger  *log.Logger
	opts    Options
	observe func(outcome string, elapsed time.Duration)

	stop     chan struct{}
	items    chan Task
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(gen Generator, updater Updater, logger *log.Logger, opts Options) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	opts = opts.withDefaults()
	return &Queue{
		gen:     gen,
		updater: updater,
		logger:  logger.WithPrefix("queue"),
		opts:    opts,
		items:   make(chan Task, opts.Capacity),
		stop:    make(chan struct{}),
	}
}

// Observe installs a hook called once per outcome.
func (q *Queue) Observe(fn func(outcome string, elapsed time.Duration)) {
	q.observe = fn
}

func (q *Queue) Placeholder() string {
	return q.opts.Placeholder
}

func (q *Queue) Start() {
	for i := range q.opts.Workers {
		q.wg.Add(1)
		go q.processLoop(i)
	}
}

// Stop stops the workers. Tasks still buffered are dropped and keep their
// pending status.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stop) })
}

// Wait blocks until workers and any late renders have finished, or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add enqueues t without blocking.
func (q *Queue) Add(t Task) error {
	select {
	case <-q.stop:
		return ErrFull
	default:
	}
	select {
	case q.items <- t:
		return nil
	default:
		return ErrFull
	}
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) processLoop(worker int) {
	defer q.wg.Done()
	q.logger.Debug("image worker started", "worker", worker)
	for {
		select {
		case <-q.stop:
			if n := len(q.items); n > 0 {
				q.logger.Warn("dropping queued image tasks", "worker", worker, "count", n)
			}
			q.logger.Debug("image worker stopped", "worker", worker)
			return
		case t := <-q.items:
			q.processItem(t)
		}
	}
}

type rendered struct {
	url string
	err error
}

func (q *Queue) processItem(t Task) {
	start := time.Now()
	q.logger.Info("generating image", "segment", t.SegmentID, "prompt", utils.LimitStr(t.Prompt, 50))

	result := make(chan rendered, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), q.opts.RenderDeadline)
		defer cancel()
		url, err := q.gen.Generate(ctx, t.Prompt)
		result <- rendered{url, err}
	}()

	timer := time.NewTimer(q.opts.Timeout)
	defer timer.Stop()

	select {
	case r := <-result:
		if r.err != nil {
			q.logger.Warn("image generation failed, using placeholder", "segment", t.SegmentID, "error", r.err)
			q.write(t, q.opts.Placeholder, OutcomeFailure, start)
			return
		}
		q.write(t, r.url, OutcomeSuccess, start)
	case <-timer.C:
		q.logger.Warn("image generation timed out, using placeholder", "segment", t.SegmentID, "after", q.opts.Timeout)
		q.write(t, q.opts.Placeholder, OutcomeTimeout, start)
		q.wg.Add(1)
		go q.awaitLate(t, result, start)
	}
}

// awaitLate lets a render that lost the race still replace the placeholder.
func (q *Queue) awaitLate(t Task, result <-chan rendered, start time.Time) {
	defer q.wg.Done()
	r := <-result
	if r.err != nil {
		q.logger.Warn("late image generation failed", "segment", t.SegmentID, "error", r.err)
		q.report(OutcomeLateFailure, start)
		return
	}
	q.write(t, r.url, OutcomeLateSuccess, start)
}

func (q *Queue) write(t Task, url, outcome string, start time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.updater.UpdateSegmentImage(ctx, t.SegmentID, url, schema.ImageCompleted); err != nil {
		q.logger.Error("failed to update segment image", "segment", t.SegmentID, "error", err)
		q.report(OutcomeUpdateError, start)
		return
	}
	q.logger.Info("segment image updated", "segment", t.SegmentID, "outcome", outcome, "elapsed", time.Since(start))
	q.report(outcome, start)
}

func (q *Queue) report(outcome string, start time.Time) {
	if q.observe != nil {
		q.observe(outcome, time.Since(start))
	}
}
