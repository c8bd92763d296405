package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
)

// Outcome labels reported to the result hook.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
)

// ResultHook observes every provider attempt made by a Chain.
type ResultHook func(provider, outcome string, elapsed time.Duration)

// Chain tries its providers in order until one returns a verified result.
// A Chain is itself an Inferencer.
type Chain struct {
	providers []Inferencer
	logger    *log.Logger
	hook      ResultHook
}

func NewChain(logger *log.Logger, providers ...Inferencer) *Chain {
	if logger == nil {
		logger = log.Default()
	}
	c := &Chain{logger: logger.WithPrefix("inference")}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// OnResult installs a hook called after each provider attempt.
func (c *Chain) OnResult(hook ResultHook) {
	c.hook = hook
}

func (c *Chain) Name() string {
	return "chain"
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

// Primary returns the first provider, or nil for an empty chain.
func (c *Chain) Primary() Inferencer {
	if c.Len() == 0 {
		return nil
	}
	return c.providers[0]
}

// Infer returns the first verified result. Rate limiting is logged and
// treated like any other failure. When every provider fails the error wraps
// ErrExhausted.
func (c *Chain) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	if c.Len() == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrExhausted)
	}

	var errs []error
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		start := time.Now()
		out, err := p.Infer(ctx, params, system, user)
		outcome := OutcomeSuccess
		if err == nil {
			if ok, verr := p.Verify(ctx, out); !ok {
				err = cmpErr(verr, ErrEmpty)
				outcome = OutcomeInvalid
			}
		} else if IsRateLimited(err) {
			outcome = OutcomeRateLimited
			c.logger.Warn("provider rate limited", "provider", p.Name(), "attempt", i+1)
		} else {
			outcome = OutcomeError
		}
		if c.hook != nil {
			c.hook(p.Name(), outcome, time.Since(start))
		}

		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider", p.Name(), "attempt", i+1)
			}
			return out, nil
		}
		c.logger.Warn("provider failed", "provider", p.Name(), "outcome", outcome, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	return "", fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

// Verify checks that the result is non-empty.
func (c *Chain) Verify(ctx context.Context, result string) (bool, error) {
	return verify(result)
}

func cmpErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
