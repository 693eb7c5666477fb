package ai

import (
	"context"
	"errors"
	"strings"

	"traffic-quiz-service/internal/logger"
)

// Outcome is how a Chain treats one provider's answer.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTryNext
	OutcomeStop
)

// Classify decides whether a provider failure should fall through to the next
// provider. Rate limits, outages and empty answers fall through; rejected
// requests, schema violations and cancellation stop the chain.
func Classify(resp *Response, err error) Outcome {
	if err == nil {
		if resp == nil || strings.TrimSpace(resp.Text()) == "" {
			return OutcomeTryNext
		}
		return OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeStop
	}
	var rl *ErrRateLimit
	var down *ErrProviderUnavailable
	if errors.As(err, &rl) || errors.As(err, &down) {
		return OutcomeTryNext
	}
	return OutcomeStop
}

// Chain tries providers in order and returns the first success.
type Chain struct {
	providers []Provider
	log       *logger.Logger
}

func NewChain(log *logger.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, log: log.With("component", "ai_chain")}
}

func (c *Chain) Generate(ctx context.Context, req Request) (*Response, error) {
	exhausted := &ExhaustedError{}
	for _, p := range c.providers {
		resp, err := p.Generate(ctx, req)
		switch Classify(resp, err) {
		case OutcomeSuccess:
			return resp, nil
		case OutcomeStop:
			return nil, err
		}
		if err == nil {
			err = errors.New("empty response")
		}
		c.log.Warn("ai provider skipped", "provider", p.Name(), "error", err)
		exhausted.add(p.Name(), err)
	}
	return nil, exhausted
}

func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "chain[" + strings.Join(names, ",") + "]"
}

// Len reports the number of configured providers.
func (c *Chain) Len() int {
	return len(c.providers)
}
