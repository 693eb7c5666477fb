package ai

import (
	"context"
	"time"

	"traffic-quiz-service/internal/logger"
)

type purposeKey struct{}

// WithPurpose labels the calls made with ctx, e.g. "explain" or "advice".
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the label set by WithPurpose.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey{}).(string); ok {
		return v
	}
	return "unknown"
}

// LoggingProvider records every request with latency and token usage.
type LoggingProvider struct {
	inner Provider
	log   *logger.Logger
}

// WithLogging wraps a Provider with structured request logging.
func WithLogging(p Provider, log *logger.Logger) Provider {
	return &LoggingProvider{inner: p, log: log.With("provider", p.Name())}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	kv := []interface{}{
		"purpose", PurposeFrom(ctx),
		"latency_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
	}
	if resp != nil {
		kv = append(kv, "model", resp.Model, "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens, "stop", resp.StopReason)
	}
	if err != nil {
		l.log.Warn("ai request failed", append(kv, "error", err)...)
	} else {
		l.log.Info("ai request", kv...)
	}
	return resp, err
}

func (l *LoggingProvider) Name() string {
	return l.inner.Name()
}
