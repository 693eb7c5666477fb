package ai

import (
	"context"
	"errors"
	"testing"

	"traffic-quiz-service/internal/logger"
)

func TestChainFallsThroughRateLimits(t *testing.T) {
	first := NewMockProvider("first", MockResponse{Err: &ErrRateLimit{Err: errors.New("429")}})
	second := NewMockProvider("second", MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("502")}})
	third := NewMockProvider("third", MockResponse{Content: "answer"})
	chain := NewChain(logger.Nop(), first, second, third)

	resp, err := chain.Generate(context.Background(), userPrompt("", "q", 10))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text() != "answer" {
		t.Fatalf("expected third provider answer, got %q", resp.Text())
	}
	if first.CallCount() != 1 || second.CallCount() != 1 || third.CallCount() != 1 {
		t.Fatalf("expected one call each, got %d/%d/%d", first.CallCount(), second.CallCount(), third.CallCount())
	}
}

func TestChainStopsOnHardFailure(t *testing.T) {
	first := NewMockProvider("first", MockResponse{Err: &ErrRequestRejected{Status: 401, Err: errors.New("bad key")}})
	second := NewMockProvider("second", MockResponse{Content: "never"})
	chain := NewChain(logger.Nop(), first, second)

	_, err := chain.Generate(context.Background(), userPrompt("", "q", 10))
	var rejected *ErrRequestRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("hard failure must not look like exhausted capacity")
	}
	if second.CallCount() != 0 {
		t.Fatalf("second provider must not be called")
	}
}

func TestChainReportsExhaustion(t *testing.T) {
	chain := NewChain(logger.Nop(),
		NewMockProvider("a", MockResponse{Err: &ErrRateLimit{Err: errors.New("429")}}),
		NewMockProvider("b", MockResponse{Content: "   "}),
	)
	_, err := chain.Generate(context.Background(), userPrompt("", "q", 10))
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected capacity exhausted, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || len(ex.Attempts) != 2 {
		t.Fatalf("expected two recorded attempts, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		resp *Response
		err  error
		want Outcome
	}{
		{"success", &Response{Content: []byte("ok")}, nil, OutcomeSuccess},
		{"empty", &Response{}, nil, OutcomeTryNext},
		{"rate limit", nil, &ErrRateLimit{}, OutcomeTryNext},
		{"unavailable", nil, &ErrProviderUnavailable{}, OutcomeTryNext},
		{"invalid", nil, &ErrInvalidResponse{Err: errors.New("x")}, OutcomeStop},
		{"canceled", nil, context.Canceled, OutcomeStop},
	}
	for _, tc := range cases {
		if got := Classify(tc.resp, tc.err); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
