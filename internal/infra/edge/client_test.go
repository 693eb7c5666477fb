package edge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"traffic-quiz-service/internal/ai"
	"traffic-quiz-service/internal/domain"
)

func TestClientExplainSendsPayload(t *testing.T) {
	var got explainPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/functions/v1/ai-explain" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"explanation": "Pedestrians have priority."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key", time.Second)
	text, err := c.Explain(context.Background(), domain.ExplainRequest{Question: "Q", WrongAnswer: "A", CorrectAnswer: "B"})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if text != "Pedestrians have priority." {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Type != "explain" || got.CorrectAnswer != "B" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestClientPassesMarkerThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": domain.CapacityExhaustedMarker + " try later"})
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL, "", time.Second).Advise(context.Background(), domain.AdviceRequest{TotalCount: 3})
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if !strings.Contains(text, domain.CapacityExhaustedMarker) {
		t.Fatalf("marker must reach the caller, got %q", text)
	}
}

func TestClientMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusTooManyRequests, func(err error) bool { var e *ai.ErrRateLimit; return errors.As(err, &e) && e.RetryAfter == 2*time.Second }},
		{http.StatusBadGateway, func(err error) bool { var e *ai.ErrProviderUnavailable; return errors.As(err, &e) }},
		{http.StatusUnauthorized, func(err error) bool { var e *ai.ErrRequestRejected; return errors.As(err, &e) && e.Status == 401 }},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		_, err := NewClient(srv.URL, "", time.Second).Explain(context.Background(), domain.ExplainRequest{})
		srv.Close()
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
	}
}

func TestClientSurfacesErrorField(t *testing.T) {
	serve := func(msg string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
		}))
	}

	busy := serve(domain.CapacityExhaustedMarker + " all models busy")
	defer busy.Close()
	text, err := NewClient(busy.URL, "", time.Second).Explain(context.Background(), domain.ExplainRequest{Question: "Q"})
	if err != nil || !strings.Contains(text, domain.CapacityExhaustedMarker) {
		t.Fatalf("marker in the error field must reach the caller, got %q %v", text, err)
	}

	refused := serve("prompt refused")
	defer refused.Close()
	_, err = NewClient(refused.URL, "", time.Second).Explain(context.Background(), domain.ExplainRequest{Question: "Q"})
	var rejected *ai.ErrRequestRejected
	if !errors.As(err, &rejected) || !strings.Contains(err.Error(), "prompt refused") {
		t.Fatalf("expected the edge error to surface, got %v", err)
	}
}
