package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"traffic-quiz-service/internal/ai"
	"traffic-quiz-service/internal/domain"
)

// Client calls the hosted AI edge function. The function answers 200 with the
// capacity marker embedded in the text when every model is exhausted; that
// text is returned untouched for the caller to classify.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type explainPayload struct {
	Type          string `json:"type"`
	Question      string `json:"question"`
	WrongAnswer   string `json:"wrongAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

type advicePayload struct {
	Type         string               `json:"type"`
	UserID       int64                `json:"userId"`
	Errors       []domain.AdviceError `json:"errors"`
	CorrectCount int                  `json:"correctCount"`
	TotalCount   int                  `json:"totalCount"`
}

type edgeResponse struct {
	Text        string `json:"text"`
	Explanation string `json:"explanation"`
	Advice      string `json:"advice"`
	Error       string `json:"error,omitempty"`
}

func (r edgeResponse) content() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.Explanation != "":
		return r.Explanation
	}
	return r.Advice
}

func (c *Client) Explain(ctx context.Context, req domain.ExplainRequest) (string, error) {
	return c.post(ctx, explainPayload{
		Type:          "explain",
		Question:      req.Question,
		WrongAnswer:   req.WrongAnswer,
		CorrectAnswer: req.CorrectAnswer,
	})
}

func (c *Client) Advise(ctx context.Context, req domain.AdviceRequest) (string, error) {
	return c.post(ctx, advicePayload{
		Type:         "advice",
		UserID:       req.UserID,
		Errors:       req.Errors,
		CorrectCount: req.CorrectCount,
		TotalCount:   req.TotalCount,
	})
}

func (c *Client) post(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal edge request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/functions/v1/ai-explain", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create edge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ai.ErrProviderUnavailable{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ai.ErrProviderUnavailable{Err: err}
	}

	var out edgeResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		cause := fmt.Errorf("edge function: %s", msg)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", &ai.ErrRateLimit{RetryAfter: retryAfter(resp.Header), Err: cause}
		case resp.StatusCode >= 500:
			return "", &ai.ErrProviderUnavailable{Err: cause}
		default:
			return "", &ai.ErrRequestRejected{Status: resp.StatusCode, Err: cause}
		}
	}
	if text := out.content(); text != "" {
		return text, nil
	}
	if out.Error != "" {
		if strings.Contains(out.Error, domain.CapacityExhaustedMarker) {
			return out.Error, nil
		}
		return "", &ai.ErrRequestRejected{Status: resp.StatusCode, Err: fmt.Errorf("edge function: %s", out.Error)}
	}
	// plain text bodies are passed through
	if len(raw) > 0 && raw[0] != '{' {
		return string(raw), nil
	}
	return "", nil
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
