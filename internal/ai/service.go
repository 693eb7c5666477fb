package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"traffic-quiz-service/internal/domain"
)

const explainSystem = `You are a driving instructor preparing students for the traffic rules exam.
Explain briefly why the chosen answer is wrong and why the correct answer is right.
Reference the relevant traffic rule. Reply in the language of the question. Plain text, at most 120 words.`

const adviceSystem = `You are a driving instructor reviewing a student's traffic rules test.
Look at the mistakes and give concrete study advice. Reply in the language of the questions.`

var adviceSchema = &Schema{
	Name:        "study-advice",
	Description: "Study advice after a traffic rules test",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"focus": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"summary", "focus"},
		"additionalProperties": false,
	},
}

type advice struct {
	Summary string   `json:"summary"`
	Focus   []string `json:"focus"`
}

// Service answers explanation and advice requests through a Provider,
// usually a Chain.
type Service struct {
	provider  Provider
	maxTokens int
}

func NewService(provider Provider, maxTokens int) *Service {
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &Service{provider: provider, maxTokens: maxTokens}
}

func (s *Service) Explain(ctx context.Context, req domain.ExplainRequest) (string, error) {
	prompt := fmt.Sprintf("Question: %s\nStudent's answer: %s\nCorrect answer: %s",
		strings.TrimSpace(req.Question), strings.TrimSpace(req.WrongAnswer), strings.TrimSpace(req.CorrectAnswer))
	resp, err := s.provider.Generate(WithPurpose(ctx, "explain"), userPrompt(explainSystem, prompt, s.maxTokens))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (s *Service) Advise(ctx context.Context, req domain.AdviceRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d of %d correct.\n", req.CorrectCount, req.TotalCount)
	if len(req.Errors) == 0 {
		b.WriteString("No mistakes.\n")
	}
	for i, e := range req.Errors {
		fmt.Fprintf(&b, "%d. %s\n   answered: %s\n   correct: %s\n", i+1, e.Question, e.UserAnswer, e.CorrectAnswer)
	}

	r := userPrompt(adviceSystem, b.String(), s.maxTokens)
	r.Schema = adviceSchema
	resp, err := s.provider.Generate(WithPurpose(ctx, "advice"), r)
	if err != nil {
		return "", err
	}
	var out advice
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return "", &ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	text := strings.TrimSpace(out.Summary)
	if len(out.Focus) > 0 {
		text += "\n\n• " + strings.Join(out.Focus, "\n• ")
	}
	return text, nil
}
