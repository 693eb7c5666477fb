package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTopicKeyNormalizesRepresentations(t *testing.T) {
	id := uuid.MustParse("3f1c2a9e-7b7d-4a53-9c1e-0c3c2e1f8a10")
	cases := []struct {
		in   any
		want string
	}{
		{42, "42"},
		{int64(42), "42"},
		{float64(42), "42"},
		{"42 ", "42"},
		{" 42", "42"},
		{2.5, "2.5"},
		{id, id.String()},
		{"  3F1C2A9E-7B7D-4A53-9C1E-0C3C2E1F8A10 ", id.String()},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := TopicKey(tc.in); got != tc.want {
			t.Fatalf("TopicKey(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResultsByTopicGetAcrossKeyForms(t *testing.T) {
	m := ResultsByTopic{}
	r := NewResult(42, 3, 5, 5, 60, nil, time.Unix(1700000000, 0))
	m[r.TopicID] = append(m[r.TopicID], r)

	if got := m.Get("42 "); len(got) != 1 || got[0].ID != r.ID {
		t.Fatalf("expected bucket for \"42 \", got %+v", got)
	}
}

func TestNewResultComputesPercentageAndID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	r := NewResult("7", 2, 3, 3, 40, nil, now)
	if r.Percentage != 67 {
		t.Fatalf("expected 67%%, got %d", r.Percentage)
	}
	if !strings.HasPrefix(r.ID, "7-1700000000123-") {
		t.Fatalf("unexpected id %s", r.ID)
	}
	if twin := NewResult("7", 2, 3, 3, 40, nil, now); twin.ID == r.ID {
		t.Fatalf("results created in the same millisecond share id %s", r.ID)
	}
	if zero := NewResult("7", 0, 0, 0, 0, nil, now); zero.Percentage != 0 {
		t.Fatalf("expected 0%% for empty test, got %d", zero.Percentage)
	}
}

func TestResolvePercentagePrefersStored(t *testing.T) {
	stored := 55
	if got := ResolvePercentage(&stored, 3, 5); got != 55 {
		t.Fatalf("expected stored 55, got %d", got)
	}
	if got := ResolvePercentage(nil, 3, 5); got != 60 {
		t.Fatalf("expected recomputed 60, got %d", got)
	}
}

func TestSummaryResultHasEmptyPayload(t *testing.T) {
	r := TestResult{ResultSummary: ResultSummary{ID: "a"}}
	if r.IsFull() {
		t.Fatalf("summary must not be full")
	}
	p := r.Payload()
	if len(p.Questions) != 0 || len(p.UserAnswers) != 0 {
		t.Fatalf("expected empty payload, got %+v", p)
	}
	if ids := r.MissedQuestionIDs(); len(ids) != 0 {
		t.Fatalf("expected no misses, got %v", ids)
	}
}

func TestTestResultJSONKeepsVariant(t *testing.T) {
	full := NewResult("5", 1, 2, 2, 10, &ResultPayload{
		Questions:   []Question{{ID: "q1"}, {ID: "q2"}},
		UserAnswers: []UserAnswer{{QuestionID: "q1", Correct: true}, {QuestionID: "q2"}},
	}, time.Unix(1700000000, 0))

	raw, err := json.Marshal(ResultsByTopic{"5": {full, full.Summary()}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ResultsByTopic
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back["5"][0].IsFull() || back["5"][1].IsFull() {
		t.Fatalf("variants not preserved: %+v", back["5"])
	}
	if ids := back["5"][0].MissedQuestionIDs(); len(ids) != 1 || ids[0] != "q2" {
		t.Fatalf("expected q2 missed, got %v", ids)
	}
}

func TestQuotaDecisionMessage(t *testing.T) {
	if msg := (QuotaDecision{Allowed: true}).Message(); msg != "" {
		t.Fatalf("allowed decision must have no message, got %q", msg)
	}
	hint := QuotaDecision{Total: 3, Used: 3, Hint: true}.Message()
	full := QuotaDecision{Total: 3, Used: 3}.Message()
	if hint == full || hint == "" {
		t.Fatalf("expected distinct hint wording, got %q / %q", hint, full)
	}
}

func TestResultSummaryValidate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if err := NewResult("5", 3, 5, 5, 30, nil, now).Validate(); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}
	bad := []ResultSummary{
		NewResult("5", 10, 5, 5, 30, nil, now).ResultSummary,
		NewResult("5", 3, 5, 12, 30, nil, now).ResultSummary,
		NewResult("5", -1, 5, 5, 30, nil, now).ResultSummary,
		NewResult("5", 3, 5, 5, -3, nil, now).ResultSummary,
		{ID: "x", TopicID: "5", Correct: 1, Total: 2, Percentage: 140},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidResult) {
			t.Fatalf("case %d: expected invalid result, got %v", i, err)
		}
	}
}
