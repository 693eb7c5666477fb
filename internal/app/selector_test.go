package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/infra/memory"
	"traffic-quiz-service/internal/logger"
)

func topicQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{ID: fmt.Sprintf("q%02d", i), TopicID: "1", Text: "question", Options: []string{"a", "b"}}
	}
	return qs
}

func ids(from, to int) []string {
	var out []string
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("q%02d", i))
	}
	return out
}

func countMissed(set []domain.Question, missed []string) int {
	m := make(map[string]bool, len(missed))
	for _, id := range missed {
		m[id] = true
	}
	n := 0
	for _, q := range set {
		if m[q.ID] {
			n++
		}
	}
	return n
}

func assertUnique(t *testing.T, set []domain.Question) {
	t.Helper()
	seen := map[string]bool{}
	for _, q := range set {
		if seen[q.ID] {
			t.Fatalf("duplicate question %s", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestErrorTarget(t *testing.T) {
	cases := map[int]int{0: 0, -3: 0, 1: 1, 3: 2, 5: 2, 10: 4, 20: 8, 21: 9}
	for desired, want := range cases {
		if got := ErrorTarget(desired); got != want {
			t.Fatalf("ErrorTarget(%d) = %d, want %d", desired, got, want)
		}
	}
}

func TestSelectMixesMissedShare(t *testing.T) {
	s := NewSelectorWithSource(rand.NewSource(1))
	missed := ids(0, 10)

	set := s.Select("1", topicQuestions(40), missed, 20)
	if len(set) != 20 {
		t.Fatalf("expected 20 questions, got %d", len(set))
	}
	assertUnique(t, set)
	if got := countMissed(set, missed); got != ErrorTarget(20) {
		t.Fatalf("expected %d missed questions, got %d", ErrorTarget(20), got)
	}
}

func TestSelectBackfillsShortMissedPool(t *testing.T) {
	s := NewSelectorWithSource(rand.NewSource(2))
	missed := ids(0, 1)

	set := s.Select("1", topicQuestions(30), missed, 10)
	if len(set) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(set))
	}
	assertUnique(t, set)
	if got := countMissed(set, missed); got != 1 {
		t.Fatalf("expected the single missed question, got %d", got)
	}
}

func TestSelectBackfillsShortRegularPool(t *testing.T) {
	s := NewSelectorWithSource(rand.NewSource(3))
	missed := ids(0, 5)

	set := s.Select("1", topicQuestions(6), missed, 5)
	if len(set) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(set))
	}
	assertUnique(t, set)
	if got := countMissed(set, missed); got != 4 {
		t.Fatalf("expected the missed pool to cover the shortfall, got %d", got)
	}
}

func TestSelectSmallTopic(t *testing.T) {
	s := NewSelectorWithSource(rand.NewSource(4))
	if set := s.Select("1", topicQuestions(3), ids(0, 1), 20); len(set) != 3 {
		t.Fatalf("expected the whole topic, got %d", len(set))
	}
	if set := s.Select("1", topicQuestions(3), nil, 0); len(set) != 0 {
		t.Fatalf("expected an empty set, got %d", len(set))
	}
	if set := s.Select("1", nil, nil, 5); set == nil || len(set) != 0 {
		t.Fatalf("expected a non-nil empty set")
	}
}

func TestSelectIsDeterministicForSeed(t *testing.T) {
	a := NewSelectorWithSource(rand.NewSource(42)).Select("1", topicQuestions(30), ids(0, 8), 12)
	b := NewSelectorWithSource(rand.NewSource(42)).Select("1", topicQuestions(30), ids(0, 8), 12)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("same seed gave different sets at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

type failingHistory struct{}

func (failingHistory) ListMissed(context.Context, int64, string) ([]string, error) {
	return nil, errors.New("history offline")
}

func (failingHistory) RecordMisses(context.Context, int64, string, []string) error { return nil }

func TestPracticeServiceBuild(t *testing.T) {
	ctx := context.Background()
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(topicQuestions(25)), 0)
	history := memory.NewErrorHistory()
	if err := history.RecordMisses(ctx, 1, "1", ids(0, 10)); err != nil {
		t.Fatalf("record misses: %v", err)
	}
	svc := NewPracticeService(bank, history, NewSelectorWithSource(rand.NewSource(5)), logger.Nop())

	set, err := svc.Build(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(set) != 10 || countMissed(set, ids(0, 10)) != 4 {
		t.Fatalf("unexpected practice set of %d with %d missed", len(set), countMissed(set, ids(0, 10)))
	}

	degraded := NewPracticeService(bank, failingHistory{}, NewSelectorWithSource(rand.NewSource(5)), logger.Nop())
	if set, err := degraded.Build(ctx, 1, "1", 10); err != nil || len(set) != 10 {
		t.Fatalf("history failure should degrade to a uniform sample: %v (%d)", err, len(set))
	}

	if _, err := svc.Build(ctx, 1, "missing", 10); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected topic not found, got %v", err)
	}
}
