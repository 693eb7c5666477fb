package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"traffic-quiz-service/internal/domain"
)

func TestResultCacheRespectsLimit(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(400)

	small := domain.ResultsByTopic{"1": {domain.NewResult(1, 1, 2, 2, 30, nil, time.Unix(1700000000, 0))}}
	if err := cache.Save(ctx, 7, small); err != nil {
		t.Fatalf("save small: %v", err)
	}

	big := small.Clone()
	big["1"] = []domain.TestResult{domain.NewResult(1, 1, 2, 2, 30, &domain.ResultPayload{
		Questions: []domain.Question{{ID: "q", Text: strings.Repeat("x", 600)}},
	}, time.Unix(1700000001, 0))}
	if err := cache.Save(ctx, 7, big); !errors.Is(err, domain.ErrStorageQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	loaded, err := cache.Load(ctx, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Get(1)) != 1 || loaded.Get(1)[0].IsFull() {
		t.Fatalf("expected previous summary to survive, got %+v", loaded)
	}
}

func TestResultStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		r := domain.NewResult("7", i, 3, 3, 10, &domain.ResultPayload{UserAnswers: []domain.UserAnswer{{QuestionID: "q"}}}, base.Add(time.Duration(i)*time.Minute))
		if err := store.Insert(ctx, 1, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	list, err := store.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Correct != 2 {
		t.Fatalf("unexpected order: %+v", list)
	}
	for _, r := range list {
		if r.IsFull() {
			t.Fatalf("remote results must be summaries")
		}
	}

	store.Err = errors.New("offline")
	if _, err := store.ListByUser(ctx, 1); err == nil {
		t.Fatalf("expected outage error")
	}
}

func TestProfileStoreConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	store := NewProfileStore()
	store.Seed(domain.Profile{UserID: 5, AIQueriesCount: 4, AILimitTotal: 10, Tier: domain.TierBasic})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementAIQueries(ctx, 5); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := store.GetProfile(ctx, 5)
	if p.AIQueriesCount != 6 {
		t.Fatalf("expected 6, got %d", p.AIQueriesCount)
	}

	subs, _ := store.ListSubscribers(ctx)
	if len(subs) != 1 || subs[0].UserID != 5 {
		t.Fatalf("unexpected subscribers %+v", subs)
	}
}

func TestErrorHistoryOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	h := NewErrorHistory()
	now := time.Unix(1700000000, 0)
	h.clock = func() time.Time { return now }

	_ = h.RecordMisses(ctx, 1, "3", []string{"a", "b"})
	now = now.Add(time.Minute)
	_ = h.RecordMisses(ctx, 1, " 3", []string{"c"})

	ids, err := h.ListMissed(ctx, 1, "3")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 || ids[0] != "c" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if other, _ := h.ListMissed(ctx, 2, "3"); len(other) != 0 {
		t.Fatalf("history must be user scoped")
	}
}
