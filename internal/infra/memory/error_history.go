package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"traffic-quiz-service/internal/domain"
)

// ErrorHistory is an in-memory app.ErrorHistory.
type ErrorHistory struct {
	clock func() time.Time

	mu      sync.RWMutex
	records map[historyKey]map[string]*domain.ErrorRecord
}

type historyKey struct {
	userID int64
	topic  string
}

func NewErrorHistory() *ErrorHistory {
	return &ErrorHistory{clock: time.Now, records: make(map[historyKey]map[string]*domain.ErrorRecord)}
}

// ListMissed returns question ids ordered by most recent miss.
func (h *ErrorHistory) ListMissed(_ context.Context, userID int64, topicID string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	byQuestion := h.records[historyKey{userID, domain.TopicKey(topicID)}]
	recs := make([]*domain.ErrorRecord, 0, len(byQuestion))
	for _, r := range byQuestion {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastMissedAt.Equal(recs[j].LastMissedAt) {
			return recs[i].LastMissedAt.After(recs[j].LastMissedAt)
		}
		return recs[i].QuestionID < recs[j].QuestionID
	})
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.QuestionID
	}
	return ids, nil
}

func (h *ErrorHistory) RecordMisses(_ context.Context, userID int64, topicID string, questionIDs []string) error {
	if len(questionIDs) == 0 {
		return nil
	}
	topic := domain.TopicKey(topicID)
	key := historyKey{userID, topic}
	now := h.clock()

	h.mu.Lock()
	defer h.mu.Unlock()
	byQuestion, ok := h.records[key]
	if !ok {
		byQuestion = make(map[string]*domain.ErrorRecord)
		h.records[key] = byQuestion
	}
	for _, id := range questionIDs {
		r, ok := byQuestion[id]
		if !ok {
			r = &domain.ErrorRecord{UserID: userID, TopicID: topic, QuestionID: id}
			byQuestion[id] = r
		}
		r.Misses++
		r.LastMissedAt = now
	}
	return nil
}
