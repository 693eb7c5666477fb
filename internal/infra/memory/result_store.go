package memory

import (
	"context"
	"sync"

	"traffic-quiz-service/internal/domain"
)

// ResultStore is an in-memory app.RemoteResultStore. Like the SQL store it
// only keeps metadata, so every listed result is a Summary.
type ResultStore struct {
	mu   sync.RWMutex
	rows map[int64][]domain.ResultSummary
	// Err, when set, is returned by every call to simulate an outage.
	Err error
}

func NewResultStore() *ResultStore {
	return &ResultStore{rows: make(map[int64][]domain.ResultSummary)}
}

func (s *ResultStore) ListByUser(_ context.Context, userID int64) ([]domain.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]domain.TestResult, 0, len(s.rows[userID]))
	for _, row := range s.rows[userID] {
		out = append(out, domain.TestResult{ResultSummary: row})
	}
	domain.SortNewestFirst(out)
	return out, nil
}

func (s *ResultStore) Insert(_ context.Context, userID int64, result domain.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, row := range s.rows[userID] {
		if row.ID == result.ID {
			return nil
		}
	}
	s.rows[userID] = append(s.rows[userID], result.ResultSummary)
	return nil
}
