package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// Share of a practice set drawn from previously missed questions (2/5).
const (
	errorShareNum = 2
	errorShareDen = 5
)

// ErrorTarget returns ceil(desired * 0.4) without floating point.
func ErrorTarget(desired int) int {
	if desired <= 0 {
		return 0
	}
	return (desired*errorShareNum + errorShareDen - 1) / errorShareDen
}

// Selector builds adaptive question sets.
type Selector struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewSelector() *Selector {
	return NewSelectorWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewSelectorWithSource is used by tests for deterministic draws.
func NewSelectorWithSource(src rand.Source) *Selector {
	return &Selector{rand: rand.New(src)}
}

// Select draws ErrorTarget(desired) questions from the missed pool and the rest
// from the others, without replacement. A short pool is taken whole and the
// shortfall is filled from the other pool's leftovers. The set is shuffled.
func (s *Selector) Select(topicID string, all []domain.Question, errorIDs []string, desired int) []domain.Question {
	if desired <= 0 || len(all) == 0 {
		return []domain.Question{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(errorIDs) == 0 {
		return s.sample(all, desired)
	}

	missed := make(map[string]struct{}, len(errorIDs))
	for _, id := range errorIDs {
		missed[id] = struct{}{}
	}
	var withErrors, withoutErrors []domain.Question
	for _, q := range all {
		if _, ok := missed[q.ID]; ok {
			withErrors = append(withErrors, q)
		} else {
			withoutErrors = append(withoutErrors, q)
		}
	}

	errorTarget := ErrorTarget(desired)
	regularTarget := desired - errorTarget

	s.shuffle(withErrors)
	s.shuffle(withoutErrors)
	takeErr := min(errorTarget, len(withErrors))
	takeReg := min(regularTarget, len(withoutErrors))
	if short := desired - takeErr - takeReg; short > 0 {
		extra := min(short, len(withoutErrors)-takeReg)
		takeReg += extra
		takeErr += min(short-extra, len(withErrors)-takeErr)
	}

	out := make([]domain.Question, 0, takeErr+takeReg)
	out = append(out, withErrors[:takeErr]...)
	out = append(out, withoutErrors[:takeReg]...)
	s.shuffle(out)
	return out
}

func (s *Selector) sample(all []domain.Question, n int) []domain.Question {
	pool := append([]domain.Question(nil), all...)
	s.shuffle(pool)
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

// shuffle is an in-place Fisher-Yates shuffle.
func (s *Selector) shuffle(qs []domain.Question) {
	for i := len(qs) - 1; i > 0; i-- {
		j := s.rand.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// PracticeService assembles adaptive practice sets from the question bank and
// the user's error history.
type PracticeService struct {
	bank     QuestionBank
	misses   ErrorHistory
	selector *Selector
	log      *logger.Logger
}

func NewPracticeService(bank QuestionBank, misses ErrorHistory, selector *Selector, log *logger.Logger) *PracticeService {
	return &PracticeService{bank: bank, misses: misses, selector: selector, log: log.With("component", "practice")}
}

// Build returns an adaptive set for the topic. A failing error history
// degrades to a uniform sample.
func (p *PracticeService) Build(ctx context.Context, userID int64, topic any, count int) ([]domain.Question, error) {
	key := domain.TopicKey(topic)
	questions, err := p.bank.Questions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrTopicNotFound
	}
	var errorIDs []string
	if p.misses != nil {
		errorIDs, err = p.misses.ListMissed(ctx, userID, key)
		if err != nil {
			p.log.Warn("error history unavailable, using uniform sample", "user_id", userID, "topic", key, "error", err)
			errorIDs = nil
		}
	}
	return p.selector.Select(key, questions, errorIDs, count), nil
}
