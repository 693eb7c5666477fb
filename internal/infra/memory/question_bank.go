package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"traffic-quiz-service/internal/domain"
)

// QuestionLoader fetches a topic's questions from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, topicID string) ([]domain.Question, error)
}

// QuestionBank caches topic questions with TTL to avoid repeated DB hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedTopic
}

type cachedTopic struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTopic),
	}
}

func (b *QuestionBank) Questions(ctx context.Context, topicID string) ([]domain.Question, error) {
	key := domain.TopicKey(topicID)
	if qs, ok := b.lookup(key); ok {
		return qs, nil
	}

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		if qs, ok := b.lookup(key); ok {
			return qs, nil
		}
		qs, err := b.loader.LoadQuestions(ctx, key)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.cache[key] = cachedTopic{questions: qs, expiresAt: b.clock().Add(b.ttlWithJitterLocked())}
		b.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops a cached topic, e.g. after an import.
func (b *QuestionBank) Invalidate(topicID string) {
	b.mu.Lock()
	delete(b.cache, domain.TopicKey(topicID))
	b.mu.Unlock()
}

func (b *QuestionBank) lookup(key string) ([]domain.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[key]
	if !ok || !entry.expiresAt.After(b.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func (b *QuestionBank) ttlWithJitterLocked() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves questions from memory (tests and demo mode).
type StaticQuestionLoader struct {
	mu     sync.RWMutex
	topics map[string][]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	l := &StaticQuestionLoader{topics: make(map[string][]domain.Question)}
	l.Add(questions...)
	return l
}

// Add appends questions to their topics.
func (l *StaticQuestionLoader) Add(questions ...domain.Question) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range questions {
		key := domain.TopicKey(q.TopicID)
		q.TopicID = key
		l.topics[key] = append(l.topics[key], q)
	}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, topicID string) ([]domain.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	qs, ok := l.topics[domain.TopicKey(topicID)]
	if !ok {
		return nil, domain.ErrTopicNotFound
	}
	return append([]domain.Question(nil), qs...), nil
}
