package app

import (
	"context"
	"time"

	"traffic-quiz-service/internal/domain"
)

// LocalResultCache is the durable client-side copy of the result history.
// Save returns domain.ErrStorageQuotaExceeded when the payload does not fit.
type LocalResultCache interface {
	Load(ctx context.Context, userID int64) (domain.ResultsByTopic, error)
	Save(ctx context.Context, userID int64, results domain.ResultsByTopic) error
}

// RemoteResultStore is the source of truth for results when reachable.
// ListByUser returns metadata-only results ordered by creation time descending.
type RemoteResultStore interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.TestResult, error)
	Insert(ctx context.Context, userID int64, result domain.TestResult) error
}

// ProfileStore holds the server-side quota counters and subscription state.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID int64) (domain.Profile, error)
	// IncrementAIQueries atomically bumps ai_queries_count and returns the stored value.
	IncrementAIQueries(ctx context.Context, userID int64) (int, error)
	SetAIQuota(ctx context.Context, userID int64, used, total int) error
	UpdateSubscription(ctx context.Context, userID int64, tier domain.Tier, end, periodEnd time.Time, trialUsed bool) error
	ListSubscribers(ctx context.Context) ([]domain.Profile, error)
}

// ErrorHistory records which questions a user missed per topic.
type ErrorHistory interface {
	ListMissed(ctx context.Context, userID int64, topicID string) ([]string, error)
	RecordMisses(ctx context.Context, userID int64, topicID string, questionIDs []string) error
}

// QuestionBank serves the questions of a topic.
type QuestionBank interface {
	Questions(ctx context.Context, topicID string) ([]domain.Question, error)
}

// AIEndpoint is the metered AI backend. Implementations return the raw text,
// which may embed domain.CapacityExhaustedMarker.
type AIEndpoint interface {
	Explain(ctx context.Context, req domain.ExplainRequest) (string, error)
	Advise(ctx context.Context, req domain.AdviceRequest) (string, error)
}

// ExplanationCache remembers AI answers per user and request key.
type ExplanationCache interface {
	Get(ctx context.Context, userID int64, key string) (string, bool, error)
	Put(ctx context.Context, userID int64, key, text string) error
}

// Notifier delivers short messages to a user outside the Mini App.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// UsageEvent is published for every metered call and quota reset.
type UsageEvent struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"userId"`
	Used      int       `json:"used"`
	Total     int       `json:"total"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventAIConsumed = "ai.query.consumed"
	EventQuotaReset = "quota.reset"
)

// UsagePublisher fans usage events out to other services.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event UsageEvent) error
}
