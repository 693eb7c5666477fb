package domain

import "time"

// Question is a single traffic-rules multiple choice question.
type Question struct {
	ID           string   `json:"id"`
	TopicID      string   `json:"topicId"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
}

// CorrectOption returns the text of the correct option, or "" if the index is out of range.
func (q Question) CorrectOption() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// UserAnswer records what the user picked for one question.
type UserAnswer struct {
	QuestionID string `json:"questionId"`
	Selected   int    `json:"selected"`
	Correct    bool   `json:"correct"`
}

// ErrorRecord is the per-question miss counter kept for adaptive practice.
type ErrorRecord struct {
	UserID       int64     `json:"userId"`
	TopicID      string    `json:"topicId"`
	QuestionID   string    `json:"questionId"`
	Misses       int       `json:"misses"`
	LastMissedAt time.Time `json:"lastMissedAt"`
}

// Caller identifies who triggered an operation.
type Caller struct {
	UserID  int64
	IsAdmin bool
}

// Tier is the subscription level of a user.
type Tier string

const (
	TierFree      Tier = "free"
	TierTrial     Tier = "trial"
	TierBasic     Tier = "basic"
	TierPremium   Tier = "premium"
	TierUnlimited Tier = "unlimited"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierTrial, TierBasic, TierPremium, TierUnlimited:
		return true
	}
	return false
}

// Profile is the server-side user record holding subscription and quota state.
type Profile struct {
	UserID          int64     `json:"userId"`
	AIQueriesCount  int       `json:"aiQueriesCount"`
	AILimitTotal    int       `json:"aiLimitTotal"`
	IsAdmin         bool      `json:"isAdmin"`
	Tier            Tier      `json:"tier"`
	SubscriptionEnd time.Time `json:"subscriptionEnd"`
	// QuotaPeriodEnd is the subscription end observed when the quota was last reset.
	QuotaPeriodEnd time.Time `json:"quotaPeriodEnd"`
	TrialUsed      bool      `json:"trialUsed"`
}

// PaymentEvent is a recorded paid subscription transaction.
type PaymentEvent struct {
	EventID   string    `json:"eventId"`
	UserID    int64     `json:"userId"`
	Tier      Tier      `json:"tier"`
	PeriodEnd time.Time `json:"periodEnd"`
	Amount    float64   `json:"amount"`
	OrderCode string    `json:"orderCode,omitempty"`
}
