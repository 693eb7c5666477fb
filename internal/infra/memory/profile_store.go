package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"traffic-quiz-service/internal/domain"
)

// ProfileStore is an in-memory app.ProfileStore. Profiles are created on
// first access as free tier with no quota.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[int64]*domain.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[int64]*domain.Profile)}
}

// Seed replaces a stored profile.
func (s *ProfileStore) Seed(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[p.UserID] = &cp
}

func (s *ProfileStore) GetProfile(_ context.Context, userID int64) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensureLocked(userID), nil
}

func (s *ProfileStore) IncrementAIQueries(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ensureLocked(userID)
	p.AIQueriesCount++
	return p.AIQueriesCount, nil
}

func (s *ProfileStore) SetAIQuota(_ context.Context, userID int64, used, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ensureLocked(userID)
	p.AIQueriesCount = used
	p.AILimitTotal = total
	return nil
}

func (s *ProfileStore) UpdateSubscription(_ context.Context, userID int64, tier domain.Tier, end, periodEnd time.Time, trialUsed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ensureLocked(userID)
	p.Tier = tier
	p.SubscriptionEnd = end
	p.QuotaPeriodEnd = periodEnd
	p.TrialUsed = trialUsed
	return nil
}

func (s *ProfileStore) ListSubscribers(_ context.Context) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Profile
	for _, p := range s.profiles {
		if p.Tier != domain.TierFree && p.Tier != "" {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *ProfileStore) ensureLocked(userID int64) *domain.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &domain.Profile{UserID: userID, Tier: domain.TierFree}
		s.profiles[userID] = p
	}
	return p
}
