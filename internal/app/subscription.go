package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// SubscriptionPolicy holds the plan ceilings and trial terms.
type SubscriptionPolicy struct {
	TrialTotal  int
	TrialPeriod time.Duration
	// Plans maps a paid tier to its AI quota ceiling. domain.UnlimitedQuota is allowed.
	Plans map[domain.Tier]int
}

func (p SubscriptionPolicy) totalFor(tier domain.Tier) int {
	switch tier {
	case domain.TierFree:
		return 0
	case domain.TierTrial:
		return p.TrialTotal
	case domain.TierUnlimited:
		if total, ok := p.Plans[tier]; ok {
			return total
		}
		return domain.UnlimitedQuota
	}
	return p.Plans[tier]
}

// SubscriptionService reconciles the subscription state with the quota ledger.
type SubscriptionService struct {
	profiles ProfileStore
	ledger   *Ledger
	gate     *QuotaGate
	notifier Notifier
	events   UsagePublisher
	policy   SubscriptionPolicy
	log      *logger.Logger
	now      func() time.Time

	guards sync.Map // int64 -> *atomic.Bool
}

func NewSubscriptionService(profiles ProfileStore, ledger *Ledger, gate *QuotaGate, notifier Notifier, events UsagePublisher, policy SubscriptionPolicy, log *logger.Logger) *SubscriptionService {
	return &SubscriptionService{
		profiles: profiles,
		ledger:   ledger,
		gate:     gate,
		notifier: notifier,
		events:   events,
		policy:   policy,
		log:      log.With("component", "subscription"),
		now:      time.Now,
	}
}

// Load refreshes the user's subscription and quota. Only one load per user runs
// at a time; a concurrent caller returns loaded=false immediately.
func (s *SubscriptionService) Load(ctx context.Context, caller domain.Caller) (bool, error) {
	guard := s.guard(caller.UserID)
	if !guard.CompareAndSwap(false, true) {
		return false, nil
	}
	defer guard.Store(false)

	if caller.IsAdmin {
		return true, nil
	}
	p, err := s.profiles.GetProfile(ctx, caller.UserID)
	if err != nil {
		return true, fmt.Errorf("load subscription: %w", err)
	}
	if err := s.reconcile(ctx, p); err != nil {
		return true, err
	}
	if _, err := s.gate.Recheck(ctx, caller, false); err != nil {
		return true, err
	}
	return true, nil
}

// reconcile applies trial grants, expiry and new-cycle resets. A trial grant is
// only possible on the free tier, so it never overlaps with a cycle reset.
func (s *SubscriptionService) reconcile(ctx context.Context, p domain.Profile) error {
	now := s.now()
	switch {
	case p.IsAdmin:
		return nil

	case p.Tier == domain.TierFree || p.Tier == "":
		if p.TrialUsed || s.policy.TrialTotal <= 0 {
			return nil
		}
		end := now.Add(s.policy.TrialPeriod)
		if err := s.profiles.UpdateSubscription(ctx, p.UserID, domain.TierTrial, end, end, true); err != nil {
			return fmt.Errorf("grant trial: %w", err)
		}
		s.log.Info("trial granted", "user_id", p.UserID, "until", end)
		return s.reset(ctx, p.UserID, s.policy.TrialTotal)

	case !p.SubscriptionEnd.IsZero() && !now.Before(p.SubscriptionEnd):
		if err := s.profiles.UpdateSubscription(ctx, p.UserID, domain.TierFree, time.Time{}, time.Time{}, true); err != nil {
			return fmt.Errorf("expire subscription: %w", err)
		}
		s.log.Info("subscription expired", "user_id", p.UserID, "tier", p.Tier)
		return s.reset(ctx, p.UserID, 0)

	case !p.SubscriptionEnd.Equal(p.QuotaPeriodEnd):
		if err := s.profiles.UpdateSubscription(ctx, p.UserID, p.Tier, p.SubscriptionEnd, p.SubscriptionEnd, p.TrialUsed); err != nil {
			return fmt.Errorf("start cycle: %w", err)
		}
		s.log.Info("new subscription cycle", "user_id", p.UserID, "until", p.SubscriptionEnd)
		return s.reset(ctx, p.UserID, s.policy.totalFor(p.Tier))
	}
	return nil
}

// RecordPayment applies a paid subscription transaction and resets the quota.
func (s *SubscriptionService) RecordPayment(ctx context.Context, event domain.PaymentEvent) error {
	if !event.Tier.Valid() || event.Tier == domain.TierFree || event.Tier == domain.TierTrial {
		return fmt.Errorf("record payment: unsupported tier %q", event.Tier)
	}
	if err := s.profiles.UpdateSubscription(ctx, event.UserID, event.Tier, event.PeriodEnd, event.PeriodEnd, true); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if err := s.reset(ctx, event.UserID, s.policy.totalFor(event.Tier)); err != nil {
		return err
	}
	s.log.Info("payment recorded", "user_id", event.UserID, "tier", event.Tier, "order", event.OrderCode)
	s.notify(ctx, event.UserID, fmt.Sprintf("Your %s subscription is active until %s.", event.Tier, event.PeriodEnd.Format("02.01.2006")))
	return nil
}

// Sweep reconciles every subscriber and reminds those whose subscription ends
// within a day. It returns the number of profiles examined.
func (s *SubscriptionService) Sweep(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ListSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	now := s.now()
	for _, p := range profiles {
		guard := s.guard(p.UserID)
		if !guard.CompareAndSwap(false, true) {
			continue
		}
		if err := s.reconcile(ctx, p); err != nil {
			s.log.Warn("sweep reconcile failed", "user_id", p.UserID, "error", err)
		}
		guard.Store(false)

		if p.Tier != domain.TierFree && !p.SubscriptionEnd.IsZero() &&
			p.SubscriptionEnd.After(now) && p.SubscriptionEnd.Sub(now) <= 24*time.Hour {
			s.notify(ctx, p.UserID, "Your subscription ends within a day. Renew it to keep AI explanations.")
		}
	}
	return len(profiles), nil
}

func (s *SubscriptionService) reset(ctx context.Context, userID int64, total int) error {
	if err := s.ledger.Reset(ctx, userID, total); err != nil {
		return err
	}
	s.gate.Update(userID, domain.QuotaLedger{Used: 0, Total: total})
	if s.events != nil {
		ev := UsageEvent{Type: EventQuotaReset, UserID: userID, Total: total, Timestamp: s.now().UTC()}
		if err := s.events.PublishUsage(ctx, ev); err != nil {
			s.log.Warn("publish quota reset failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (s *SubscriptionService) notify(ctx context.Context, userID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		s.log.Warn("notification failed", "user_id", userID, "error", err)
	}
}

func (s *SubscriptionService) guard(userID int64) *atomic.Bool {
	v, _ := s.guards.LoadOrStore(userID, new(atomic.Bool))
	return v.(*atomic.Bool)
}
