package app

import (
	"context"
	"fmt"
	"sync"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// Ledger reads and mutates the server-side AI usage counter.
type Ledger struct {
	profiles ProfileStore
	log      *logger.Logger
}

func NewLedger(profiles ProfileStore, log *logger.Logger) *Ledger {
	return &Ledger{profiles: profiles, log: log.With("component", "ledger")}
}

// Load always reads the profile store; administrators short-circuit to unlimited.
func (l *Ledger) Load(ctx context.Context, caller domain.Caller) (domain.QuotaLedger, error) {
	if caller.IsAdmin {
		return domain.QuotaLedger{Total: domain.UnlimitedQuota}, nil
	}
	p, err := l.profiles.GetProfile(ctx, caller.UserID)
	if err != nil {
		return domain.QuotaLedger{}, fmt.Errorf("load quota: %w", err)
	}
	if p.IsAdmin {
		return domain.QuotaLedger{Total: domain.UnlimitedQuota}, nil
	}
	ledger := domain.QuotaLedger{Used: p.AIQueriesCount, Total: p.AILimitTotal}
	if p.Tier == domain.TierUnlimited {
		ledger.Total = domain.UnlimitedQuota
	}
	return ledger, nil
}

// Increment records one consumed call and returns the server-confirmed count.
func (l *Ledger) Increment(ctx context.Context, caller domain.Caller) (int, error) {
	if caller.IsAdmin {
		return 0, domain.ErrAdminNotMetered
	}
	used, err := l.profiles.IncrementAIQueries(ctx, caller.UserID)
	if err != nil {
		return 0, fmt.Errorf("increment quota: %w", err)
	}
	return used, nil
}

// Reset starts a new period with used = 0 and the given ceiling.
func (l *Ledger) Reset(ctx context.Context, userID int64, total int) error {
	if err := l.profiles.SetAIQuota(ctx, userID, 0, total); err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	l.log.Info("quota reset", "user_id", userID, "total", total)
	return nil
}

// CheckQuota applies the gate rule to a ledger snapshot.
func CheckQuota(snapshot domain.QuotaLedger, caller domain.Caller, isHint bool) domain.QuotaDecision {
	d := domain.QuotaDecision{Used: snapshot.Used, Total: snapshot.Total, Hint: isHint}
	if caller.IsAdmin || snapshot.Unlimited() {
		d.Allowed = true
		d.Unlimited = true
		d.Remaining = domain.UnlimitedQuota
		return d
	}
	d.Allowed = snapshot.Total > 0 && snapshot.Used < snapshot.Total
	d.Remaining = max(0, snapshot.Total-snapshot.Used)
	return d
}

// QuotaGate keeps the per-user snapshot used for the first check and reloads
// it from the ledger for the late check right before a network call.
type QuotaGate struct {
	ledger *Ledger

	mu        sync.RWMutex
	snapshots map[int64]domain.QuotaLedger
}

func NewQuotaGate(ledger *Ledger) *QuotaGate {
	return &QuotaGate{ledger: ledger, snapshots: make(map[int64]domain.QuotaLedger)}
}

// Check decides on the cached snapshot, loading it on a miss.
func (g *QuotaGate) Check(ctx context.Context, caller domain.Caller, isHint bool) (domain.QuotaDecision, error) {
	if caller.IsAdmin {
		return CheckQuota(domain.QuotaLedger{}, caller, isHint), nil
	}
	g.mu.RLock()
	snap, ok := g.snapshots[caller.UserID]
	g.mu.RUnlock()
	if !ok {
		return g.Recheck(ctx, caller, isHint)
	}
	return CheckQuota(snap, caller, isHint), nil
}

// Recheck reloads the ledger and decides on the fresh value.
func (g *QuotaGate) Recheck(ctx context.Context, caller domain.Caller, isHint bool) (domain.QuotaDecision, error) {
	snap, err := g.ledger.Load(ctx, caller)
	if err != nil {
		return domain.QuotaDecision{Hint: isHint}, err
	}
	if !caller.IsAdmin {
		g.Update(caller.UserID, snap)
	}
	return CheckQuota(snap, caller, isHint), nil
}

// Update replaces the cached snapshot.
func (g *QuotaGate) Update(userID int64, snap domain.QuotaLedger) {
	g.mu.Lock()
	g.snapshots[userID] = snap
	g.mu.Unlock()
}

// Snapshot returns the cached snapshot, if any.
func (g *QuotaGate) Snapshot(userID int64) (domain.QuotaLedger, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap, ok := g.snapshots[userID]
	return snap, ok
}

// Invalidate drops the cached snapshot so the next Check reloads.
func (g *QuotaGate) Invalidate(userID int64) {
	g.mu.Lock()
	delete(g.snapshots, userID)
	g.mu.Unlock()
}

// QuotaError is returned when the gate blocks a metered call.
type QuotaError struct {
	Decision domain.QuotaDecision
}

func (e *QuotaError) Error() string {
	return e.Decision.Message()
}

func (e *QuotaError) Unwrap() error { return domain.ErrQuotaExhausted }
