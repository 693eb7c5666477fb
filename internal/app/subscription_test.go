package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/infra/memory"
	"traffic-quiz-service/internal/logger"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[int64][]string)
	}
	n.sent[userID] = append(n.sent[userID], text)
	return nil
}

func (n *recordingNotifier) messages(userID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[userID]...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []UsageEvent
}

func (p *recordingPublisher) PublishUsage(_ context.Context, ev UsageEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) ofType(typ string) []UsageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []UsageEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

var testPolicy = SubscriptionPolicy{
	TrialTotal:  3,
	TrialPeriod: 3 * 24 * time.Hour,
	Plans:       map[domain.Tier]int{domain.TierBasic: 50, domain.TierPremium: 200},
}

type subscriptionFixture struct {
	profiles *memory.ProfileStore
	gate     *QuotaGate
	notifier *recordingNotifier
	events   *recordingPublisher
	svc      *SubscriptionService
}

func newSubscriptionFixture(now time.Time) subscriptionFixture {
	profiles := memory.NewProfileStore()
	ledger := NewLedger(profiles, logger.Nop())
	gate := NewQuotaGate(ledger)
	notifier := &recordingNotifier{}
	events := &recordingPublisher{}
	svc := NewSubscriptionService(profiles, ledger, gate, notifier, events, testPolicy, logger.Nop())
	svc.now = func() time.Time { return now }
	return subscriptionFixture{profiles: profiles, gate: gate, notifier: notifier, events: events, svc: svc}
}

func TestSubscriptionGrantsTrialOnce(t *testing.T) {
	ctx := context.Background()
	f := newSubscriptionFixture(base)
	caller := domain.Caller{UserID: 1}

	loaded, err := f.svc.Load(ctx, caller)
	if err != nil || !loaded {
		t.Fatalf("load: %v loaded=%v", err, loaded)
	}
	p, _ := f.profiles.GetProfile(ctx, 1)
	if p.Tier != domain.TierTrial || !p.TrialUsed || p.AILimitTotal != 3 || p.AIQueriesCount != 0 {
		t.Fatalf("unexpected profile after trial grant %+v", p)
	}
	if !p.SubscriptionEnd.Equal(base.Add(testPolicy.TrialPeriod)) {
		t.Fatalf("unexpected trial end %v", p.SubscriptionEnd)
	}
	if snap, ok := f.gate.Snapshot(1); !ok || snap.Total != 3 {
		t.Fatalf("gate snapshot not refreshed: %+v", snap)
	}
	if len(f.events.ofType(EventQuotaReset)) != 1 {
		t.Fatalf("expected a quota reset event")
	}

	// an expired trial is not granted again
	f.profiles.Seed(domain.Profile{UserID: 1, Tier: domain.TierFree, TrialUsed: true})
	if _, err := f.svc.Load(ctx, caller); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if p, _ := f.profiles.GetProfile(ctx, 1); p.Tier != domain.TierFree || p.AILimitTotal != 0 {
		t.Fatalf("trial must not be granted twice, got %+v", p)
	}
}

func TestSubscriptionLoadGuard(t *testing.T) {
	f := newSubscriptionFixture(base)
	f.svc.guard(1).Store(true)

	loaded, err := f.svc.Load(context.Background(), domain.Caller{UserID: 1})
	if err != nil || loaded {
		t.Fatalf("a concurrent load must return immediately, got loaded=%v err=%v", loaded, err)
	}
	if p, _ := f.profiles.GetProfile(context.Background(), 1); p.Tier != domain.TierFree {
		t.Fatalf("guarded load must not touch the profile, got %+v", p)
	}

	f.svc.guard(1).Store(false)
	if loaded, _ := f.svc.Load(context.Background(), domain.Caller{UserID: 1}); !loaded {
		t.Fatalf("load should run once the guard is released")
	}
}

func TestSubscriptionExpiry(t *testing.T) {
	ctx := context.Background()
	f := newSubscriptionFixture(base)
	f.profiles.Seed(domain.Profile{
		UserID: 1, Tier: domain.TierBasic, AIQueriesCount: 10, AILimitTotal: 50,
		SubscriptionEnd: base.Add(-time.Hour), QuotaPeriodEnd: base.Add(-time.Hour), TrialUsed: true,
	})

	if _, err := f.svc.Load(ctx, domain.Caller{UserID: 1}); err != nil {
		t.Fatalf("load: %v", err)
	}
	p, _ := f.profiles.GetProfile(ctx, 1)
	if p.Tier != domain.TierFree || p.AILimitTotal != 0 || p.AIQueriesCount != 0 {
		t.Fatalf("expected expired subscription to drop to free, got %+v", p)
	}
	d, _ := f.gate.Check(ctx, domain.Caller{UserID: 1}, false)
	if d.Allowed {
		t.Fatalf("expired subscription must block")
	}
}

func TestSubscriptionNewCycleResetsQuota(t *testing.T) {
	ctx := context.Background()
	f := newSubscriptionFixture(base)
	oldEnd := base.Add(-24 * time.Hour)
	newEnd := base.Add(29 * 24 * time.Hour)
	f.profiles.Seed(domain.Profile{
		UserID: 1, Tier: domain.TierBasic, AIQueriesCount: 50, AILimitTotal: 50,
		SubscriptionEnd: newEnd, QuotaPeriodEnd: oldEnd, TrialUsed: true,
	})

	if _, err := f.svc.Load(ctx, domain.Caller{UserID: 1}); err != nil {
		t.Fatalf("load: %v", err)
	}
	p, _ := f.profiles.GetProfile(ctx, 1)
	if p.AIQueriesCount != 0 || p.AILimitTotal != 50 || !p.QuotaPeriodEnd.Equal(newEnd) {
		t.Fatalf("expected a fresh period, got %+v", p)
	}

	// same period again: usage is kept
	if _, err := f.profiles.IncrementAIQueries(ctx, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := f.svc.Load(ctx, domain.Caller{UserID: 1}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if p, _ := f.profiles.GetProfile(ctx, 1); p.AIQueriesCount != 1 {
		t.Fatalf("usage must survive a reload within the period, got %d", p.AIQueriesCount)
	}
}

func TestSubscriptionAdminSkipsReconcile(t *testing.T) {
	f := newSubscriptionFixture(base)
	loaded, err := f.svc.Load(context.Background(), domain.Caller{UserID: 5, IsAdmin: true})
	if err != nil || !loaded {
		t.Fatalf("admin load: %v", err)
	}
	if p, _ := f.profiles.GetProfile(context.Background(), 5); p.TrialUsed {
		t.Fatalf("admins never receive a trial")
	}
}

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()
	f := newSubscriptionFixture(base)
	f.profiles.Seed(domain.Profile{UserID: 1, Tier: domain.TierTrial, AIQueriesCount: 3, AILimitTotal: 3, TrialUsed: true})
	end := base.Add(30 * 24 * time.Hour)

	err := f.svc.RecordPayment(ctx, domain.PaymentEvent{EventID: "e1", UserID: 1, Tier: domain.TierPremium, PeriodEnd: end, OrderCode: "A-1"})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	p, _ := f.profiles.GetProfile(ctx, 1)
	if p.Tier != domain.TierPremium || p.AILimitTotal != 200 || p.AIQueriesCount != 0 || !p.SubscriptionEnd.Equal(end) {
		t.Fatalf("unexpected profile after payment %+v", p)
	}
	msgs := f.notifier.messages(1)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "premium") {
		t.Fatalf("expected an activation notice, got %v", msgs)
	}

	if err := f.svc.RecordPayment(ctx, domain.PaymentEvent{UserID: 1, Tier: domain.TierTrial, PeriodEnd: end}); err == nil {
		t.Fatalf("trial is not a paid tier")
	}
}

func TestSweepRemindsAndExpires(t *testing.T) {
	ctx := context.Background()
	f := newSubscriptionFixture(base)
	f.profiles.Seed(domain.Profile{UserID: 1, Tier: domain.TierBasic, AILimitTotal: 50, SubscriptionEnd: base.Add(6 * time.Hour), QuotaPeriodEnd: base.Add(6 * time.Hour), TrialUsed: true})
	f.profiles.Seed(domain.Profile{UserID: 2, Tier: domain.TierBasic, AILimitTotal: 50, SubscriptionEnd: base.Add(-time.Minute), QuotaPeriodEnd: base.Add(-time.Minute), TrialUsed: true})
	f.profiles.Seed(domain.Profile{UserID: 3, Tier: domain.TierPremium, AILimitTotal: 200, SubscriptionEnd: base.Add(10 * 24 * time.Hour), QuotaPeriodEnd: base.Add(10 * 24 * time.Hour), TrialUsed: true})

	n, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 subscribers examined, got %d", n)
	}
	if len(f.notifier.messages(1)) != 1 {
		t.Fatalf("user ending within a day should be reminded")
	}
	if len(f.notifier.messages(3)) != 0 {
		t.Fatalf("user with time left should not be reminded")
	}
	if p, _ := f.profiles.GetProfile(ctx, 2); p.Tier != domain.TierFree {
		t.Fatalf("expired subscriber should be downgraded, got %+v", p)
	}
}
