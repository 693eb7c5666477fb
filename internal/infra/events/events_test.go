package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"traffic-quiz-service/internal/app"
	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

type recorderStub struct {
	events []domain.PaymentEvent
	err    error
}

func (r *recorderStub) RecordPayment(_ context.Context, e domain.PaymentEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func TestConsumerHandleRecordsOnce(t *testing.T) {
	rec := &recorderStub{}
	c, err := NewConsumer("", "billing.events", "q", rec, logger.Nop())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	body := []byte(`{"eventId":"ev-1","userId":42,"tier":"premium","periodEnd":"2026-12-01T00:00:00Z","amount":199,"orderCode":"A1"}`)

	for i := 0; i < 2; i++ {
		if err := c.Handle(context.Background(), RoutingPaymentSucceeded, body); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected single application, got %d", len(rec.events))
	}
	got := rec.events[0]
	if got.UserID != 42 || got.Tier != domain.TierPremium || !got.PeriodEnd.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestConsumerHandleDropsBadMessages(t *testing.T) {
	rec := &recorderStub{}
	c, _ := NewConsumer("", "billing.events", "q", rec, logger.Nop())

	for _, body := range []string{`not json`, `{"userId":1,"tier":"gold","periodEnd":"2026-12-01T00:00:00Z"}`, `{"tier":"basic"}`} {
		if err := c.Handle(context.Background(), RoutingPaymentSucceeded, []byte(body)); err != nil {
			t.Fatalf("bad message must be dropped, got %v", err)
		}
	}
	if err := c.Handle(context.Background(), "plan.created", []byte(`{}`)); err != nil {
		t.Fatalf("unknown routing key: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("nothing should be recorded")
	}
}

func TestConsumerHandleRequeuesOnFailure(t *testing.T) {
	rec := &recorderStub{err: errors.New("db down")}
	c, _ := NewConsumer("", "billing.events", "q", rec, logger.Nop())
	body := []byte(`{"eventId":"ev-2","userId":7,"tier":"basic","periodEnd":"2026-12-01T00:00:00Z"}`)

	if err := c.Handle(context.Background(), RoutingSubscriptionRenewed, body); err == nil {
		t.Fatalf("expected error so the delivery is requeued")
	}
	rec.err = nil
	if err := c.Handle(context.Background(), RoutingSubscriptionRenewed, body); err != nil || len(rec.events) != 1 {
		t.Fatalf("retry must apply the event, got %v / %d", err, len(rec.events))
	}
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p, err := NewPublisher("", "billing.events", logger.Nop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := p.PublishUsage(context.Background(), app.UsageEvent{Type: app.EventAIConsumed, UserID: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
