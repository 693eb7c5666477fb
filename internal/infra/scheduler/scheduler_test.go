package scheduler

import (
	"context"
	"testing"
	"time"

	"traffic-quiz-service/internal/logger"
)

type sweeperStub struct {
	calls chan struct{}
}

func (s *sweeperStub) Sweep(context.Context) (int, error) {
	s.calls <- struct{}{}
	return 1, nil
}

func TestSchedulerRunsSweepOnStart(t *testing.T) {
	stub := &sweeperStub{calls: make(chan struct{}, 4)}
	s := New(stub, time.Hour, logger.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	select {
	case <-stub.calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an immediate sweep")
	}
}
