package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"traffic-quiz-service/internal/logger"
)

// Sweeper reconciles subscription cycles and sends expiry reminders.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler runs the periodic subscription sweep.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   Sweeper
	every     time.Duration
	log       *logger.Logger
}

func New(sweeper Sweeper, every time.Duration, log *logger.Logger) *Scheduler {
	if every <= 0 {
		every = time.Hour
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		sweeper:   sweeper,
		every:     every,
		log:       log.With("component", "scheduler"),
	}
}

// Start schedules the sweep; the first run happens immediately.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.every).Do(s.runSweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.log.Info("scheduler started", "every", s.every)
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.Error("subscription sweep failed", "error", err)
		return
	}
	s.log.Info("subscription sweep done", "profiles", n, "took", time.Since(start))
}
