package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"traffic-quiz-service/internal/ai"
	"traffic-quiz-service/internal/app"
	"traffic-quiz-service/internal/config"
	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/infra/edge"
	"traffic-quiz-service/internal/infra/events"
	"traffic-quiz-service/internal/infra/memory"
	pgstore "traffic-quiz-service/internal/infra/postgres"
	redisstore "traffic-quiz-service/internal/infra/redis"
	"traffic-quiz-service/internal/infra/scheduler"
	"traffic-quiz-service/internal/infra/telegram"
	"traffic-quiz-service/internal/logger"
	transport "traffic-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type stores struct {
	local    app.LocalResultCache
	remote   app.RemoteResultStore
	profiles app.ProfileStore
	misses   app.ErrorHistory
	bank     app.QuestionBank
	answers  app.ExplanationCache
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	st := buildStores(cfg, redisClient, pool)

	endpoint, err := buildEndpoint(ctx, cfg, log)
	if err != nil {
		return err
	}

	publisher, err := events.NewPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var notifier app.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := telegram.NewNotifier(cfg.Telegram.BotToken, log)
		if err != nil {
			log.Warn("telegram notifications disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	ledger := app.NewLedger(st.profiles, log)
	gate := app.NewQuotaGate(ledger)
	reveals := app.NewRevealer(config.TTLDuration(cfg.AI.RevealPace, 20*time.Millisecond))
	defer reveals.Stop()

	metered := app.NewMeteredCaller(gate, ledger, endpoint, st.answers, reveals, publisher, log).
		WithTimeout(config.TTLDuration(cfg.AI.RequestLimit, 45*time.Second))
	subs := app.NewSubscriptionService(st.profiles, ledger, gate, notifier, publisher, subscriptionPolicy(cfg), log)
	results := app.NewResultService(st.local, st.remote, st.misses, log)
	practice := app.NewPracticeService(st.bank, st.misses, app.NewSelector(), log)

	consumer, err := events.NewConsumer(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, subs, log)
	if err != nil {
		return err
	}
	defer consumer.Close()
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	if err := consumer.Start(runCtx); err != nil {
		return err
	}

	sched := scheduler.New(subs, config.TTLDuration(cfg.Scheduler.SweepEvery, time.Hour), log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured")
	}
	auth := transport.NewAuth(cfg.Telegram.BotToken, cfg.Auth.JWTSecret,
		config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour),
		config.TTLDuration(cfg.Auth.InitDataTTL, 24*time.Hour),
		cfg.IsAdmin)

	if cfg.Log.Mode == "prod" || cfg.Log.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(transport.RouterConfig{
		Handler: transport.NewHandler(transport.HandlerDeps{
			Auth:         auth,
			Results:      results,
			Gate:         gate,
			Subscription: subs,
			Metered:      metered,
			Practice:     practice,
			PracticeSize: cfg.Questions.PracticeSize,
			Log:          log,
		}),
		WSHandler:    transport.NewWSHandler(metered, log),
		Auth:         auth,
		AllowOrigins: cfg.Server.AllowOrigins,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting traffic quiz service", "port", finalPort, "ai_mode", cfg.AI.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStores(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool) stores {
	var st stores
	maxBytes := cfg.Results.MaxPayloadBytes

	if redisClient != nil {
		st.local = redisstore.NewResultCache(redisClient, config.TTLDuration(cfg.Results.CacheTTL, 720*time.Hour), maxBytes)
		st.answers = redisstore.NewExplanationCache(redisClient, config.TTLDuration(cfg.AI.CacheTTL, 24*time.Hour))
	} else {
		st.local = memory.NewResultCache(maxBytes)
		st.answers = memory.NewExplanationCache(config.TTLDuration(cfg.AI.CacheTTL, 24*time.Hour))
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		st.remote = pgstore.NewResultStore(pool)
		st.profiles = pgstore.NewProfileStore(pool, cfg.Quota.AdminIDs)
		st.misses = pgstore.NewErrorHistory(pool)
		loader = pgstore.NewQuestionLoader(pool)
	} else {
		st.remote = memory.NewResultStore()
		profiles := memory.NewProfileStore()
		for _, id := range cfg.Quota.AdminIDs {
			profiles.Seed(domain.Profile{UserID: id, IsAdmin: true, Tier: domain.TierFree})
		}
		st.profiles = profiles
		st.misses = memory.NewErrorHistory()
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	if redisClient != nil {
		st.bank = redisstore.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		st.bank = memory.NewQuestionBank(loader, questionTTL)
	}
	return st
}

func buildEndpoint(ctx context.Context, cfg config.Config, log *logger.Logger) (app.AIEndpoint, error) {
	timeout := config.TTLDuration(cfg.AI.RequestLimit, 45*time.Second)
	switch cfg.AI.Mode {
	case "edge":
		if cfg.AI.EdgeURL == "" {
			return nil, fmt.Errorf("ai edge mode requires ai.edge_url")
		}
		return edge.NewClient(cfg.AI.EdgeURL, cfg.AI.EdgeKey, timeout), nil
	case "", "direct":
		chain, err := ai.NewChainFromConfig(ctx, cfg.AI.Providers, log)
		if err != nil {
			return nil, err
		}
		return ai.NewService(chain, cfg.AI.MaxTokens), nil
	}
	return nil, fmt.Errorf("unknown ai mode %q", cfg.AI.Mode)
}

func subscriptionPolicy(cfg config.Config) app.SubscriptionPolicy {
	plans := make(map[domain.Tier]int, len(cfg.Quota.Plans))
	for name, total := range cfg.Quota.Plans {
		plans[domain.Tier(name)] = total
	}
	return app.SubscriptionPolicy{
		TrialTotal:  cfg.Quota.TrialTotal,
		TrialPeriod: config.TTLDuration(cfg.Quota.TrialPeriod, 72*time.Hour),
		Plans:       plans,
	}
}

// sampleQuestions seeds the in-memory bank when no database is configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "1-1", TopicID: "1", Text: "What does a red traffic light mean?", Options: []string{"Stop", "Proceed with caution", "Turn right only"}, CorrectIndex: 0},
		{ID: "1-2", TopicID: "1", Text: "Who has priority at an unregulated crossing of equal roads?", Options: []string{"The vehicle on the left", "The vehicle on the right", "The faster vehicle"}, CorrectIndex: 1},
		{ID: "1-3", TopicID: "1", Text: "What is the default speed limit in built-up areas?", Options: []string{"40 km/h", "60 km/h", "90 km/h"}, CorrectIndex: 1},
		{ID: "1-4", TopicID: "1", Text: "When must dipped headlights be on during the day?", Options: []string{"Never", "Always while moving", "Only on motorways"}, CorrectIndex: 1},
	}
}
