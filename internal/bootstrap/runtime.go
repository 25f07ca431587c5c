// Package bootstrap connects the stores and wires the moderation engine.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"chatwarden/internal/blob"
	"chatwarden/internal/cache"
	"chatwarden/internal/config"
	"chatwarden/internal/database"
	"chatwarden/internal/featureflags"
	"chatwarden/internal/matcher"
	"chatwarden/internal/middleware"
	"chatwarden/internal/models"
	"chatwarden/internal/notifications"
	"chatwarden/internal/repository"
	"chatwarden/internal/seed"
	"chatwarden/internal/service"
	"chatwarden/internal/telegram"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development database with fake chats and rules.
	SeedDemo bool
}

// Runtime is the wired engine shared by the HTTP server, the Telegram bot and
// the Kafka consumer.
type Runtime struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Flags  *featureflags.Manager

	Telegram   *telegram.Client
	Blobs      blob.Store
	Hub        *notifications.Hub
	Notifier   *notifications.Notifier
	Dispatcher *notifications.Dispatcher

	Gate     *service.AccessGate
	Rules    *service.RulesService
	Roster   *service.RosterService
	Policies *service.PolicyService
	Query    *service.QueryService
	Ledger   *service.Ledger
	Router   *service.Router
	Pipeline *service.Pipeline
}

// InitRuntime connects to the database, Redis, Telegram and the blob backend,
// then wires the engine. Redis is optional.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	rdb := cache.InitRedis(cfg.RedisURL)

	tg, err := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramPollTimeout, middleware.Logger)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}

	blobs, err := blob.New(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	if opts.SeedDemo && !cfg.IsProduction() {
		if err := seed.DemoIfEmpty(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return Build(cfg, db, rdb, tg, blobs)
}

// Build wires the engine over already-open connections. rdb may be nil.
func Build(cfg *config.Config, db *gorm.DB, rdb *redis.Client, tg *telegram.Client, blobs blob.Store) (*Runtime, error) {
	m, err := matcher.New(cfg.Matcher)
	if err != nil {
		return nil, err
	}

	chats := repository.NewChatRepository(db)
	users := repository.NewUserRepository(db)
	rules := repository.NewRuleRepository(db)
	roster := repository.NewRosterRepository(db)
	violations := repository.NewViolationRepository(db)
	decisions := repository.NewDecisionRepository(db)
	policies := repository.NewPolicyRepository(db)
	lastSeen := repository.NewLastSeenRepository(db)

	rt := &Runtime{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Flags:  featureflags.NewManager(cfg.FeatureFlags),

		Telegram: tg,
		Blobs:    blobs,
		Hub:      notifications.NewHub(),
		Notifier: notifications.NewNotifier(rdb),
	}

	rt.Dispatcher = notifications.NewDispatcher(rt.transport(), lastSeen, notifications.DispatcherConfig{
		Workers:     cfg.DispatchWorkers,
		QueueSize:   cfg.DispatchQueueSize,
		MaxAttempts: cfg.DispatchMaxAttempts,
		Backoff:     cfg.DispatchBackoff(),
	})

	defaults := models.PolicyDefaults{Unset: cfg.NotifyDefaultUnset, Conflict: cfg.NotifyDefaultConflict}
	enforcement := service.NewEnforcement(telegram.NewEnforcer(tg), chats, rt.Flags)

	rt.Gate = service.NewAccessGate(roster)
	rt.Rules = service.NewRulesService(rules, chats, cache.NewRuleCache(rdb, cfg.RuleCacheTTL()), m)
	rt.Roster = service.NewRosterService(chats, users, roster)
	rt.Policies = service.NewPolicyService(policies, defaults)
	rt.Ledger = service.NewLedger(violations, decisions, users, enforcement)
	rt.Query = service.NewQueryService(violations, decisions, chats, rt.Ledger)
	rt.Router = service.NewRouter(roster, policies, lastSeen, violations, rules, rt.Dispatcher, defaults)
	rt.Pipeline = service.NewPipeline(chats, users, rt.Rules, service.NewDetector(violations, m), rt.Router, enforcement)
	return rt, nil
}

// transport sends every notice as a Telegram DM and, when the live_feed flag is
// on for the notice's chat, to the moderator's open dashboards. With Redis the
// feed goes through pub/sub so any instance can hold the socket.
func (rt *Runtime) transport() notifications.Transport {
	var feed notifications.Transport = rt.Hub
	if rt.Redis != nil {
		feed = rt.Notifier
	}
	gated := notifications.TransportFunc(func(ctx context.Context, moderatorID int64, p notifications.Payload) error {
		if !rt.Flags.Enabled(featureflags.LiveFeed, p.ChatID) {
			return nil
		}
		return feed.Send(ctx, moderatorID, p)
	})
	return notifications.MultiTransport{telegram.NewTransport(rt.Telegram), gated}
}

// Start launches the dispatcher workers and the feed subscriber.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.Dispatcher.Start(ctx)
	if rt.Redis != nil {
		if err := rt.Hub.StartWiring(ctx, rt.Notifier); err != nil {
			return fmt.Errorf("start feed wiring: %w", err)
		}
	}
	return nil
}

// Close drains queued deliveries, waits for enforcement calls and closes
// the feed, the database and Redis.
func (rt *Runtime) Close(ctx context.Context) {
	rt.Dispatcher.Close()
	rt.Ledger.Wait()
	_ = rt.Hub.Shutdown(ctx)

	if sqlDB, err := rt.DB.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}
	if rt.Redis != nil {
		if rerr := rt.Redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}
}
