package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"service-queue/config"
	"service-queue/models"
	"service-queue/monitoring"
	"service-queue/notify"
	"service-queue/security"
	"service-queue/services"
	"service-queue/store/memory"
	"service-queue/store/redisstore"
	"service-queue/store/sqlstore"
	"service-queue/utils"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type store interface {
	services.LocationStore
	services.EntryStore
	CreateLocation(ctx context.Context, loc models.Location) error
}

// app holds the wired engine for one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	monitor *monitoring.Monitor

	redis    *redis.Client
	store    store
	tasks    *asynq.Client
	delivery *notify.PubNubSink

	queue   *services.QueueService
	reset   *services.ResetService
	display *services.DisplayService
	join    *services.JoinService

	closers []io.Closer
}

type appOptions struct {
	// asyncEvents routes events through the worker queue instead of
	// publishing them inline.
	asyncEvents bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger, monitor: monitoring.NewMonitor()}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.PubNubPublishKey != "" {
		publisher, err := notify.NewPubNubPublisher(&notify.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
			Origin:       cfg.PubNubOrigin,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.delivery = notify.NewPubNubSink(publisher)
	}

	var events services.EventSink
	if opts.asyncEvents {
		redisOpt, err := redisConnOpt(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.tasks = asynq.NewClient(redisOpt)
		a.closers = append(a.closers, a.tasks)
		events = notify.NewTaskSink(a.tasks)
	} else if a.delivery != nil {
		events = a.delivery
	}

	a.queue = services.NewQueueService(services.QueueDeps{
		Locations:      a.store,
		Entries:        a.store,
		Events:         events,
		Clock:          services.SystemClock,
		Monitor:        a.monitor,
		Logger:         logger,
		AverageWindow:  cfg.AverageWindowSize,
		PersistTimeout: cfg.PersistTimeout,
	})
	a.reset = services.NewResetService(a.queue, cfg.AverageResetAfter, a.monitor, logger)
	a.display = services.NewDisplayService(a.queue)

	if cfg.JoinTokenSecret != "" {
		joinCfg := services.JoinConfig{
			Secret:  []byte(cfg.JoinTokenSecret),
			BaseURL: cfg.JoinBaseURL,
			Logger:  logger,
		}
		if a.redis != nil {
			joinCfg.Limiter = security.NewRateLimiter(a.redis, "ratelimit:redeem", cfg.RedeemLimit, cfg.RedeemLimitWindow)
		}
		join, err := services.NewJoinService(a.queue, joinCfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.join = join
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch strings.ToLower(a.cfg.StoreDriver) {
	case "memory":
		a.store = memory.NewStore()
	case "sqlite":
		s, err := sqlstore.Open(ctx, a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s)
	case "redis", "":
		if err := a.connectRedis(ctx); err != nil {
			return err
		}
		a.store = redisstore.New(a.redis)
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}

	// the redeem limiter needs redis even when entries live elsewhere
	if a.redis == nil && a.cfg.StoreDriver != "memory" {
		if err := a.connectRedis(ctx); err != nil {
			a.logger.Warn("redis unavailable, join redemptions are not rate limited", "error", err)
		}
	}
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := utils.NewRedisClient(ctx, a.cfg.RedisURL, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return err
	}
	a.redis = client
	a.closers = append(a.closers, client)
	return nil
}

// Close drains pending average writes and releases connections.
func (a *app) Close() {
	if a.queue != nil {
		a.queue.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func redisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.Contains(cfg.RedisURL, "://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
