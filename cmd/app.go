package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/l0p7/purgectl/internal/config"
	"github.com/l0p7/purgectl/internal/events"
	"github.com/l0p7/purgectl/internal/invalidation"
	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/invalidation/policy"
	"github.com/l0p7/purgectl/internal/invalidation/schedule"
	"github.com/l0p7/purgectl/internal/invalidation/state"
	"github.com/l0p7/purgectl/internal/metrics"
	"github.com/l0p7/purgectl/internal/notify"
	"github.com/l0p7/purgectl/internal/server"
	"github.com/l0p7/purgectl/internal/templates"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// app holds the assembled engine and the goroutines cmd supervises.
type app struct {
	logger     *slog.Logger
	live       *config.Live
	policy     *policy.Policy
	builder    *invalidation.Builder
	dispatcher *invalidation.Dispatcher
	timer      *schedule.Timer
	store      state.Store
	server     *server.Server
	subscriber *events.Subscriber
	redis      []*redis.Client
}

// newApp assembles the engine. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, registry *prometheus.Registry) (_ *app, err error) {
	recorder := metrics.NewRecorder(registry)
	live := config.NewLive(cfg)
	a := &app{logger: logger, live: live}

	a.store = buildStateStore(logger.With(slog.String("agent", "state_factory")), cfg.State)
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	client, err := buildCDNClient(ctx, logger.With(slog.String("agent", "cdn_factory")), cfg.CDN)
	if err != nil {
		return nil, err
	}

	a.policy, err = policy.New(live, logger)
	if err != nil {
		return nil, err
	}
	a.builder, err = invalidation.NewBuilder(templates.NewRenderer(), cfg.CDN.RelatedPaths, logger)
	if err != nil {
		return nil, err
	}

	notifiers := notify.Fanout{notify.NewLog(logger)}
	if ps := cfg.Notify.Redis; ps.Enabled {
		publisher, err := notify.NewPublisher(a.pubSubClient(ps), ps.Channel, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, publisher)
	}

	a.timer = schedule.NewTimer(logger)
	gate := invalidation.NewGate(a.store, a.policy, invalidation.GateOptions{
		Namespace: cfg.State.Namespace,
		MaxPaths:  cfg.CDN.MaxPaths,
		Logger:    logger,
	})
	a.dispatcher, err = invalidation.NewDispatcher(invalidation.Options{
		Config:   live,
		Builder:  a.builder,
		Gate:     gate,
		Retry:    invalidation.NewRetry(a.timer, a.policy, logger, recorder),
		Client:   client,
		Notifier: notifiers,
		Policy:   a.policy,
		Logger:   logger,
		Metrics:  recorder,
	})
	if err != nil {
		return nil, err
	}

	if ps := cfg.Events.Redis; ps.Enabled {
		a.subscriber, err = events.NewSubscriber(a.pubSubClient(ps), ps.Channel, a.dispatcher, logger)
		if err != nil {
			return nil, err
		}
	}

	handler := server.NewAdminHandler(a.dispatcher, server.HandlerOptions{
		AdminToken: cfg.Server.Admin.Token,
		Metrics:    recorder.Handler(),
		Logger:     logger,
	})
	a.server, err = server.New(cfg, logger, handler)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) pubSubClient(cfg config.PubSubConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.redis = append(a.redis, client)
	return client
}

// run starts the retry timer, re-arms persisted retries and serves until ctx ends.
func (a *app) run(ctx context.Context) error {
	a.timer.Start(ctx, a.dispatcher.HandleRetry)
	if err := a.dispatcher.Recover(ctx); err != nil {
		a.logger.Warn("pending retry recovery failed", slog.Any("error", err))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.server.Run(groupCtx) })
	if a.subscriber != nil {
		group.Go(func() error { return a.subscriber.Run(groupCtx) })
	}
	return group.Wait()
}

// reload applies a new configuration snapshot from the watcher.
func (a *app) reload(next config.Config) {
	if err := a.policy.Reload(next); err != nil {
		a.logger.Error("policy reload rejected", slog.Any("error", err))
		return
	}
	if err := a.builder.SetRelatedPaths(next.CDN.RelatedPaths); err != nil {
		a.logger.Error("related paths reload rejected", slog.Any("error", err))
		return
	}
	a.live.Swap(next)
	a.logger.Info("configuration reloaded", slog.String("distribution", next.CDN.DistributionID))
}

func (a *app) close(ctx context.Context) {
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Error("state store shutdown failed", slog.Any("error", err))
		}
	}
	for _, client := range a.redis {
		_ = client.Close()
	}
}

func buildStateStore(logger *slog.Logger, cfg config.StateConfig) state.Store {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory debounce state", slog.Duration("ttl", ttl))
		return state.NewMemory(ttl)
	case "redis":
		store, err := state.NewRedis(state.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: state.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		}, ttl)
		if err != nil {
			logger.Error("redis state initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory debounce state")
			return state.NewMemory(ttl)
		}
		logger.Info("using redis debounce state", slog.String("address", cfg.Redis.Address))
		return store
	default:
		logger.Warn("unsupported state backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return state.NewMemory(ttl)
	}
}

func buildCDNClient(ctx context.Context, logger *slog.Logger, cfg config.CDNConfig) (cdn.Client, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", "memory":
		logger.Info("using dry-run cdn client")
		return cdn.NewMemory(), nil
	case "cloudfront":
		client, err := cdn.NewCloudFront(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		logger.Info("using cloudfront cdn client", slog.String("distribution", cfg.DistributionID))
		return client, nil
	default:
		return nil, fmt.Errorf("cdn: unsupported provider %q", cfg.Provider)
	}
}
