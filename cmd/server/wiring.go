package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/admission"
	"github.com/warp/tuition-engine/api"
	"github.com/warp/tuition-engine/config"
	"github.com/warp/tuition-engine/intent"
	"github.com/warp/tuition-engine/intent/gemini"
	"github.com/warp/tuition-engine/logger"
	"github.com/warp/tuition-engine/metrics"
	"github.com/warp/tuition-engine/store/sqlite"
	"github.com/warp/tuition-engine/tuition"
)

// app owns every long-lived component. Close releases them in reverse
// construction order.
type app struct {
	Logger  *zap.Logger
	Handler *api.Handler

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

func newClassifier(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *intent.Cache {
	opts := []intent.CacheOption{
		intent.WithTTL(cfg.Intent.TTL),
		intent.WithSweepThreshold(cfg.Intent.SweepThreshold),
		intent.WithTimeout(cfg.Intent.Timeout),
		intent.WithLogger(log.Named("intent")),
		intent.WithMetrics(m),
	}

	client := gemini.NewClient(gemini.Config{
		APIKey:        cfg.Gemini.APIKey,
		Model:         cfg.Gemini.Model,
		BaseURL:       cfg.Gemini.BaseURL,
		RatePerSecond: cfg.Gemini.RatePerSecond,
		Burst:         cfg.Gemini.Burst,
	}, &http.Client{Timeout: cfg.Intent.Timeout})
	if client == nil {
		log.Info("no gemini api key, classification uses rules only")
		return intent.NewCache(nil, opts...)
	}
	return intent.NewCache(client, opts...)
}

func newHistory(ctx context.Context, cfg *config.Config, log *zap.Logger) (admission.HistoryStore, func() error, error) {
	if cfg.Redis.Addr == "" {
		return admission.NewMemoryHistory(), func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("admission history in redis", zap.String("addr", cfg.Redis.Addr))
	return admission.NewRedisHistory(rdb), rdb.Close, nil
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{Logger: log}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	m := metrics.New()
	allocator := tuition.NewAllocator(store,
		tuition.WithAllocatorLogger(log.Named("allocator")),
		tuition.WithAllocatorMetrics(m))
	svc := tuition.NewService(store, allocator, log.Named("tuition"))

	if cfg.Database.Seed {
		if _, err := svc.Seed(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	history, closeHistory, err := newHistory(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeHistory)

	loc, err := cfg.Admission.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	limiter := admission.NewDailyQuota(history,
		admission.WithQuota(cfg.Admission.DailyQuota),
		admission.WithLocation(loc),
		admission.WithLogger(log.Named("admission")),
		admission.WithMetrics(m))

	h := api.NewHandler(svc, newClassifier(cfg, log, m), limiter)
	h.Logger = log.Named("api")
	h.Metrics = m
	h.Health = store.Ping
	a.Handler = h
	return a, nil
}
