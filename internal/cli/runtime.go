package cli

import (
	"context"
	"fmt"
	"time"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/auth"
	"quiz-attempt/internal/config"
	"quiz-attempt/internal/domain"
	"quiz-attempt/internal/infra/memory"
	"quiz-attempt/internal/infra/postgres"
	redisstore "quiz-attempt/internal/infra/redis"
	"quiz-attempt/internal/logging"
	"quiz-attempt/internal/metrics"
	transport "quiz-attempt/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// journal is a SubmissionJournal that can also list what it recorded.
type journal interface {
	app.SubmissionJournal
	List(ctx context.Context, limit int) ([]domain.SubmissionRecord, error)
}

// runtime holds the wired dependencies shared by the commands.
type runtime struct {
	cfg         config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	api         *transport.Client
	checkpoints app.CheckpointStore
	journal     journal
	closers     []func()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
}

func buildRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		rt.checkpoints = redisstore.NewCheckpointStore(client, config.Duration(cfg.Checkpoint.TTL, 2*time.Hour))
	} else {
		logger.Warn("redis not configured, checkpoints live only as long as this process")
		rt.checkpoints = memory.NewCheckpointStore()
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			rt.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.journal = postgres.NewJournal(pool)
	} else {
		rt.journal = memory.NewJournal()
	}

	timeout := config.Duration(cfg.API.Timeout, 10*time.Second)
	rt.api = transport.NewClient(cfg.API.BaseURL, timeout, tokenSource(cfg, timeout))
	return rt, nil
}

// tokenSource returns nil when no credentials are configured so requests go out
// without an Authorization header.
func tokenSource(cfg config.Config, timeout time.Duration) auth.TokenSource {
	api := cfg.API
	if api.RefreshURL != "" && api.RefreshToken != "" {
		return auth.NewRefreshingSource(api.Token, transport.NewRefresher(api.RefreshURL, api.RefreshToken, timeout), 30*time.Second)
	}
	if api.Token == "" {
		return nil
	}
	return auth.StaticToken(api.Token)
}

func (rt *runtime) newController() *app.Controller {
	pipeline := app.NewPipeline(rt.api,
		app.WithMaxAttempts(rt.cfg.Submission.MaxAttempts),
		app.WithExponentialBackOff(
			config.Duration(rt.cfg.Submission.InitialBackoff, 500*time.Millisecond),
			config.Duration(rt.cfg.Submission.MaxBackoff, 5*time.Second),
		),
		app.WithPipelineLogger(rt.logger),
		app.WithPipelineMetrics(metrics.NewSubmissions(rt.registry)),
	)
	return app.NewController(rt.api, pipeline,
		app.WithJournal(rt.journal),
		app.WithLogger(rt.logger),
	)
}

func (rt *runtime) checkpointer() *app.Checkpointer {
	return app.NewCheckpointer(rt.checkpoints, config.Duration(rt.cfg.Checkpoint.Interval, time.Second), rt.logger)
}

// Close releases connections in reverse order of creation.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.logger.Sync()
}
