package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/httpapi"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/logging"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/recorder"
	"github.com/hamed0406/pulsewatch/internal/registry"
	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
	pg "github.com/hamed0406/pulsewatch/internal/repo/postgres"
	rds "github.com/hamed0406/pulsewatch/internal/repo/redis"
	"github.com/hamed0406/pulsewatch/internal/scheduler"
)

const shutdownGrace = 5 * time.Second

type stores struct {
	targets  repo.TargetStore
	records  repo.RecordStore
	ssl      repo.SSLStore
	settings repo.SettingsStore
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores picks Postgres when DATABASE_URL is set and memory otherwise.
// SSL info moves to Redis when REDIS_ADDR is set.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	out := &stores{}
	if cfg.DatabaseURL != "" {
		db, err := pg.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			out.close()
			return nil, err
		}
		out.targets, out.records, out.ssl, out.settings = db, db, db, db
		logger.Info("store_postgres")
	} else {
		mem := memory.New()
		out.targets, out.records, out.ssl, out.settings = mem, mem, mem, mem
		logger.Warn("store_memory", zap.String("hint", "set DATABASE_URL to keep data across restarts"))
	}

	if cfg.RedisAddr != "" {
		cache, err := rds.NewSSLCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SSLCacheTTL, logger)
		if err != nil {
			out.close()
			return nil, err
		}
		out.closers = append(out.closers, func() { _ = cache.Close() })
		out.ssl = cache
		logger.Info("ssl_cache_redis", zap.String("addr", cfg.RedisAddr))
	}
	return out, nil
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config_invalid", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Fatal("monitor_failed", zap.Error(err))
	}
	logger.Info("stopped")
}

// run owns every resource it opens, so its defers release them on both the
// error and the shutdown paths.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.close()

	reg := registry.New(st.targets, st.ssl, logger, registry.Options{
		MaxTargetsPerOwner:   cfg.MaxTargetsPerOwner,
		DefaultCheckInterval: cfg.DefaultCheckInterval,
		MinCheckInterval:     cfg.MinCheckInterval,
	})

	sinks := notify.Multi{notify.NewOwnerWebhook(st.settings, notify.NewDiscord(cfg.NotifyTimeout), logger)}
	if cfg.NATSURL != "" {
		pub, err := notify.NewPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	pipeline := scheduler.NewPipeline(logger, reg, recorder.New(st.records, logger), sinks, cfg.StoreTimeout, cfg.NotifyTimeout)
	sched := scheduler.New(logger, reg, probe.NewHTTPProber(), pipeline, scheduler.Config{
		Tick:            cfg.TickInterval,
		Timeout:         cfg.ProbeTimeout,
		Concurrency:     cfg.MaxConcurrentChecks,
		DefaultInterval: cfg.DefaultCheckInterval,
	})

	refresher := &scheduler.SSLRefresher{
		Logger:      logger,
		Targets:     reg,
		Store:       st.ssl,
		Inspector:   probe.NewCertInspector(cfg.SSLTimeout),
		Concurrency: cfg.MaxConcurrentChecks,
	}
	// new targets get their certificate read right away
	reg.OnAdd(func(t domain.Target) {
		go func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*cfg.SSLTimeout)
			defer cancel()
			if err := refresher.RefreshOne(rctx, t); err != nil {
				logger.Warn("ssl_store_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			}
		}()
	})

	jobs, err := scheduler.NewCron(ctx, logger, refresher, &scheduler.Retention{
		Logger:  logger,
		Records: st.records,
		Days:    cfg.RetentionDays,
	}, scheduler.JobsConfig{
		SSLSchedule:       cfg.SSLRefreshSchedule,
		RetentionSchedule: cfg.RetentionSchedule,
	})
	if err != nil {
		return err
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	api := httpapi.NewServer(logger, reg, st.records, st.ssl, st.settings, refresher)
	api.Scheduler = sched
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(
			apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			cfg.AllowedOrigins,
			cfg.PublicRPM, cfg.PublicBurst,
			cfg.AdminRPM, cfg.AdminBurst,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
