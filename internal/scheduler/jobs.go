package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

type CertInspector interface {
	Inspect(ctx context.Context, target string) domain.SSLInfo
}

// SSLRefresher re-inspects certificates on a slow cadence and overwrites the
// cached SSLInfo in place.
type SSLRefresher struct {
	Logger      *zap.Logger
	Targets     TargetSource
	Store       repo.SSLStore
	Inspector   CertInspector
	Concurrency int
}

func (r *SSLRefresher) RefreshAll(ctx context.Context) error {
	ts, err := r.Targets.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit < 1 {
		limit = 4
	}
	g.SetLimit(limit)

	n := 0
	for _, t := range ts {
		if !isHTTPS(t.URL) {
			continue
		}
		t := t
		n++
		g.Go(func() error {
			// one bad certificate must not cancel the others
			if err := r.RefreshOne(gctx, t); err != nil {
				r.Logger.Warn("ssl_store_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()
	r.Logger.Info("ssl_refresh_done", zap.Int("targets", n))
	return err
}

// RefreshOne inspects a single https target. Plain http targets are skipped.
func (r *SSLRefresher) RefreshOne(ctx context.Context, t domain.Target) error {
	if !isHTTPS(t.URL) {
		return nil
	}
	info := r.Inspector.Inspect(ctx, t.URL)
	info.TargetID = t.ID
	if info.Error != "" {
		r.Logger.Debug("ssl_inspect_failed", zap.String("target_id", string(t.ID)), zap.String("error", info.Error))
	}
	return r.Store.PutSSL(ctx, info)
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}

// Retention deletes records older than Days and rows orphaned by removed
// targets.
type Retention struct {
	Logger  *zap.Logger
	Records repo.RecordStore
	Days    int
	Now     func() time.Time
}

func (r *Retention) Run(ctx context.Context) error {
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	cutoff := now.AddDate(0, 0, -r.Days)
	old, err := r.Records.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old records: %w", err)
	}
	orphans, err := r.Records.DeleteOrphans(ctx)
	if err != nil {
		return fmt.Errorf("delete orphaned records: %w", err)
	}
	r.Logger.Info("retention_done",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", old),
		zap.Int64("orphans", orphans),
	)
	return nil
}

// cronLogger routes robfig/cron's logging through zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

type JobsConfig struct {
	SSLSchedule       string
	RetentionSchedule string
	JobTimeout        time.Duration
}

// NewCron registers the slow-cadence jobs. The caller starts and stops the
// returned cron.
func NewCron(ctx context.Context, logger *zap.Logger, ssl *SSLRefresher, ret *Retention, cfg JobsConfig) (*cron.Cron, error) {
	cl := cronLogger{s: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	run := func(name string, fn func(context.Context) error) func() {
		return func() {
			jctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := fn(jctx); err != nil {
				logger.Warn("job_error", zap.String("job", name), zap.Error(err))
			}
		}
	}
	if ssl != nil && cfg.SSLSchedule != "" {
		if _, err := c.AddFunc(cfg.SSLSchedule, run("ssl_refresh", ssl.RefreshAll)); err != nil {
			return nil, fmt.Errorf("schedule ssl refresh %q: %w", cfg.SSLSchedule, err)
		}
	}
	if ret != nil && cfg.RetentionSchedule != "" {
		if _, err := c.AddFunc(cfg.RetentionSchedule, run("retention", ret.Run)); err != nil {
			return nil, fmt.Errorf("schedule retention %q: %w", cfg.RetentionSchedule, err)
		}
	}
	return c, nil
}
