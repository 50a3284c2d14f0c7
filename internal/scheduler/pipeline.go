package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/registry"
)

type TargetResolver interface {
	Resolve(ctx context.Context, id domain.TargetID) (*domain.Target, error)
}

type OutcomeRecorder interface {
	Record(ctx context.Context, o domain.ProbeOutcome) (domain.TransitionEvent, error)
}

// Pipeline records each outcome and notifies on real flips. Storage and
// notification failures are logged and never reach the scheduler. Both run
// under their own deadline so a hung backend can't hold a worker.
type Pipeline struct {
	Logger        *zap.Logger
	Targets       TargetResolver
	Recorder      OutcomeRecorder
	Notifier      notify.Notifier
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

func NewPipeline(logger *zap.Logger, targets TargetResolver, rec OutcomeRecorder, n notify.Notifier, storeTimeout, notifyTimeout time.Duration) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 5 * time.Second
	}
	return &Pipeline{
		Logger:        logger,
		Targets:       targets,
		Recorder:      rec,
		Notifier:      n,
		StoreTimeout:  storeTimeout,
		NotifyTimeout: notifyTimeout,
	}
}

func (p *Pipeline) Handle(ctx context.Context, t domain.Target, o domain.ProbeOutcome) {
	ev, cur, ok := p.record(ctx, t, o)
	if !ok || !ev.IsFlip() || p.Notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(ctx, p.NotifyTimeout)
	defer cancel()
	if err := p.Notifier.Notify(nctx, ev, *cur); err != nil {
		p.Logger.Warn("notify_error",
			zap.String("target_id", string(t.ID)),
			zap.Bool("is_up", ev.CurrentIsUp),
			zap.Error(err),
		)
	}
}

// record resolves the target and stores the outcome within StoreTimeout.
func (p *Pipeline) record(ctx context.Context, t domain.Target, o domain.ProbeOutcome) (domain.TransitionEvent, *domain.Target, bool) {
	sctx, cancel := context.WithTimeout(ctx, p.StoreTimeout)
	defer cancel()

	// the target may have been removed while its probe was in flight
	cur, err := p.Targets.Resolve(sctx, t.ID)
	if errors.Is(err, registry.ErrNotFound) {
		p.Logger.Debug("outcome_discarded", zap.String("target_id", string(t.ID)), zap.String("reason", "target removed"))
		return domain.TransitionEvent{}, nil, false
	}
	if err != nil {
		p.Logger.Warn("record_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		return domain.TransitionEvent{}, nil, false
	}

	ev, err := p.Recorder.Record(sctx, o)
	if err != nil {
		p.Logger.Warn("record_error",
			zap.String("target_id", string(t.ID)),
			zap.String("url", cur.URL),
			zap.Error(err),
		)
		return domain.TransitionEvent{}, nil, false
	}
	return ev, cur, true
}
