package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

// TargetSource lists the whole fleet on every tick.
type TargetSource interface {
	ListAll(ctx context.Context) ([]domain.Target, error)
}

// OutcomeHandler receives every completed probe. It must not panic the
// scheduler; failures are its own to log.
type OutcomeHandler interface {
	Handle(ctx context.Context, t domain.Target, o domain.ProbeOutcome)
}

type Config struct {
	Tick            time.Duration
	Timeout         time.Duration
	Concurrency     int
	DefaultInterval time.Duration
}

type job struct {
	target domain.Target
	dueAt  time.Time // zero for never-checked targets
}

type Stats struct {
	Tracked  int `json:"tracked"`
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
}

// Scheduler runs a fixed-period tick that computes the due set and a fixed
// pool of workers that probe it. A target is IDLE, queued (DUE) or in
// flight; it is never queued or probed twice at once.
type Scheduler struct {
	Logger  *zap.Logger
	Targets TargetSource
	Prober  probe.Prober
	Handler OutcomeHandler
	cfg     Config
	now     func() time.Time

	mu          sync.Mutex
	pending     []job
	queued      map[domain.TargetID]struct{}
	inFlight    map[domain.TargetID]struct{}
	lastChecked map[domain.TargetID]time.Time

	wake chan struct{}
	wg   sync.WaitGroup
}

func New(logger *zap.Logger, targets TargetSource, prober probe.Prober, handler OutcomeHandler, cfg Config) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 15 * time.Second
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Minute
	}
	return &Scheduler{
		Logger:      logger,
		Targets:     targets,
		Prober:      prober,
		Handler:     handler,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		queued:      make(map[domain.TargetID]struct{}),
		inFlight:    make(map[domain.TargetID]struct{}),
		lastChecked: make(map[domain.TargetID]time.Time),
		wake:        make(chan struct{}, cfg.Concurrency),
	}
}

// Run starts the workers, does an immediate pass, then ticks until ctx is
// cancelled. In-flight probes are allowed to finish before Run returns;
// queued work is dropped.
func (s *Scheduler) Run(ctx context.Context) {
	stop := make(chan struct{})
	// probes outlive ctx so shutdown drains instead of tearing them down
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(workCtx, stop)
	}

	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()

	s.Logger.Info("scheduler_started",
		zap.Duration("tick", s.cfg.Tick),
		zap.Duration("timeout", s.cfg.Timeout),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	// immediate pass
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			close(stop)
			s.wg.Wait()
			s.mu.Lock()
			dropped := len(s.pending)
			s.pending = nil
			clear(s.queued)
			s.mu.Unlock()
			s.Logger.Info("scheduler_stopped", zap.Int("dropped", dropped))
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick computes the DUE set over the whole registry and queues it, most
// overdue first.
func (s *Scheduler) Tick(ctx context.Context) {
	ts, err := s.Targets.ListAll(ctx)
	if err != nil {
		s.Logger.Warn("scheduler_list_error", zap.Error(err))
		return
	}
	now := s.now()

	s.mu.Lock()
	alive := make(map[domain.TargetID]struct{}, len(ts))
	for _, t := range ts {
		alive[t.ID] = struct{}{}
	}
	s.prune(alive)

	added := 0
	for _, t := range ts {
		if _, busy := s.inFlight[t.ID]; busy {
			continue
		}
		if _, waiting := s.queued[t.ID]; waiting {
			continue
		}
		interval := t.CheckInterval
		if interval <= 0 {
			interval = s.cfg.DefaultInterval
		}
		var dueAt time.Time
		if last, seen := s.lastChecked[t.ID]; seen {
			if now.Sub(last) < interval {
				continue
			}
			dueAt = last.Add(interval)
		}
		s.pending = append(s.pending, job{target: t, dueAt: dueAt})
		s.queued[t.ID] = struct{}{}
		added++
	}
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].dueAt.Before(s.pending[j].dueAt)
	})
	queued, inFlight := len(s.pending), len(s.inFlight)
	s.mu.Unlock()

	s.Logger.Debug("scheduler_tick",
		zap.Int("targets", len(ts)),
		zap.Int("due", added),
		zap.Int("queued", queued),
		zap.Int("in_flight", inFlight),
	)

	for i := 0; i < queued && i < s.cfg.Concurrency; i++ {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// prune forgets targets that left the registry. Caller holds s.mu.
func (s *Scheduler) prune(alive map[domain.TargetID]struct{}) {
	for id := range s.lastChecked {
		if _, ok := alive[id]; !ok {
			delete(s.lastChecked, id)
		}
	}
	kept := s.pending[:0]
	for _, j := range s.pending {
		if _, ok := alive[j.target.ID]; ok {
			kept = append(kept, j)
		} else {
			delete(s.queued, j.target.ID)
		}
	}
	s.pending = kept
}

// next moves the most overdue job to IN_FLIGHT.
func (s *Scheduler) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return job{}, false
	}
	j := s.pending[0]
	s.pending = s.pending[1:]
	delete(s.queued, j.target.ID)
	s.inFlight[j.target.ID] = struct{}{}
	return j, true
}

func (s *Scheduler) done(id domain.TargetID, checkedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	s.lastChecked[id] = checkedAt
}

func (s *Scheduler) worker(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		j, ok := s.next()
		if !ok {
			select {
			case <-stop:
				return
			case <-s.wake:
			}
			continue
		}
		s.execute(ctx, j)
	}
}

func (s *Scheduler) execute(ctx context.Context, j job) {
	t := j.target
	checkedAt := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("scheduler_worker_panic", zap.String("target_id", string(t.ID)), zap.Any("panic", r))
		}
		s.done(t.ID, checkedAt)
	}()

	out, err := s.Prober.Probe(ctx, t.URL, s.cfg.Timeout)
	if err != nil {
		// not a network failure; still counts as checked so it can't spin
		s.Logger.Error("probe_invalid",
			zap.String("target_id", string(t.ID)),
			zap.String("url", t.URL),
			zap.Error(err),
		)
		return
	}
	out.TargetID = t.ID
	checkedAt = out.CheckedAt

	s.Logger.Debug("probe_done",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.Bool("up", out.IsUp),
		zap.String("error", string(out.Error)),
	)
	if s.Handler != nil {
		s.Handler.Handle(ctx, t, out)
	}
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Tracked: len(s.lastChecked), Queued: len(s.pending), InFlight: len(s.inFlight)}
}
