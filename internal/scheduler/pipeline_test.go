package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/recorder"
	"github.com/hamed0406/pulsewatch/internal/registry"
	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
)

type countingNotifier struct {
	events []domain.TransitionEvent
	err    error
}

func (c *countingNotifier) Notify(ctx context.Context, ev domain.TransitionEvent, t domain.Target) error {
	c.events = append(c.events, ev)
	return c.err
}

func newPipeline(t *testing.T, n *countingNotifier) (*Pipeline, *registry.Registry, *memory.Store) {
	t.Helper()
	store := memory.New()
	reg := registry.New(store, store, zap.NewNop(), registry.Options{})
	return NewPipeline(zap.NewNop(), reg, recorder.New(store, zap.NewNop()), n, time.Second, time.Second), reg, store
}

func TestPipeline_NotifiesOncePerFlip(t *testing.T) {
	n := &countingNotifier{}
	p, reg, store := newPipeline(t, n)
	ctx := context.Background()

	tgt, err := reg.Add(ctx, "alice", "Example", "example.com")
	require.NoError(t, err)

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	for i, up := range []bool{true, false, false, true} {
		p.Handle(ctx, tgt, domain.ProbeOutcome{TargetID: tgt.ID, IsUp: up, CheckedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	require.Len(t, n.events, 2)
	assert.False(t, n.events[0].CurrentIsUp)
	assert.True(t, n.events[1].CurrentIsUp)

	rs, _ := store.Range(ctx, tgt.ID, base, base.Add(time.Hour))
	assert.Len(t, rs, 4)
}

func TestPipeline_DiscardsOutcomeOfRemovedTarget(t *testing.T) {
	n := &countingNotifier{}
	p, reg, store := newPipeline(t, n)
	ctx := context.Background()

	tgt, err := reg.Add(ctx, "alice", "Example", "example.com")
	require.NoError(t, err)
	require.NoError(t, reg.Remove(ctx, "alice", tgt.ID))

	p.Handle(ctx, tgt, domain.ProbeOutcome{TargetID: tgt.ID, IsUp: true, CheckedAt: time.Now()})

	rec, err := store.Latest(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Nil(t, rec, "no record may reference a removed target")
}

func TestPipeline_NotifierErrorDoesNotAffectRecording(t *testing.T) {
	n := &countingNotifier{err: errors.New("webhook down")}
	p, reg, store := newPipeline(t, n)
	ctx := context.Background()

	tgt, _ := reg.Add(ctx, "alice", "Example", "example.com")
	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	p.Handle(ctx, tgt, domain.ProbeOutcome{TargetID: tgt.ID, IsUp: true, CheckedAt: base})
	p.Handle(ctx, tgt, domain.ProbeOutcome{TargetID: tgt.ID, IsUp: false, CheckedAt: base.Add(time.Minute)})
	p.Handle(ctx, tgt, domain.ProbeOutcome{TargetID: tgt.ID, IsUp: true, CheckedAt: base.Add(2 * time.Minute)})

	assert.Len(t, n.events, 2, "failed delivery is dropped, not retried")
	rs, _ := store.Range(ctx, tgt.ID, base, base.Add(time.Hour))
	assert.Len(t, rs, 3)
}

type failingRecords struct{ repo.RecordStore }

func (failingRecords) Latest(context.Context, domain.TargetID) (*domain.StatusRecord, error) {
	return nil, errors.New("storage unavailable")
}

func TestPipeline_StorageErrorIsSwallowed(t *testing.T) {
	n := &countingNotifier{}
	store := memory.New()
	reg := registry.New(store, store, zap.NewNop(), registry.Options{})
	p := NewPipeline(zap.NewNop(), reg, recorder.New(failingRecords{store}, zap.NewNop()), n, time.Second, time.Second)
	ctx := context.Background()

	tgt, _ := reg.Add(ctx, "alice", "Example", "example.com")
	assert.NotPanics(t, func() {
		p.Handle(ctx, tgt, domain.ProbeOutcome{TargetID: tgt.ID, IsUp: false, CheckedAt: time.Now()})
	})
	assert.Empty(t, n.events)
}

type anyTarget struct{}

func (anyTarget) Resolve(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	return &domain.Target{ID: id, URL: "https://" + string(id) + ".example"}, nil
}

// hangingRecorder stands in for a storage backend that never answers.
type hangingRecorder struct {
	mu       sync.Mutex
	timedOut int
}

func (h *hangingRecorder) Record(ctx context.Context, o domain.ProbeOutcome) (domain.TransitionEvent, error) {
	<-ctx.Done()
	h.mu.Lock()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		h.timedOut++
	}
	h.mu.Unlock()
	return domain.TransitionEvent{}, ctx.Err()
}

func (h *hangingRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timedOut
}

func TestPipeline_HungStoreDoesNotStallScheduler(t *testing.T) {
	targets := &fakeTargets{}
	targets.set(target("a", time.Minute), target("b", time.Minute))
	prober := &fakeProber{isUp: true}
	rec := &hangingRecorder{}
	p := NewPipeline(zap.NewNop(), anyTarget{}, rec, nil, 30*time.Millisecond, time.Second)

	s := New(zap.NewNop(), targets, prober, p, Config{Tick: time.Hour, Timeout: time.Second, Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// one worker, two due targets: the second is probed only if the first
	// store call gives up
	waitFor(t, func() bool { return prober.callCount() == 2 })
	waitFor(t, func() bool { return rec.count() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	assert.Equal(t, 0, s.Stats().InFlight)
}
