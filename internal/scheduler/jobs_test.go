package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
)

type fakeInspector struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeInspector) Inspect(ctx context.Context, target string) domain.SSLInfo {
	f.mu.Lock()
	f.seen = append(f.seen, target)
	f.mu.Unlock()
	return domain.SSLInfo{Host: target, ValidTo: time.Now().Add(48 * time.Hour), CheckedAt: time.Now()}
}

func TestSSLRefresher_OnlyHTTPSTargets(t *testing.T) {
	store := memory.New()
	targets := &fakeTargets{}
	targets.set(
		domain.Target{ID: "secure", URL: "https://secure.example"},
		domain.Target{ID: "plain", URL: "http://plain.example"},
	)
	insp := &fakeInspector{}
	r := &SSLRefresher{Logger: zap.NewNop(), Targets: targets, Store: store, Inspector: insp, Concurrency: 2}
	ctx := context.Background()

	require.NoError(t, r.RefreshAll(ctx))
	assert.Equal(t, []string{"https://secure.example"}, insp.seen)

	info, err := store.GetSSL(ctx, "secure")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, domain.TargetID("secure"), info.TargetID)

	info, _ = store.GetSSL(ctx, "plain")
	assert.Nil(t, info)
}

func TestRetention_DeletesOldAndOrphanedRecords(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

	tgt := &domain.Target{OwnerID: "alice", URL: "https://a.example"}
	require.NoError(t, store.Add(ctx, tgt))
	require.NoError(t, store.Insert(ctx, &domain.StatusRecord{TargetID: tgt.ID, CheckedAt: now.AddDate(0, 0, -31)}))
	require.NoError(t, store.Insert(ctx, &domain.StatusRecord{TargetID: tgt.ID, CheckedAt: now.AddDate(0, 0, -1)}))
	require.NoError(t, store.Insert(ctx, &domain.StatusRecord{TargetID: "ghost", CheckedAt: now}))

	r := &Retention{Logger: zap.NewNop(), Records: store, Days: 30, Now: func() time.Time { return now }}
	require.NoError(t, r.Run(ctx))

	rs, _ := store.Range(ctx, tgt.ID, now.AddDate(-1, 0, 0), now)
	assert.Len(t, rs, 1)
	ghost, _ := store.Latest(ctx, "ghost")
	assert.Nil(t, ghost)
}

func TestNewCron_RejectsBadSchedule(t *testing.T) {
	ret := &Retention{Logger: zap.NewNop(), Records: memory.New(), Days: 30}
	_, err := NewCron(context.Background(), zap.NewNop(), nil, ret, JobsConfig{RetentionSchedule: "every tuesday"})
	assert.Error(t, err)

	c, err := NewCron(context.Background(), zap.NewNop(), nil, ret, JobsConfig{RetentionSchedule: "@weekly"})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}
