package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

var (
	_ repo.TargetStore   = (*Store)(nil)
	_ repo.RecordStore   = (*Store)(nil)
	_ repo.SSLStore      = (*Store)(nil)
	_ repo.SettingsStore = (*Store)(nil)
)

// Store keeps everything in process memory. Used when DATABASE_URL is empty
// and in tests.
type Store struct {
	mu       sync.RWMutex
	targets  map[domain.TargetID]domain.Target
	records  map[domain.TargetID][]domain.StatusRecord
	ssl      map[domain.TargetID]domain.SSLInfo
	settings map[domain.OwnerID]domain.Settings
	nextID   int64
}

func New() *Store {
	return &Store{
		targets:  make(map[domain.TargetID]domain.Target),
		records:  make(map[domain.TargetID][]domain.StatusRecord),
		ssl:      make(map[domain.TargetID]domain.SSLInfo),
		settings: make(map[domain.OwnerID]domain.Settings),
	}
}

// ---- TargetStore ----

func (m *Store) Add(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = *t
	return nil
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &t, nil
}

func (m *Store) ListByOwner(ctx context.Context, owner domain.OwnerID) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0)
	for _, t := range m.targets {
		if t.OwnerID == owner {
			out = append(out, t)
		}
	}
	sortTargets(out)
	return out, nil
}

func (m *Store) ListAll(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	sortTargets(out)
	return out, nil
}

func (m *Store) Update(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.targets[t.ID]
	if !ok || cur.OwnerID != t.OwnerID {
		return repo.ErrNotFound
	}
	cur.Name = t.Name
	cur.URL = t.URL
	m.targets[t.ID] = cur
	return nil
}

func (m *Store) Delete(ctx context.Context, owner domain.OwnerID, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok || t.OwnerID != owner {
		return repo.ErrNotFound
	}
	delete(m.targets, id)
	delete(m.records, id)
	delete(m.ssl, id)
	return nil
}

func sortTargets(ts []domain.Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}

// ---- RecordStore ----

func (m *Store) Insert(ctx context.Context, r *domain.StatusRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID

	rs := m.records[r.TargetID]
	// keep the log ordered even if a caller inserts out of order
	i := sort.Search(len(rs), func(i int) bool { return rs[i].CheckedAt.After(r.CheckedAt) })
	rs = append(rs, domain.StatusRecord{})
	copy(rs[i+1:], rs[i:])
	rs[i] = *r
	m.records[r.TargetID] = rs
	return nil
}

func (m *Store) Latest(ctx context.Context, id domain.TargetID) (*domain.StatusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.records[id]
	if len(rs) == 0 {
		return nil, nil
	}
	r := rs[len(rs)-1]
	return &r, nil
}

func (m *Store) Range(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.StatusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.StatusRecord, 0)
	for _, r := range m.records[id] {
		if r.CheckedAt.Before(from) || r.CheckedAt.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rs := range m.records {
		i := sort.Search(len(rs), func(i int) bool { return !rs[i].CheckedAt.Before(cutoff) })
		n += int64(i)
		m.records[id] = append([]domain.StatusRecord(nil), rs[i:]...)
	}
	return n, nil
}

func (m *Store) DeleteOrphans(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rs := range m.records {
		if _, ok := m.targets[id]; !ok {
			n += int64(len(rs))
			delete(m.records, id)
		}
	}
	for id := range m.ssl {
		if _, ok := m.targets[id]; !ok {
			delete(m.ssl, id)
		}
	}
	return n, nil
}

// ---- SSLStore ----

func (m *Store) PutSSL(ctx context.Context, info domain.SSLInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ssl[info.TargetID] = info
	return nil
}

func (m *Store) GetSSL(ctx context.Context, id domain.TargetID) (*domain.SSLInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.ssl[id]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (m *Store) DeleteSSL(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ssl, id)
	return nil
}

// ---- SettingsStore ----

func (m *Store) GetSettings(ctx context.Context, owner domain.OwnerID) (*domain.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[owner]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Store) PutSettings(ctx context.Context, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	m.settings[s.OwnerID] = s
	return nil
}
