// Package registry owns the set of monitored targets. Every other component
// refers to targets by id only.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const maxNameLen = 100

var (
	ErrNotFound     = errors.New("registry: target not found")
	ErrDuplicate    = errors.New("registry: url already monitored")
	ErrLimitReached = errors.New("registry: target limit reached")
)

type Options struct {
	MaxTargetsPerOwner   int
	DefaultCheckInterval time.Duration
	MinCheckInterval     time.Duration
}

type Registry struct {
	targets repo.TargetStore
	ssl     repo.SSLStore
	log     *zap.Logger
	opts    Options
	now     func() time.Time

	// serializes the limit and duplicate checks with the write
	mu    sync.Mutex
	onAdd []func(domain.Target)
}

func New(targets repo.TargetStore, ssl repo.SSLStore, log *zap.Logger, opts Options) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MinCheckInterval <= 0 {
		opts.MinCheckInterval = time.Minute
	}
	if opts.DefaultCheckInterval < opts.MinCheckInterval {
		opts.DefaultCheckInterval = opts.MinCheckInterval
	}
	return &Registry{
		targets: targets,
		ssl:     ssl,
		log:     log,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnAdd registers a callback run after a target is stored.
func (r *Registry) OnAdd(fn func(domain.Target)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAdd = append(r.onAdd, fn)
}

func (r *Registry) List(ctx context.Context, owner domain.OwnerID) ([]domain.Target, error) {
	return r.targets.ListByOwner(ctx, owner)
}

// ListAll is the scheduler's view of the fleet.
func (r *Registry) ListAll(ctx context.Context) ([]domain.Target, error) {
	return r.targets.ListAll(ctx)
}

// Get returns the owner's target. Targets of other owners are reported as
// not found.
func (r *Registry) Get(ctx context.Context, owner domain.OwnerID, id domain.TargetID) (*domain.Target, error) {
	t, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != owner {
		return nil, ErrNotFound
	}
	return t, nil
}

// Resolve looks a target up by id regardless of owner.
func (r *Registry) Resolve(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	t, err := r.targets.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Registry) Add(ctx context.Context, owner domain.OwnerID, name, rawURL string) (domain.Target, error) {
	name, normalized, err := validate(name, rawURL)
	if err != nil {
		return domain.Target{}, err
	}

	r.mu.Lock()
	existing, err := r.targets.ListByOwner(ctx, owner)
	if err != nil {
		r.mu.Unlock()
		return domain.Target{}, fmt.Errorf("list targets: %w", err)
	}
	if r.opts.MaxTargetsPerOwner > 0 && len(existing) >= r.opts.MaxTargetsPerOwner {
		r.mu.Unlock()
		return domain.Target{}, fmt.Errorf("%w: %d targets per owner", ErrLimitReached, r.opts.MaxTargetsPerOwner)
	}
	if dup := findURL(existing, normalized, ""); dup != nil {
		r.mu.Unlock()
		return domain.Target{}, fmt.Errorf("%w: %s", ErrDuplicate, dup.Name)
	}

	t := domain.Target{
		ID:            domain.TargetID(uuid.NewString()),
		OwnerID:       owner,
		Name:          name,
		URL:           normalized,
		CreatedAt:     r.now(),
		CheckInterval: r.opts.DefaultCheckInterval,
	}
	if err := r.targets.Add(ctx, &t); err != nil {
		r.mu.Unlock()
		return domain.Target{}, fmt.Errorf("add target: %w", err)
	}
	hooks := append([]func(domain.Target){}, r.onAdd...)
	r.mu.Unlock()

	r.log.Info("target_added",
		zap.String("target_id", string(t.ID)),
		zap.String("owner_id", string(owner)),
		zap.String("url", t.URL),
	)
	for _, fn := range hooks {
		fn(t)
	}
	return t, nil
}

// Update edits name and url. The id, owner and cadence never change.
func (r *Registry) Update(ctx context.Context, owner domain.OwnerID, id domain.TargetID, name, rawURL string) (domain.Target, error) {
	name, normalized, err := validate(name, rawURL)
	if err != nil {
		return domain.Target{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.Get(ctx, owner, id)
	if err != nil {
		return domain.Target{}, err
	}
	existing, err := r.targets.ListByOwner(ctx, owner)
	if err != nil {
		return domain.Target{}, fmt.Errorf("list targets: %w", err)
	}
	if dup := findURL(existing, normalized, id); dup != nil {
		return domain.Target{}, fmt.Errorf("%w: %s", ErrDuplicate, dup.Name)
	}

	cur.Name = name
	cur.URL = normalized
	if err := r.targets.Update(ctx, cur); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Target{}, ErrNotFound
		}
		return domain.Target{}, fmt.Errorf("update target: %w", err)
	}
	return *cur, nil
}

// Remove deletes the target with its records. SSL info is deleted explicitly
// because it may live in a separate cache.
func (r *Registry) Remove(ctx context.Context, owner domain.OwnerID, id domain.TargetID) error {
	if err := r.targets.Delete(ctx, owner, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete target: %w", err)
	}
	if r.ssl != nil {
		if err := r.ssl.DeleteSSL(ctx, id); err != nil {
			// the retention job sweeps what is left behind
			r.log.Warn("ssl_delete_error", zap.String("target_id", string(id)), zap.Error(err))
		}
	}
	r.log.Info("target_removed", zap.String("target_id", string(id)), zap.String("owner_id", string(owner)))
	return nil
}

func validate(name, rawURL string) (string, string, error) {
	var ve domain.ValidationErrors
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		ve.Add("name", "name is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		ve.Add("name", fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}

	normalized := normalizeHTTPURL(rawURL)
	switch {
	case normalized == "":
		ve.Add("url", "url is required")
	case !isValidHTTPURL(normalized):
		ve.Add("url", "url must be an http:// or https:// address with a host")
	}
	return name, normalized, ve.OrNil()
}

func findURL(ts []domain.Target, normalized string, skip domain.TargetID) *domain.Target {
	for i := range ts {
		if ts[i].ID != skip && normalizeHTTPURL(ts[i].URL) == normalized {
			return &ts[i]
		}
	}
	return nil
}
