package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// ErrNotFound is returned by lookups that require the row to exist.
var ErrNotFound = errors.New("repo: not found")

// Ports (interfaces). memory, postgres and redis implement them.
type TargetStore interface {
	Add(ctx context.Context, t *domain.Target) error
	Get(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	ListByOwner(ctx context.Context, owner domain.OwnerID) ([]domain.Target, error)
	ListAll(ctx context.Context) ([]domain.Target, error)
	Update(ctx context.Context, t *domain.Target) error
	// Delete removes the target and cascades to its status records.
	Delete(ctx context.Context, owner domain.OwnerID, id domain.TargetID) error
}

// RecordStore is the append-only status log.
type RecordStore interface {
	Insert(ctx context.Context, r *domain.StatusRecord) error
	// Latest returns nil, nil when the target has no records yet.
	Latest(ctx context.Context, id domain.TargetID) (*domain.StatusRecord, error)
	// Range returns records with from <= checked_at <= to, oldest first.
	Range(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.StatusRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOrphans(ctx context.Context) (int64, error)
}

// SSLStore keeps one SSLInfo per target, overwritten in place.
type SSLStore interface {
	PutSSL(ctx context.Context, info domain.SSLInfo) error
	// GetSSL returns nil, nil on a cache miss.
	GetSSL(ctx context.Context, id domain.TargetID) (*domain.SSLInfo, error)
	DeleteSSL(ctx context.Context, id domain.TargetID) error
}

type SettingsStore interface {
	// GetSettings returns nil, nil when the owner never saved settings.
	GetSettings(ctx context.Context, owner domain.OwnerID) (*domain.Settings, error)
	PutSettings(ctx context.Context, s domain.Settings) error
}
