package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: p, log: log}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres schema ready")
	return nil
}

// ---- TargetStore ----

const targetCols = `id, owner_id, name, url, created_at, check_interval_sec`

func scanTarget(row pgx.Row) (domain.Target, error) {
	var t domain.Target
	var secs int
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.URL, &t.CreatedAt, &secs); err != nil {
		return t, err
	}
	t.CheckInterval = time.Duration(secs) * time.Second
	return t, nil
}

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (`+targetCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.OwnerID, t.Name, t.URL, t.CreatedAt, int(t.CheckInterval/time.Second))
	return err
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx, `SELECT `+targetCols+` FROM targets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListByOwner(ctx context.Context, owner domain.OwnerID) ([]domain.Target, error) {
	return s.listTargets(ctx, `SELECT `+targetCols+` FROM targets WHERE owner_id = $1 ORDER BY created_at, id`, owner)
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Target, error) {
	return s.listTargets(ctx, `SELECT `+targetCols+` FROM targets ORDER BY created_at, id`)
}

func (s *Store) listTargets(ctx context.Context, q string, args ...any) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Target, 0)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, t *domain.Target) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET name = $3, url = $4 WHERE id = $1 AND owner_id = $2`,
		t.ID, t.OwnerID, t.Name, t.URL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for status_records and ssl_info.
func (s *Store) Delete(ctx context.Context, owner domain.OwnerID, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- RecordStore ----

const recordCols = `id, target_id, is_up, status_code, response_time_ms, checked_at`

func (s *Store) Insert(ctx context.Context, r *domain.StatusRecord) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO status_records (target_id, is_up, status_code, response_time_ms, checked_at)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING id`,
		r.TargetID, r.IsUp, r.StatusCode, r.ResponseTimeMS, r.CheckedAt).Scan(&r.ID)
}

func (s *Store) Latest(ctx context.Context, id domain.TargetID) (*domain.StatusRecord, error) {
	var r domain.StatusRecord
	err := s.pool.QueryRow(ctx,
		`SELECT `+recordCols+`
		   FROM status_records
		  WHERE target_id = $1
		  ORDER BY checked_at DESC
		  LIMIT 1`, id).
		Scan(&r.ID, &r.TargetID, &r.IsUp, &r.StatusCode, &r.ResponseTimeMS, &r.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // no records yet
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) Range(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.StatusRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordCols+`
		   FROM status_records
		  WHERE target_id = $1 AND checked_at >= $2 AND checked_at <= $3
		  ORDER BY checked_at`, id, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.StatusRecord, 0)
	for rows.Next() {
		var r domain.StatusRecord
		if err := rows.Scan(&r.ID, &r.TargetID, &r.IsUp, &r.StatusCode, &r.ResponseTimeMS, &r.CheckedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM status_records WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphans is a no-op in practice because of the foreign keys, but rows
// written before the constraint existed are still swept.
func (s *Store) DeleteOrphans(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM status_records r
		  WHERE NOT EXISTS (SELECT 1 FROM targets t WHERE t.id = r.target_id)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ---- SSLStore ----

func (s *Store) PutSSL(ctx context.Context, info domain.SSLInfo) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ssl_info (target_id, host, issuer, valid_from, valid_to, error, checked_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (target_id) DO UPDATE
		   SET host = EXCLUDED.host, issuer = EXCLUDED.issuer,
		       valid_from = EXCLUDED.valid_from, valid_to = EXCLUDED.valid_to,
		       error = EXCLUDED.error, checked_at = EXCLUDED.checked_at`,
		info.TargetID, info.Host, info.Issuer, nullTime(info.ValidFrom), nullTime(info.ValidTo), info.Error, info.CheckedAt)
	return err
}

func (s *Store) GetSSL(ctx context.Context, id domain.TargetID) (*domain.SSLInfo, error) {
	var info domain.SSLInfo
	var from, to *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT target_id, host, issuer, valid_from, valid_to, error, checked_at
		   FROM ssl_info WHERE target_id = $1`, id).
		Scan(&info.TargetID, &info.Host, &info.Issuer, &from, &to, &info.Error, &info.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if from != nil {
		info.ValidFrom = from.UTC()
	}
	if to != nil {
		info.ValidTo = to.UTC()
	}
	return &info, nil
}

func (s *Store) DeleteSSL(ctx context.Context, id domain.TargetID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ssl_info WHERE target_id = $1`, id)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ---- SettingsStore ----

func (s *Store) GetSettings(ctx context.Context, owner domain.OwnerID) (*domain.Settings, error) {
	var st domain.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, discord_webhook_url, updated_at FROM settings WHERE owner_id = $1`, owner).
		Scan(&st.OwnerID, &st.DiscordWebhookURL, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) PutSettings(ctx context.Context, st domain.Settings) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (owner_id, discord_webhook_url, updated_at)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (owner_id) DO UPDATE
		   SET discord_webhook_url = EXCLUDED.discord_webhook_url, updated_at = EXCLUDED.updated_at`,
		st.OwnerID, st.DiscordWebhookURL, st.UpdatedAt)
	return err
}

var (
	_ repo.TargetStore   = (*Store)(nil)
	_ repo.RecordStore   = (*Store)(nil)
	_ repo.SSLStore      = (*Store)(nil)
	_ repo.SettingsStore = (*Store)(nil)
)
