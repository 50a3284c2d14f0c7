// Package recorder persists probe outcomes and derives up/down transitions
// from the record log.
package recorder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

// ErrStaleOutcome rejects an outcome that is not newer than the target's
// latest record, which would break the log's strict ordering.
var ErrStaleOutcome = errors.New("recorder: outcome not newer than latest record")

type Recorder struct {
	records repo.RecordStore
	log     *zap.Logger
	locks   *keyLock
}

func New(records repo.RecordStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{records: records, log: log, locks: newKeyLock()}
}

// Record appends the outcome and compares it with the previous record.
// Calls for the same target are serialized; different targets never wait on
// each other.
func (r *Recorder) Record(ctx context.Context, o domain.ProbeOutcome) (domain.TransitionEvent, error) {
	if o.TargetID == "" {
		return domain.TransitionEvent{}, errors.New("recorder: outcome without target id")
	}
	r.locks.Lock(o.TargetID)
	defer r.locks.Unlock(o.TargetID)

	prev, err := r.records.Latest(ctx, o.TargetID)
	if err != nil {
		return domain.TransitionEvent{}, fmt.Errorf("read latest record: %w", err)
	}
	if prev != nil && !o.CheckedAt.After(prev.CheckedAt) {
		return domain.TransitionEvent{}, fmt.Errorf("%w: %s <= %s", ErrStaleOutcome,
			o.CheckedAt.Format("2006-01-02T15:04:05.000Z07:00"), prev.CheckedAt.Format("2006-01-02T15:04:05.000Z07:00"))
	}

	rec := domain.RecordFromOutcome(o)
	if err := r.records.Insert(ctx, &rec); err != nil {
		return domain.TransitionEvent{}, fmt.Errorf("insert record: %w", err)
	}

	ev := domain.TransitionEvent{
		TargetID:       o.TargetID,
		CurrentIsUp:    o.IsUp,
		ResponseTimeMS: o.ResponseTimeMS,
		At:             o.CheckedAt,
	}
	if prev != nil {
		ev.PreviousIsUp = domain.BoolPtr(prev.IsUp)
	}
	if ev.IsFlip() {
		r.log.Info("state_change",
			zap.String("target_id", string(o.TargetID)),
			zap.Bool("from_up", prev.IsUp),
			zap.Bool("to_up", o.IsUp),
		)
	}
	return ev, nil
}
