package notify

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// Notifier delivers one real up/down flip. Implementations are best-effort:
// they report failures but never retry.
type Notifier interface {
	Notify(ctx context.Context, ev domain.TransitionEvent, t domain.Target) error
}

// Multi fans an event out to every notifier. A failing sink does not stop
// the others; all failures are combined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev domain.TransitionEvent, t domain.Target) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Notify(ctx, ev, t))
	}
	return err
}

// Message renders the human readable alert text.
func Message(ev domain.TransitionEvent, t domain.Target) string {
	head := fmt.Sprintf("❌ %s is OFFLINE", t.Name)
	if ev.CurrentIsUp {
		head = fmt.Sprintf("✅ %s is back ONLINE", t.Name)
	}
	rt := "Response time: no response"
	if ev.ResponseTimeMS != nil {
		rt = fmt.Sprintf("Response time: %dms", *ev.ResponseTimeMS)
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", head, t.URL, rt, ev.At.UTC().Format("2006-01-02 15:04:05 UTC"))
}
