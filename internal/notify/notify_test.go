package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, domain.TransitionEvent, domain.Target) error {
	r.calls++
	return r.err
}

func TestMulti_FailureDoesNotSuppressOthers(t *testing.T) {
	first := &recordingNotifier{err: errors.New("webhook down")}
	second := &recordingNotifier{}
	third := &recordingNotifier{err: errors.New("nats down")}

	err := Multi{first, nil, second, third}.Notify(context.Background(), downEvent, target)
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("want 2 combined errors, got %d (%v)", got, err)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Fatalf("every notifier should be called once: %d %d %d", first.calls, second.calls, third.calls)
	}
}

func TestMessage(t *testing.T) {
	up := downEvent
	up.PreviousIsUp = domain.BoolPtr(false)
	up.CurrentIsUp = true
	if got := Message(up, target); !strings.Contains(got, "back ONLINE") {
		t.Fatalf("unexpected up message %q", got)
	}
	if got := Message(downEvent, target); !strings.Contains(got, "2025-08-18 12:00:00 UTC") {
		t.Fatalf("message should carry the transition time: %q", got)
	}
}

func TestMessage_ResponseTime(t *testing.T) {
	ms := int64(231)
	up := downEvent
	up.CurrentIsUp = true
	up.ResponseTimeMS = &ms
	if got := Message(up, target); !strings.Contains(got, "Response time: 231ms") {
		t.Fatalf("up message should carry the response time: %q", got)
	}
	if got := Message(downEvent, target); !strings.Contains(got, "Response time: no response") {
		t.Fatalf("down message without a reply should say so: %q", got)
	}
}
