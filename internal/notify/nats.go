package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// TransitionMessage is the JSON published for every flip.
type TransitionMessage struct {
	TargetID       string `json:"target_id"`
	OwnerID        string `json:"owner_id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	PreviousIsUp   *bool  `json:"previous_is_up"`
	CurrentIsUp    bool   `json:"current_is_up"`
	ResponseTimeMS *int64 `json:"response_time_ms"`
	At             int64  `json:"at"`
}

// Publisher puts transitions on a NATS subject for other services.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

func NewPublisher(natsURL, subject string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(natsURL,
		nats.Name("pulsewatch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	log.Info("connected to nats", zap.String("url", natsURL), zap.String("subject", subject))
	return &Publisher{conn: conn, subject: subject, log: log}, nil
}

func (p *Publisher) Notify(ctx context.Context, ev domain.TransitionEvent, t domain.Target) error {
	data, err := json.Marshal(TransitionMessage{
		TargetID:     string(t.ID),
		OwnerID:      string(t.OwnerID),
		Name:         t.Name,
		URL:          t.URL,
		PreviousIsUp:   ev.PreviousIsUp,
		CurrentIsUp:    ev.CurrentIsUp,
		ResponseTimeMS: ev.ResponseTimeMS,
		At:             ev.At.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	p.log.Debug("transition_published", zap.String("target_id", string(t.ID)), zap.String("subject", p.subject))
	return nil
}

// Close flushes buffered messages before disconnecting.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.log.Info("disconnected from nats")
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
