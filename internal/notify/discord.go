package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

// Discord posts {"content": ...} to a Discord-shaped webhook.
type Discord struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewDiscord(timeout time.Duration) *Discord {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Discord{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

func (d *Discord) Post(ctx context.Context, webhook, content string) error {
	if webhook == "" {
		return errors.New("discord: empty webhook")
	}
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	body, _ := json.Marshal(discordPayload{Content: content})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("discord: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// OwnerWebhook resolves the target owner's webhook from settings and posts
// the alert there. Owners without a webhook are skipped.
type OwnerWebhook struct {
	Settings repo.SettingsStore
	Sender   *Discord
	Log      *zap.Logger
}

func NewOwnerWebhook(settings repo.SettingsStore, sender *Discord, log *zap.Logger) *OwnerWebhook {
	if log == nil {
		log = zap.NewNop()
	}
	return &OwnerWebhook{Settings: settings, Sender: sender, Log: log}
}

func (o *OwnerWebhook) Notify(ctx context.Context, ev domain.TransitionEvent, t domain.Target) error {
	s, err := o.Settings.GetSettings(ctx, t.OwnerID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	hook, ok := s.Webhook()
	if !ok {
		o.Log.Debug("notify_skipped", zap.String("target_id", string(t.ID)), zap.String("reason", "no webhook"))
		return nil
	}
	if err := o.Sender.Post(ctx, hook, Message(ev, t)); err != nil {
		return err
	}
	o.Log.Info("notify_sent",
		zap.String("target_id", string(t.ID)),
		zap.Bool("is_up", ev.CurrentIsUp),
	)
	return nil
}
