package domain

import (
	"math"
	"time"
)

type TargetID string

type OwnerID string

// Target is a monitored endpoint. Only Name and URL change after creation.
type Target struct {
	ID            TargetID      `json:"id"`
	OwnerID       OwnerID       `json:"owner_id"`
	Name          string        `json:"name"`
	URL           string        `json:"url"`
	CreatedAt     time.Time     `json:"created_at"`
	CheckInterval time.Duration `json:"check_interval"`
}

// ErrorKind categorizes a network-layer probe failure.
type ErrorKind string

const (
	ErrNone       ErrorKind = ""
	ErrTimeout    ErrorKind = "timeout"
	ErrDNS        ErrorKind = "dns"
	ErrConnection ErrorKind = "connection"
	ErrTLS        ErrorKind = "tls"
	ErrOther      ErrorKind = "other"
)

// ProbeOutcome is the ephemeral result of one probe. StatusCode and
// ResponseTimeMS are nil when the server never answered.
type ProbeOutcome struct {
	TargetID       TargetID
	IsUp           bool
	StatusCode     *int
	ResponseTimeMS *int64
	Error          ErrorKind
	CheckedAt      time.Time
}

// StatusRecord is a persisted outcome. Records are append-only.
type StatusRecord struct {
	ID             int64     `json:"id"`
	TargetID       TargetID  `json:"target_id"`
	IsUp           bool      `json:"is_up"`
	StatusCode     *int      `json:"status_code"`
	ResponseTimeMS *int64    `json:"response_time_ms"`
	CheckedAt      time.Time `json:"checked_at"`
}

// RecordFromOutcome copies the persisted subset of an outcome.
func RecordFromOutcome(o ProbeOutcome) StatusRecord {
	return StatusRecord{
		TargetID:       o.TargetID,
		IsUp:           o.IsUp,
		StatusCode:     o.StatusCode,
		ResponseTimeMS: o.ResponseTimeMS,
		CheckedAt:      o.CheckedAt,
	}
}

// TransitionEvent compares the newest record to the one before it.
// PreviousIsUp is nil for the first record of a target.
// ResponseTimeMS is nil when the new outcome got no answer.
type TransitionEvent struct {
	TargetID       TargetID
	PreviousIsUp   *bool
	CurrentIsUp    bool
	ResponseTimeMS *int64
	At             time.Time
}

// IsFlip reports whether the event is a real up/down change.
func (e TransitionEvent) IsFlip() bool {
	return e.PreviousIsUp != nil && *e.PreviousIsUp != e.CurrentIsUp
}

// SSLInfo is the cached leaf certificate summary for a target.
type SSLInfo struct {
	TargetID  TargetID  `json:"target_id"`
	Host      string    `json:"host"`
	Issuer    string    `json:"issuer"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// DaysLeft is always derived from ValidTo.
func (s SSLInfo) DaysLeft(now time.Time) int {
	return int(math.Floor(s.ValidTo.Sub(now).Seconds() / 86400))
}

// HasExpiry is false when inspection never read a certificate.
func (s SSLInfo) HasExpiry() bool { return !s.ValidTo.IsZero() }

// Settings holds per-owner notification preferences.
type Settings struct {
	OwnerID           OwnerID   `json:"owner_id"`
	DiscordWebhookURL *string   `json:"discord_webhook_url"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Webhook returns the configured webhook URL, if any.
func (s *Settings) Webhook() (string, bool) {
	if s == nil || s.DiscordWebhookURL == nil || *s.DiscordWebhookURL == "" {
		return "", false
	}
	return *s.DiscordWebhookURL, true
}

func IntPtr(v int) *int       { return &v }
func Int64Ptr(v int64) *int64 { return &v }
func BoolPtr(v bool) *bool    { return &v }
