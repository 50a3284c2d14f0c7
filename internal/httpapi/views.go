package httpapi

import (
	"time"

	"github.com/hamed0406/pulsewatch/internal/aggregate"
	"github.com/hamed0406/pulsewatch/internal/domain"
)

// JSON shapes served to clients. Timestamps are epoch seconds.

type targetView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	URL              string `json:"url"`
	CreatedAt        int64  `json:"created_at"`
	CheckIntervalSec int    `json:"check_interval_sec"`
}

func newTargetView(t domain.Target) targetView {
	return targetView{
		ID:               string(t.ID),
		Name:             t.Name,
		URL:              t.URL,
		CreatedAt:        t.CreatedAt.Unix(),
		CheckIntervalSec: int(t.CheckInterval / time.Second),
	}
}

type recordView struct {
	IsUp           bool   `json:"is_up"`
	StatusCode     *int   `json:"status_code"`
	ResponseTimeMS *int64 `json:"response_time_ms"`
	CheckedAt      int64  `json:"checked_at"`
}

func newRecordView(r domain.StatusRecord) recordView {
	return recordView{
		IsUp:           r.IsUp,
		StatusCode:     r.StatusCode,
		ResponseTimeMS: r.ResponseTimeMS,
		CheckedAt:      r.CheckedAt.Unix(),
	}
}

func newRecordViews(rs []domain.StatusRecord) []recordView {
	out := make([]recordView, 0, len(rs))
	for _, r := range rs {
		out = append(out, newRecordView(r))
	}
	return out
}

// targetStatusView is a target with its latest known state. Latest is null
// and Status "unknown" for a target that was never checked.
type targetStatusView struct {
	targetView
	Status aggregate.Status `json:"status"`
	Latest *recordView      `json:"latest"`
}

func newTargetStatusView(t domain.Target, latest *domain.StatusRecord) targetStatusView {
	v := targetStatusView{targetView: newTargetView(t), Status: aggregate.StatusOf(latest)}
	if latest != nil {
		rv := newRecordView(*latest)
		v.Latest = &rv
	}
	return v
}

type rollupView struct {
	TargetID      string   `json:"target_id"`
	From          int64    `json:"from"`
	To            int64    `json:"to"`
	Checks        int      `json:"checks"`
	UptimePercent float64  `json:"uptime_percent"`
	AvgResponseMS *float64 `json:"avg_response_time_ms"`
	FastestMS     *int64   `json:"fastest_ms"`
	SlowestMS     *int64   `json:"slowest_ms"`
	P95ResponseMS *int64   `json:"p95_response_time_ms"`
	CurrentlyUp   *bool    `json:"currently_up"`
	LastCheckedAt *int64   `json:"last_checked_at"`
}

func newRollupView(id domain.TargetID, r aggregate.Rollup) rollupView {
	v := rollupView{
		TargetID:      string(id),
		From:          r.Window.From.Unix(),
		To:            r.Window.To.Unix(),
		Checks:        r.Checks,
		UptimePercent: r.UptimePercent,
		AvgResponseMS: r.AvgResponseMS,
		FastestMS:     r.FastestMS,
		SlowestMS:     r.SlowestMS,
		P95ResponseMS: r.P95ResponseMS,
		CurrentlyUp:   r.CurrentlyUp,
	}
	if r.LastCheckedAt != nil {
		ts := r.LastCheckedAt.Unix()
		v.LastCheckedAt = &ts
	}
	return v
}

type sslView struct {
	TargetID  string `json:"target_id"`
	Host      string `json:"host"`
	Issuer    string `json:"issuer,omitempty"`
	ValidFrom *int64 `json:"valid_from"`
	ValidTo   *int64 `json:"valid_to"`
	DaysLeft  *int   `json:"days_left"`
	Badge     string `json:"badge,omitempty"`
	Error     string `json:"error,omitempty"`
	CheckedAt int64  `json:"checked_at"`
}

// newSSLView derives days_left from valid_to at render time.
func newSSLView(info domain.SSLInfo, now time.Time) sslView {
	v := sslView{
		TargetID:  string(info.TargetID),
		Host:      info.Host,
		Issuer:    info.Issuer,
		Error:     info.Error,
		CheckedAt: info.CheckedAt.Unix(),
	}
	if !info.ValidFrom.IsZero() {
		from := info.ValidFrom.Unix()
		v.ValidFrom = &from
	}
	if info.HasExpiry() {
		to := info.ValidTo.Unix()
		days := info.DaysLeft(now)
		v.ValidTo = &to
		v.DaysLeft = &days
		v.Badge = aggregate.SSLBadge(days)
	}
	return v
}

type publicTargetView struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	URL       string           `json:"url"`
	Status    aggregate.Status `json:"status"`
	Latest    *recordView      `json:"latest"`
	Uptime24h float64          `json:"uptime_24h"`
	Uptime7d  float64          `json:"uptime_7d"`
}
