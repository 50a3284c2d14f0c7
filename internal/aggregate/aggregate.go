// Package aggregate derives rollups from the status record log. Every
// function is pure and recomputed on each request.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// SSL badge thresholds.
const ExpiringSoonDays = 14

const (
	BadgeExpired      = "expired"
	BadgeExpiringSoon = "expiring_soon"
	BadgeOK           = "ok"
)

// Window is the closed interval [now-d, now].
type Window struct {
	From, To time.Time
}

func Last(now time.Time, d time.Duration) Window {
	return Window{From: now.Add(-d), To: now}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

func inWindow(records []domain.StatusRecord, w Window) []domain.StatusRecord {
	out := make([]domain.StatusRecord, 0, len(records))
	for _, r := range records {
		if w.Contains(r.CheckedAt) {
			out = append(out, r)
		}
	}
	return out
}

// UptimePercentage is 0 when the window holds no records. The result is
// rounded to one decimal.
func UptimePercentage(records []domain.StatusRecord, w Window) float64 {
	rs := inWindow(records, w)
	if len(rs) == 0 {
		return 0
	}
	up := 0
	for _, r := range rs {
		if r.IsUp {
			up++
		}
	}
	return round1(100 * float64(up) / float64(len(rs)))
}

// samples are the response times of up records only; an outage has no
// latency, not zero latency.
func samples(records []domain.StatusRecord, w Window) []int64 {
	var out []int64
	for _, r := range records {
		if r.IsUp && r.ResponseTimeMS != nil && w.Contains(r.CheckedAt) {
			out = append(out, *r.ResponseTimeMS)
		}
	}
	return out
}

// AverageResponseTime returns false when no up record is in the window.
func AverageResponseTime(records []domain.StatusRecord, w Window) (float64, bool) {
	s := samples(records, w)
	if len(s) == 0 {
		return 0, false
	}
	var sum int64
	for _, v := range s {
		sum += v
	}
	return round1(float64(sum) / float64(len(s))), true
}

func Slowest(records []domain.StatusRecord, w Window) (int64, bool) {
	s := samples(records, w)
	if len(s) == 0 {
		return 0, false
	}
	hi := s[0]
	for _, v := range s[1:] {
		if v > hi {
			hi = v
		}
	}
	return hi, true
}

func Fastest(records []domain.StatusRecord, w Window) (int64, bool) {
	s := samples(records, w)
	if len(s) == 0 {
		return 0, false
	}
	lo := s[0]
	for _, v := range s[1:] {
		if v < lo {
			lo = v
		}
	}
	return lo, true
}

// Percentile uses the nearest-rank method, p in (0, 100].
func Percentile(records []domain.StatusRecord, w Window, p float64) (int64, bool) {
	s := samples(records, w)
	if len(s) == 0 || p <= 0 || p > 100 {
		return 0, false
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	rank := int(math.Ceil(p * float64(len(s)) / 100))
	return s[rank-1], true
}

// Rollup bundles the per-target numbers served to the API. Nil pointers mean
// no data.
type Rollup struct {
	Window        Window
	Checks        int
	UptimePercent float64
	AvgResponseMS *float64
	FastestMS     *int64
	SlowestMS     *int64
	P95ResponseMS *int64
	LastCheckedAt *time.Time
	CurrentlyUp   *bool
}

func Summarize(records []domain.StatusRecord, w Window) Rollup {
	r := Rollup{
		Window:        w,
		Checks:        len(inWindow(records, w)),
		UptimePercent: UptimePercentage(records, w),
	}
	if v, ok := AverageResponseTime(records, w); ok {
		r.AvgResponseMS = &v
	}
	if v, ok := Fastest(records, w); ok {
		r.FastestMS = &v
	}
	if v, ok := Slowest(records, w); ok {
		r.SlowestMS = &v
	}
	if v, ok := Percentile(records, w, 95); ok {
		r.P95ResponseMS = &v
	}
	if last := Latest(records); last != nil && w.Contains(last.CheckedAt) {
		at := last.CheckedAt
		r.LastCheckedAt = &at
		r.CurrentlyUp = domain.BoolPtr(last.IsUp)
	}
	return r
}

// Latest returns the newest record or nil.
func Latest(records []domain.StatusRecord) *domain.StatusRecord {
	var out *domain.StatusRecord
	for i := range records {
		if out == nil || records[i].CheckedAt.After(out.CheckedAt) {
			out = &records[i]
		}
	}
	return out
}

// EarliestSSLExpiry picks the certificate that expires first. Entries without
// an expiry date are ignored.
func EarliestSSLExpiry(infos []domain.SSLInfo) (domain.SSLInfo, bool) {
	var best domain.SSLInfo
	found := false
	for _, info := range infos {
		if !info.HasExpiry() {
			continue
		}
		if !found || info.ValidTo.Before(best.ValidTo) {
			best, found = info, true
		}
	}
	return best, found
}

func SSLBadge(daysLeft int) string {
	switch {
	case daysLeft < 0:
		return BadgeExpired
	case daysLeft <= ExpiringSoonDays:
		return BadgeExpiringSoon
	default:
		return BadgeOK
	}
}

// Status is the tri-state of a target: up, down, or unknown when it was
// never checked.
type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

func StatusOf(latest *domain.StatusRecord) Status {
	switch {
	case latest == nil:
		return StatusUnknown
	case latest.IsUp:
		return StatusUp
	default:
		return StatusDown
	}
}

// Overall is "operational" only when every target is up.
func Overall(statuses []Status) string {
	for _, s := range statuses {
		if s != StatusUp {
			return "degraded"
		}
	}
	return "operational"
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
