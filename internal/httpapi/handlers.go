package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/aggregate"
	"github.com/hamed0406/pulsewatch/internal/domain"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/registry"
)

const (
	defaultWindow = 24 * time.Hour
	maxWindow     = 30 * 24 * time.Hour
	publicHistory = 48 * time.Hour
	maxBodyBytes  = 1 << 16
)

// ---- targets ----

type targetPayload struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return false
	}
	return true
}

// writeRegistryError maps registry failures onto status codes.
func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	var ve domain.ValidationErrors
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: ve})
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "target not found")
	case errors.Is(err, registry.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrLimitReached):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.Logger.Error("registry_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Targets.List(r.Context(), apimw.OwnerFrom(r.Context()))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	out := make([]targetStatusView, 0, len(ts))
	for _, t := range ts {
		latest, err := s.Records.Latest(r.Context(), t.ID)
		if err != nil {
			s.Logger.Warn("latest_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		}
		out = append(out, newTargetStatusView(t, latest))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var p targetPayload
	if !decode(w, r, &p) {
		return
	}
	var name, rawURL string
	if p.Name != nil {
		name = *p.Name
	}
	if p.URL != nil {
		rawURL = *p.URL
	}
	t, err := s.Targets.Add(r.Context(), apimw.OwnerFrom(r.Context()), name, rawURL)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTargetView(t))
}

// target loads {id} for the request's owner, writing the error response
// when it can't.
func (s *Server) target(w http.ResponseWriter, r *http.Request) (*domain.Target, bool) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	t, err := s.Targets.Get(r.Context(), apimw.OwnerFrom(r.Context()), id)
	if err != nil {
		s.writeRegistryError(w, err)
		return nil, false
	}
	return t, true
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, ok := s.target(w, r)
	if !ok {
		return
	}
	latest, err := s.Records.Latest(r.Context(), t.ID)
	if err != nil {
		s.Logger.Error("latest_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, newTargetStatusView(*t, latest))
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	cur, ok := s.target(w, r)
	if !ok {
		return
	}
	var p targetPayload
	if !decode(w, r, &p) {
		return
	}
	name, rawURL := cur.Name, cur.URL
	if p.Name != nil {
		name = *p.Name
	}
	if p.URL != nil {
		rawURL = *p.URL
	}
	t, err := s.Targets.Update(r.Context(), cur.OwnerID, cur.ID, name, rawURL)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTargetView(t))
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	if err := s.Targets.Remove(r.Context(), apimw.OwnerFrom(r.Context()), id); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- history and rollups ----

// parseWindow accepts Go durations ("90m", "24h") and whole days ("7d").
func parseWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultWindow, nil
	}
	var d time.Duration
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(raw); err != nil {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
	}
	if d <= 0 || d > maxWindow {
		return 0, fmt.Errorf("window must be between 1s and %s", maxWindow)
	}
	return d, nil
}

func (s *Server) window(w http.ResponseWriter, r *http.Request) (aggregate.Window, bool) {
	d, err := parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return aggregate.Window{}, false
	}
	return aggregate.Last(s.now(), d), true
}

func (s *Server) handleTargetStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.target(w, r)
	if !ok {
		return
	}
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	rs, err := s.Records.Range(r.Context(), t.ID, win.From, win.To)
	if err != nil {
		s.Logger.Error("range_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"target_id": t.ID,
		"from":      win.From.Unix(),
		"to":        win.To.Unix(),
		"records":   newRecordViews(rs),
	})
}

func (s *Server) handleTargetRollup(w http.ResponseWriter, r *http.Request) {
	t, ok := s.target(w, r)
	if !ok {
		return
	}
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	rs, err := s.Records.Range(r.Context(), t.ID, win.From, win.To)
	if err != nil {
		s.Logger.Error("range_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, newRollupView(t.ID, aggregate.Summarize(rs, win)))
}

// handleSummary gives owner-wide counts over the last 24h.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ts, err := s.Targets.List(ctx, apimw.OwnerFrom(ctx))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	win := aggregate.Last(s.now(), defaultWindow)

	counts := map[aggregate.Status]int{aggregate.StatusUp: 0, aggregate.StatusDown: 0, aggregate.StatusUnknown: 0}
	var all []domain.StatusRecord
	var uptimeSum float64
	withData := 0
	for _, t := range ts {
		rs, err := s.Records.Range(ctx, t.ID, win.From, win.To)
		if err != nil {
			s.Logger.Error("range_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		latest, err := s.Records.Latest(ctx, t.ID)
		if err != nil {
			s.Logger.Error("latest_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		counts[aggregate.StatusOf(latest)]++
		if len(rs) > 0 {
			uptimeSum += aggregate.UptimePercentage(rs, win)
			withData++
		}
		all = append(all, rs...)
	}

	out := map[string]any{
		"total":                len(ts),
		"up":                   counts[aggregate.StatusUp],
		"down":                 counts[aggregate.StatusDown],
		"unknown":              counts[aggregate.StatusUnknown],
		"avg_uptime_24h":       nil,
		"avg_response_time_ms": nil,
	}
	if withData > 0 {
		out["avg_uptime_24h"] = math.Round(uptimeSum/float64(withData)*10) / 10
	}
	if avg, ok := aggregate.AverageResponseTime(all, win); ok {
		out["avg_response_time_ms"] = avg
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- ssl ----

func (s *Server) handleTargetSSL(w http.ResponseWriter, r *http.Request) {
	t, ok := s.target(w, r)
	if !ok {
		return
	}
	if u, err := url.Parse(t.URL); err != nil || u.Scheme != "https" {
		writeError(w, http.StatusUnprocessableEntity, "target is not https")
		return
	}
	info, err := s.SSL.GetSSL(r.Context(), t.ID)
	if err != nil {
		s.Logger.Warn("ssl_cache_error", zap.String("target_id", string(t.ID)), zap.Error(err))
	}
	if info == nil && s.Refresher != nil {
		// cache miss: inspect now
		if err := s.Refresher.RefreshOne(r.Context(), *t); err != nil {
			s.Logger.Warn("ssl_store_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		}
		info, _ = s.SSL.GetSSL(r.Context(), t.ID)
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "no certificate data yet")
		return
	}
	writeJSON(w, http.StatusOK, newSSLView(*info, s.now()))
}

func (s *Server) handleSSLSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ts, err := s.Targets.List(ctx, apimw.OwnerFrom(ctx))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	var infos []domain.SSLInfo
	for _, t := range ts {
		info, err := s.SSL.GetSSL(ctx, t.ID)
		if err != nil {
			s.Logger.Warn("ssl_cache_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			continue
		}
		if info != nil {
			infos = append(infos, *info)
		}
	}
	out := map[string]any{"inspected": len(infos), "earliest": nil}
	if first, ok := aggregate.EarliestSSLExpiry(infos); ok {
		out["earliest"] = newSSLView(first, s.now())
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- settings ----

type settingsView struct {
	DiscordWebhookURL *string `json:"discord_webhook_url"`
	UpdatedAt         *int64  `json:"updated_at"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.Settings.GetSettings(r.Context(), apimw.OwnerFrom(r.Context()))
	if err != nil {
		s.Logger.Error("settings_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var v settingsView
	if st != nil {
		v.DiscordWebhookURL = st.DiscordWebhookURL
		ts := st.UpdatedAt.Unix()
		v.UpdatedAt = &ts
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p struct {
		DiscordWebhookURL *string `json:"discord_webhook_url"`
	}
	if !decode(w, r, &p) {
		return
	}
	hook := p.DiscordWebhookURL
	if hook != nil {
		trimmed := strings.TrimSpace(*hook)
		if trimmed == "" {
			hook = nil
		} else {
			var ve domain.ValidationErrors
			u, err := url.Parse(trimmed)
			if err != nil || u.Scheme != "https" || u.Host == "" {
				ve.Add("discord_webhook_url", "webhook url must be an https:// address")
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: ve})
				return
			}
			hook = &trimmed
		}
	}
	st := domain.Settings{
		OwnerID:           apimw.OwnerFrom(r.Context()),
		DiscordWebhookURL: hook,
		UpdatedAt:         s.now(),
	}
	if err := s.Settings.PutSettings(r.Context(), st); err != nil {
		s.Logger.Error("settings_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ts := st.UpdatedAt.Unix()
	writeJSON(w, http.StatusOK, settingsView{DiscordWebhookURL: st.DiscordWebhookURL, UpdatedAt: &ts})
}

// ---- public status page ----

func (s *Server) handlePublicStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ts, err := s.Targets.ListAll(ctx)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	now := s.now()
	week := aggregate.Last(now, 7*24*time.Hour)
	day := aggregate.Last(now, 24*time.Hour)

	out := make([]publicTargetView, 0, len(ts))
	statuses := make([]aggregate.Status, 0, len(ts))
	for _, t := range ts {
		rs, err := s.Records.Range(ctx, t.ID, week.From, week.To)
		if err != nil {
			s.Logger.Error("range_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		latest, err := s.Records.Latest(ctx, t.ID)
		if err != nil {
			s.Logger.Error("latest_error", zap.String("target_id", string(t.ID)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		st := newTargetStatusView(t, latest)
		statuses = append(statuses, st.Status)
		out = append(out, publicTargetView{
			ID:        st.ID,
			Name:      st.Name,
			URL:       st.URL,
			Status:    st.Status,
			Latest:    st.Latest,
			Uptime24h: aggregate.UptimePercentage(rs, day),
			Uptime7d:  aggregate.UptimePercentage(rs, week),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overall":    aggregate.Overall(statuses),
		"targets":    out,
		"updated_at": now.Unix(),
	})
}

func (s *Server) handlePublicHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.Targets.Resolve(ctx, domain.TargetID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	win := aggregate.Last(s.now(), publicHistory)
	rs, err := s.Records.Range(ctx, t.ID, win.From, win.To)
	if err != nil {
		s.Logger.Error("range_error", zap.String("target_id", string(t.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"url":        t.URL,
		"uptime_48h": aggregate.UptimePercentage(rs, win),
		"records":    newRecordViews(rs),
	})
}
