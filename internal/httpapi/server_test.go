package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
	"github.com/hamed0406/pulsewatch/internal/scheduler"
)

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{" 48h ", 48 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"31d", 0, true},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"xd", 0, true},
		{"week", 0, true},
	}
	for _, c := range cases {
		got, err := parseWindow(c.in)
		if (err != nil) != c.wantErr {
			t.Fatalf("parseWindow(%q) err=%v wantErr=%v", c.in, err, c.wantErr)
		}
		if !c.wantErr && got != c.want {
			t.Fatalf("parseWindow(%q)=%s want %s", c.in, got, c.want)
		}
	}
}

type fixedStats scheduler.Stats

func (f fixedStats) Stats() scheduler.Stats { return scheduler.Stats(f) }

func TestHealthz_NoAuthAndSchedulerStats(t *testing.T) {
	store := memory.New()
	srv := NewServer(zap.NewNop(), nil, store, store, store, nil)
	srv.Scheduler = fixedStats{Tracked: 3, Queued: 1, InFlight: 2}
	h := srv.Router(apimw.Keys{Public: []string{"pub_test"}}, nil, 60, 10, 60, 10)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("want json body, got %q", ct)
	}

	var body struct {
		Status    string          `json:"status"`
		Scheduler scheduler.Stats `json:"scheduler"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Scheduler.Tracked != 3 || body.Scheduler.InFlight != 2 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	store := memory.New()
	srv := NewServer(zap.NewNop(), nil, store, store, store, nil)
	h := srv.Router(apimw.Keys{}, []string{"https://status.example"}, 60, 10, 60, 10)

	req := httptest.NewRequest(http.MethodOptions, "/api/targets", nil)
	req.Header.Set("Origin", "https://status.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", apimw.OwnerHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://status.example" {
		t.Fatalf("want allowed origin echoed, got %q", got)
	}
}
