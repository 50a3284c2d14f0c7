package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// steppingClock returns start, start+step, start+2*step, ...
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	calls := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := start.Add(time.Duration(calls) * step)
		calls++
		return t
	}
}

func TestHTTPProber_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	start := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	p := NewHTTPProber()
	p.Now = steppingClock(start, 120*time.Millisecond)

	out, err := p.Probe(context.Background(), s.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !out.IsUp || out.Error != domain.ErrNone {
		t.Fatalf("want up, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", out.StatusCode)
	}
	if out.ResponseTimeMS == nil || *out.ResponseTimeMS != 120 {
		t.Fatalf("want 120ms, got %v", out.ResponseTimeMS)
	}
	if !out.CheckedAt.Equal(start) {
		t.Fatalf("checked_at should be the start of the probe, got %s", out.CheckedAt)
	}
}

func TestHTTPProber_Status500IsDownWithTiming(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out, err := NewHTTPProber().Probe(context.Background(), s.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.IsUp {
		t.Fatalf("want down, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 500 {
		t.Fatalf("want status 500, got %v", out.StatusCode)
	}
	if out.ResponseTimeMS == nil {
		t.Fatalf("server answered, response time must be set")
	}
	if out.Error != domain.ErrNone {
		t.Fatalf("an HTTP error status is not a network error, got %q", out.Error)
	}
}

func TestHTTPProber_RedirectCountsAsUp(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.invalid/", http.StatusFound)
	}))
	defer s.Close()

	out, err := NewHTTPProber().Probe(context.Background(), s.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !out.IsUp || out.StatusCode == nil || *out.StatusCode != http.StatusFound {
		t.Fatalf("want up with 302, got %+v", out)
	}
}

func TestHTTPProber_Timeout(t *testing.T) {
	// Server sleeps longer than the probe timeout
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(200)
	}))
	defer s.Close()
	defer close(release)

	out, err := NewHTTPProber().Probe(context.Background(), s.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.IsUp || out.StatusCode != nil || out.ResponseTimeMS != nil {
		t.Fatalf("want down with no status or timing, got %+v", out)
	}
	if out.Error != domain.ErrTimeout {
		t.Fatalf("want timeout, got %q", out.Error)
	}
}

func TestHTTPProber_ConnectionRefused(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := s.URL
	s.Close()

	out, err := NewHTTPProber().Probe(context.Background(), addr, time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.IsUp || out.Error != domain.ErrConnection {
		t.Fatalf("want connection error, got %+v", out)
	}
}

func TestHTTPProber_UntrustedCertificateIsTLS(t *testing.T) {
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer s.Close()

	out, err := NewHTTPProber().Probe(context.Background(), s.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.IsUp || out.Error != domain.ErrTLS {
		t.Fatalf("want tls error, got %+v", out)
	}
}

func TestHTTPProber_InvalidCall(t *testing.T) {
	p := NewHTTPProber()
	if _, err := p.Probe(context.Background(), "https://example.com", 0); !errors.Is(err, ErrInvalidProbe) {
		t.Fatalf("zero timeout must be rejected, got %v", err)
	}
	if _, err := p.Probe(context.Background(), "", time.Second); !errors.Is(err, ErrInvalidProbe) {
		t.Fatalf("empty url must be rejected, got %v", err)
	}
}
