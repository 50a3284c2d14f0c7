package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const userAgent = "PulseWatch-Monitor/1.0"

// ErrInvalidProbe is returned for malformed calls, never for unreachable targets.
var ErrInvalidProbe = errors.New("probe: invalid call")

// Prober performs a single reachability check. Implementations must not retry.
type Prober interface {
	Probe(ctx context.Context, rawURL string, timeout time.Duration) (domain.ProbeOutcome, error)
}

type HTTPProber struct {
	Client *http.Client
	// Now is the wall clock used for CheckedAt and the response time.
	Now func() time.Time
}

var _ Prober = (*HTTPProber)(nil)

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{
			// A 3xx answer means the server is alive; do not chase it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Now: time.Now,
	}
}

// Probe issues one GET with a hard timeout. Network failures are reported in
// the outcome; the error is reserved for programmer mistakes.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string, timeout time.Duration) (domain.ProbeOutcome, error) {
	if ctx == nil || rawURL == "" || timeout <= 0 {
		return domain.ProbeOutcome{}, ErrInvalidProbe
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := now()
	out := domain.ProbeOutcome{CheckedAt: start.UTC()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		out.Error = domain.ErrOther
		return out, nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		out.Error = Classify(err)
		return out, nil
	}
	elapsed := now().Sub(start).Milliseconds()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	out.StatusCode = domain.IntPtr(resp.StatusCode)
	out.ResponseTimeMS = domain.Int64Ptr(elapsed)
	out.IsUp = resp.StatusCode >= 200 && resp.StatusCode < 400
	return out, nil
}
