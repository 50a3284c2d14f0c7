package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// CertInspector reads the leaf certificate of a host without speaking HTTP.
type CertInspector struct {
	Timeout time.Duration
	// TLSConfig is cloned per dial; tests use it to trust a local CA.
	TLSConfig *tls.Config
	Now       func() time.Time
}

func NewCertInspector(timeout time.Duration) *CertInspector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CertInspector{Timeout: timeout, Now: time.Now}
}

// Inspect accepts a bare host, host:port or a full URL. Failures are returned
// in SSLInfo.Error. When verification fails but the server did present a
// certificate, its dates are still reported.
func (c *CertInspector) Inspect(ctx context.Context, target string) domain.SSLInfo {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	info := domain.SSLInfo{CheckedAt: now().UTC()}

	host, port, err := SplitHostPort(target)
	if err != nil {
		info.Host = target
		info.Error = err.Error()
		return info
	}
	info.Host = host

	cfg := &tls.Config{}
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	}
	cfg.ServerName = host

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: c.Timeout}, Config: cfg}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		info.Error = string(Classify(err)) + ": " + err.Error()
		var verifyErr *tls.CertificateVerificationError
		if errors.As(err, &verifyErr) && len(verifyErr.UnverifiedCertificates) > 0 {
			fillCert(&info, verifyErr.UnverifiedCertificates[0])
		}
		return info
	}
	defer conn.Close()

	cs := conn.(*tls.Conn).ConnectionState()
	if len(cs.PeerCertificates) == 0 {
		info.Error = "no peer certificates"
		return info
	}
	fillCert(&info, cs.PeerCertificates[0])
	return info
}

func fillCert(info *domain.SSLInfo, cert *x509.Certificate) {
	info.ValidFrom = cert.NotBefore.UTC()
	info.ValidTo = cert.NotAfter.UTC()
	info.Issuer = cert.Issuer.CommonName
	if info.Issuer == "" {
		info.Issuer = cert.Issuer.String()
	}
}

// SplitHostPort extracts host and port, defaulting to 443.
func SplitHostPort(target string) (string, string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", errors.New("empty host")
	}
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil || u.Hostname() == "" {
			return "", "", errors.New("invalid url")
		}
		port := u.Port()
		if port == "" {
			port = "443"
		}
		return u.Hostname(), port, nil
	}
	if h, p, err := net.SplitHostPort(target); err == nil {
		return h, p, nil
	}
	return target, "443", nil
}
