package probe

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func selfSigned(t *testing.T, notAfter time.Time) (tls.Certificate, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: "pulsewatch test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}

func startTLS(t *testing.T, cert tls.Certificate) *httptest.Server {
	t.Helper()
	s := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	s.StartTLS()
	t.Cleanup(s.Close)
	return s
}

func TestCertInspector_DaysLeft(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	cert, leaf := selfSigned(t, base.Add(10*24*time.Hour+time.Hour))
	s := startTLS(t, cert)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	ci := NewCertInspector(2 * time.Second)
	ci.TLSConfig = &tls.Config{RootCAs: pool}

	info := ci.Inspect(context.Background(), s.URL)
	if info.Error != "" {
		t.Fatalf("unexpected error: %s", info.Error)
	}
	if info.Host != "127.0.0.1" {
		t.Fatalf("want host 127.0.0.1, got %q", info.Host)
	}
	if info.Issuer != "pulsewatch test CA" {
		t.Fatalf("unexpected issuer %q", info.Issuer)
	}
	if !info.ValidTo.Equal(leaf.NotAfter) {
		t.Fatalf("valid_to mismatch: %s vs %s", info.ValidTo, leaf.NotAfter)
	}
	if got := info.DaysLeft(base); got != 10 {
		t.Fatalf("want 10 days left, got %d", got)
	}
}

func TestCertInspector_UntrustedStillReportsDates(t *testing.T) {
	cert, leaf := selfSigned(t, time.Now().Add(30*24*time.Hour))
	s := startTLS(t, cert)

	info := NewCertInspector(2*time.Second).Inspect(context.Background(), s.URL)
	if !strings.HasPrefix(info.Error, "tls") {
		t.Fatalf("want tls error, got %q", info.Error)
	}
	if !info.ValidTo.Equal(leaf.NotAfter.UTC()) {
		t.Fatalf("expiry should come from the unverified certificate, got %s", info.ValidTo)
	}
}

func TestCertInspector_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	info := NewCertInspector(time.Second).Inspect(context.Background(), addr)
	if info.Error == "" || info.HasExpiry() {
		t.Fatalf("want error and no expiry, got %+v", info)
	}
}

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		in, host, port string
	}{
		{"https://example.com", "example.com", "443"},
		{"https://example.com:8443/path", "example.com", "8443"},
		{"example.com:8443", "example.com", "8443"},
		{"example.com", "example.com", "443"},
	}
	for _, c := range cases {
		h, p, err := SplitHostPort(c.in)
		if err != nil {
			t.Fatalf("SplitHostPort(%q): %v", c.in, err)
		}
		if h != c.host || p != c.port {
			t.Fatalf("SplitHostPort(%q) = (%s, %s), want (%s, %s)", c.in, h, p, c.host, c.port)
		}
	}
	if _, _, err := SplitHostPort(""); err == nil {
		t.Fatalf("empty input must fail")
	}
}
