package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// Classify maps a transport error onto the outcome error categories.
// DNS is checked first because resolver timeouts are still DNS failures.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrNone
	}

	var de *net.DNSError
	if errors.As(err, &de) {
		return domain.ErrDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ErrTimeout
	}

	if isTLS(err) {
		return domain.ErrTLS
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return domain.ErrConnection
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return domain.ErrConnection
	}
	return domain.ErrOther
}

func isTLS(err error) bool {
	var (
		verifyErr *tls.CertificateVerificationError
		headerErr tls.RecordHeaderError
		alertErr  tls.AlertError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		invalid   x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &headerErr),
		errors.As(err, &alertErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &invalid):
		return true
	}
	// Handshake failures such as "tls: server selected unsupported protocol
	// version 301" or a remote "tls: handshake failure" alert have no exported
	// type. Match the prefix on each wrapped error rather than the joined
	// message so URLs or bodies mentioning tls don't count.
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.HasPrefix(e.Error(), "tls: ") {
			return true
		}
	}
	return false
}
