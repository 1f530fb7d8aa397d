package webdav

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// Sentinel errors for callers to classify failures with errors.Is.
var (
	// ErrNotNextcloud is returned by CheckServerIdentity when the base URL
	// does not answer like a Nextcloud server. Fatal to the whole sync pass.
	ErrNotNextcloud = errors.New("webdav: not a Nextcloud server")

	// ErrTLSUntrusted is returned when certificate verification fails.
	// Invalid certificates are rejected unconditionally; there is no toggle.
	ErrTLSUntrusted = errors.New("webdav: untrusted TLS certificate")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webdav: %s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// isTLSUntrusted reports whether err carries the ErrTLSUntrusted sentinel.
func isTLSUntrusted(err error) bool {
	return errors.Is(err, ErrTLSUntrusted)
}

// wrapTransportErr classifies transport-level failures. Certificate
// verification errors are wrapped in ErrTLSUntrusted so that callers can
// treat them per policy; everything else passes through as a network error.
func wrapTransportErr(method, url string, err error) error {
	var certErr *tls.CertificateVerificationError

	var unknownAuthority x509.UnknownAuthorityError

	var hostnameErr x509.HostnameError

	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return fmt.Errorf("%w: %s %s: %v", ErrTLSUntrusted, method, url, err)
	}

	return fmt.Errorf("webdav: %s %s: %w", method, url, err)
}
