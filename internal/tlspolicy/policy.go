// Package tlspolicy holds the shared TLS certificate verification switch and
// the HTTP transport built for its current state.
//
// Verification starts in the configured state and can be disabled once after a
// certificate validation failure. It is never re-enabled for the lifetime of
// the Policy, and every client sharing the Policy observes the downgrade.
package tlspolicy

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Policy is a shared, concurrency-safe TLS verification policy. It implements
// http.RoundTripper so a single client can be installed once and pick up the
// rebuilt security context on its next request.
type Policy struct {
	mu      sync.Mutex
	current atomic.Pointer[state]
	rootCAs *x509.CertPool
	logger  zerolog.Logger
}

// state pairs the flag with the transport built for it. It is immutable once
// stored so readers never see a flag without its matching transport.
type state struct {
	verify     bool
	generation uint64
	tlsConfig  *tls.Config
	transport  *http.Transport
	cause      error
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger used to report downgrades.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// WithRootCAs verifies server certificates against pool instead of the system roots.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(p *Policy) {
		p.rootCAs = pool
	}
}

// New creates a Policy with verification initially set to verify.
func New(verify bool, opts ...Option) *Policy {
	p := &Policy{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(p.build(verify, 0, nil))
	return p
}

func (p *Policy) build(verify bool, generation uint64, cause error) *state {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            p.rootCAs,
		InsecureSkipVerify: !verify,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cfg

	return &state{
		verify:     verify,
		generation: generation,
		tlsConfig:  cfg,
		transport:  transport,
		cause:      cause,
	}
}

// VerifyEnabled reports whether certificates are currently validated.
func (p *Policy) VerifyEnabled() bool {
	return p.current.Load().verify
}

// Generation increments each time the security context is rebuilt.
func (p *Policy) Generation() uint64 {
	return p.current.Load().generation
}

// TLSConfig returns a copy of the TLS configuration in effect.
func (p *Policy) TLSConfig() *tls.Config {
	return p.current.Load().tlsConfig.Clone()
}

// Cause returns the error that triggered the downgrade, or nil.
func (p *Policy) Cause() error {
	return p.current.Load().cause
}

// Disable turns verification off and rebuilds the transport. It reports
// whether this call performed the transition; later calls are no-ops.
func (p *Policy) Disable(cause error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.current.Load()
	if !old.verify {
		return false
	}

	p.current.Store(p.build(false, old.generation+1, cause))
	old.transport.CloseIdleConnections()

	p.logger.Warn().
		Err(cause).
		Uint64("generation", old.generation+1).
		Msg("tls verification disabled for all subsequent requests")

	return true
}

// RoundTrip sends req through the transport of the current state.
func (p *Policy) RoundTrip(req *http.Request) (*http.Response, error) {
	return p.current.Load().transport.RoundTrip(req)
}

// CloseIdleConnections closes idle connections of the current transport.
func (p *Policy) CloseIdleConnections() {
	p.current.Load().transport.CloseIdleConnections()
}

// IsVerificationError reports whether err is a certificate validation failure,
// as opposed to a network or protocol error.
func IsVerificationError(err error) bool {
	if err == nil {
		return false
	}

	var (
		verifyErr     *tls.CertificateVerificationError
		unknownAuth   x509.UnknownAuthorityError
		hostnameErr   x509.HostnameError
		invalidErr    x509.CertificateInvalidError
		systemRoots   x509.SystemRootsError
		constraintErr x509.ConstraintViolationError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &systemRoots) ||
		errors.As(err, &constraintErr)
}
