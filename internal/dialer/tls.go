package dialer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"net"
	"sync"

	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/netpool"
	"github.com/loulikong/okhttp/internal/pinning"
)

// TLSMode mirrors the capability split between platform generations: a
// legacy platform deterministically negotiates an older protocol version
// than a modern one.
type TLSMode int

const (
	ModeModern TLSMode = iota // TLS 1.2 through 1.3
	ModeLegacy                // capped at TLS 1.2
)

// TLSConfig wraps a base *tls.Config with the pinning and version policy
// of this client. The base config is never mutated, the handshake works on
// a per-connection clone.
type TLSConfig struct {
	Base   *tls.Config
	Mode   TLSMode
	Pinner *pinning.Pinner
}

func (c *TLSConfig) Clone() *TLSConfig {
	if c == nil {
		return nil
	}
	return &TLSConfig{
		Base:   c.Base.Clone(),
		Mode:   c.Mode,
		Pinner: c.Pinner, // immutable, shared
	}
}

func (c *TLSConfig) mode() TLSMode {
	if c == nil {
		return ModeModern
	}
	return c.Mode
}

func (c *TLSConfig) pinner() *pinning.Pinner {
	if c == nil {
		return nil
	}
	return c.Pinner
}

func (c *TLSConfig) pinFingerprint() string {
	return c.pinner().Fingerprint()
}

// session is the per-destination TLS session state. The crypto state lives
// in the standard library's session cache so a fresh connection resumes
// the previous session even after the pooled connection was evicted; the
// id is this client's stable name for that session.
type session struct {
	cache tls.ClientSessionCache

	mu sync.Mutex
	id string
}

func (d *CoreDialer) session(dest http.Destination) *session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions == nil {
		d.sessions = map[string]*session{}
	}
	key := dest.HostPort() + "|" + dest.TLSIdentity
	s, ok := d.sessions[key]
	if !ok {
		s = &session{cache: tls.NewLRUClientSessionCache(4)}
		d.sessions[key] = s
	}
	return s
}

func newSessionID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// secureConnect negotiates TLS on a raw connection. Verification requires
// the standard chain of trust plus, for pinned hosts, at least one chain
// certificate matching a registered pin. Resumed handshakes keep the
// session id of the session they resume.
func (d *CoreDialer) secureConnect(ctx context.Context, raw net.Conn, dest http.Destination) (net.Conn, netpool.Meta, error) {
	cfg := d.TLSConfig.base()
	if cfg.ServerName == "" {
		cfg.ServerName = dest.Host
	}
	switch d.TLSConfig.mode() {
	case ModeLegacy:
		cfg.MinVersion = tls.VersionTLS12
		cfg.MaxVersion = tls.VersionTLS12
	default:
		cfg.MinVersion = tls.VersionTLS12
		cfg.MaxVersion = tls.VersionTLS13
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"http/1.1"}
	}
	sess := d.session(dest)
	cfg.ClientSessionCache = sess.cache

	if pinner := d.TLSConfig.pinner(); pinner != nil && !cfg.InsecureSkipVerify {
		cfg.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			var err error
			for _, chain := range verifiedChains {
				if err = pinner.Check(dest.Host, chain); err == nil {
					return nil
				}
			}
			return err
		}
	}

	c := tls.Client(raw, cfg)
	if err := c.HandshakeContext(ctx); err != nil {
		return nil, netpool.Meta{}, classifyHandshakeError(dest.Host, err)
	}
	cs := c.ConnectionState()

	sess.mu.Lock()
	if !cs.DidResume || sess.id == "" {
		sess.id = newSessionID()
	}
	id := sess.id
	sess.mu.Unlock()

	proto := cs.NegotiatedProtocol
	if proto == "" {
		proto = "http/1.1"
	}
	return c, netpool.Meta{
		Proto:        proto,
		TLSVersion:   cs.Version,
		TLSSessionID: id,
		MaxStreams:   1,
	}, nil
}

func (c *TLSConfig) base() *tls.Config {
	if c == nil || c.Base == nil {
		return &tls.Config{}
	}
	return c.Base.Clone()
}

// classifyHandshakeError separates pin mismatches (already typed by the
// pinner) from generic trust failures.
func classifyHandshakeError(host string, err error) error {
	var pinErr *http.CertificatePinningError
	if errors.As(err, &pinErr) {
		return pinErr
	}
	var (
		unknownAuth x509.UnknownAuthorityError
		invalid     x509.CertificateInvalidError
		hostname    x509.HostnameError
	)
	if errors.As(err, &unknownAuth) || errors.As(err, &invalid) || errors.As(err, &hostname) {
		return &http.CertificateVerificationError{Host: host, Err: err}
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return &http.CertificateVerificationError{Host: host, Err: err}
	}
	return err
}
