// package pinning restricts trust to certificates whose Subject Public Key
// Info hashes to a pre-registered value, on top of (not instead of)
// standard chain validation.
package pinning

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/loulikong/okhttp/internal/http"
)

const hashPrefix = "sha256/"

// Pin associates a hostname pattern with one pinned public-key hash.
// Patterns are either literal hostnames or a single leading wildcard label
// ("*.example.com"), which matches exactly one extra label.
type Pin struct {
	Pattern string
	Hash    [sha256.Size]byte
}

func (p Pin) matches(host string) bool {
	if rest, ok := strings.CutPrefix(p.Pattern, "*."); ok {
		label, parent, found := strings.Cut(host, ".")
		return found && label != "" && parent == rest
	}
	return p.Pattern == host
}

func (p Pin) String() string {
	return hashPrefix + base64.StdEncoding.EncodeToString(p.Hash[:])
}

// Pinner holds the full pin set of a client. It is immutable after
// construction, deriving a client with different pins means building a
// new Pinner.
type Pinner struct {
	pins        []Pin
	fingerprint string
}

// New builds a Pinner from pattern -> ["sha256/<base64>", ...] entries.
func New(pins map[string][]string) (*Pinner, error) {
	p := &Pinner{}
	for pattern, hashes := range pins {
		for _, h := range hashes {
			b64, ok := strings.CutPrefix(h, hashPrefix)
			if !ok {
				return nil, fmt.Errorf("pin %q for %q: expected %q prefix", h, pattern, hashPrefix)
			}
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil || len(raw) != sha256.Size {
				return nil, fmt.Errorf("pin %q for %q: not a base64 sha-256 hash", h, pattern)
			}
			pin := Pin{Pattern: pattern}
			copy(pin.Hash[:], raw)
			p.pins = append(p.pins, pin)
		}
	}
	sort.Slice(p.pins, func(i, j int) bool {
		if p.pins[i].Pattern != p.pins[j].Pattern {
			return p.pins[i].Pattern < p.pins[j].Pattern
		}
		return string(p.pins[i].Hash[:]) < string(p.pins[j].Hash[:])
	})
	sum := sha256.New()
	for _, pin := range p.pins {
		sum.Write([]byte(pin.Pattern))
		sum.Write(pin.Hash[:])
	}
	p.fingerprint = hex.EncodeToString(sum.Sum(nil)[:8])
	return p, nil
}

// HashOf returns the pin representation of a certificate's public key.
func HashOf(cert *x509.Certificate) [sha256.Size]byte {
	return sha256.Sum256(cert.RawSubjectPublicKeyInfo)
}

// PinsFor returns the pins registered for host, nil when the host is
// unpinned.
func (p *Pinner) PinsFor(host string) []Pin {
	if p == nil {
		return nil
	}
	var out []Pin
	for _, pin := range p.pins {
		if pin.matches(host) {
			out = append(out, pin)
		}
	}
	return out
}

// Check verifies that at least one certificate of an already-validated
// chain matches a pin for host. Hosts without pins always pass. A mismatch
// is reported as *http.CertificatePinningError, distinct from generic
// trust failures.
func (p *Pinner) Check(host string, chain []*x509.Certificate) error {
	pins := p.PinsFor(host)
	if len(pins) == 0 {
		return nil
	}
	observed := make([]string, 0, len(chain))
	for _, cert := range chain {
		h := HashOf(cert)
		for _, pin := range pins {
			if pin.Hash == h {
				return nil
			}
		}
		observed = append(observed, hashPrefix+base64.StdEncoding.EncodeToString(h[:]))
	}
	pinned := make([]string, len(pins))
	for i, pin := range pins {
		pinned[i] = pin.String()
	}
	return &http.CertificatePinningError{Host: host, Pinned: pinned, Observed: observed}
}

// Fingerprint is a short stable digest of the pin set, folded into the
// pool's destination identity so differently-pinned clients never share
// connections.
func (p *Pinner) Fingerprint() string {
	if p == nil || len(p.pins) == 0 {
		return ""
	}
	return p.fingerprint
}
