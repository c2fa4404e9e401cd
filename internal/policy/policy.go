// package policy gates cleartext (non-TLS) traffic. The check is a pure
// function of the request scheme and the configured policy and runs before
// any socket I/O, so a denied request never reaches the network.
package policy

import (
	"github.com/loulikong/okhttp/internal/http"
)

type Cleartext int

const (
	// CleartextPermitted is the zero value so that a zero-value client
	// behaves like the legacy platforms that allow plain http.
	CleartextPermitted Cleartext = iota
	CleartextBlocked
)

func (p Cleartext) String() string {
	if p == CleartextBlocked {
		return "blocked"
	}
	return "permitted"
}

// CheckCleartext returns a *http.CleartextBlockedError when scheme is
// unencrypted and the policy denies it, nil otherwise.
func CheckCleartext(scheme, host string, p Cleartext) error {
	if scheme != "https" && p == CleartextBlocked {
		return &http.CleartextBlockedError{Scheme: scheme, Host: host}
	}
	return nil
}
