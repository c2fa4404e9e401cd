package http

import "fmt"

// UnknownHostError reports a name resolution failure. The core does not
// retry it, alternate routes (if any) belong to the caller.
type UnknownHostError struct {
	Host string
	Err  error
}

func (e *UnknownHostError) Error() string {
	return "unknown host " + e.Host + ": " + e.Err.Error()
}

func (e *UnknownHostError) Unwrap() error { return e.Err }

// CleartextBlockedError reports a request that was denied by the cleartext
// policy before any socket I/O happened. There is no fallback, the request
// is never upgraded or downgraded.
type CleartextBlockedError struct {
	Scheme string
	Host   string
}

func (e *CleartextBlockedError) Error() string {
	return fmt.Sprintf("cleartext %s traffic to %s not permitted by policy", e.Scheme, e.Host)
}

// CertificateVerificationError reports a peer chain that failed standard
// chain-of-trust validation.
type CertificateVerificationError struct {
	Host string
	Err  error
}

func (e *CertificateVerificationError) Error() string {
	return "certificate verification failed for " + e.Host + ": " + e.Err.Error()
}

func (e *CertificateVerificationError) Unwrap() error { return e.Err }

// CertificatePinningError reports a chain that passed standard validation
// but matched none of the pins registered for the host. Kept distinct from
// CertificateVerificationError so pin misconfiguration is diagnosable.
type CertificatePinningError struct {
	Host     string
	Pinned   []string // pins configured for Host
	Observed []string // hashes found in the presented chain
}

func (e *CertificatePinningError) Error() string {
	return fmt.Sprintf("certificate pinning failure for %s: chain hashes %v matched none of %v",
		e.Host, e.Observed, e.Pinned)
}

// ConnectionIOError reports a transport failure on an established
// connection. The connection is evicted from the pool, the call may be
// retried on a fresh route by the caller.
type ConnectionIOError struct {
	Op  string
	Err error
}

func (e *ConnectionIOError) Error() string {
	return "connection " + e.Op + " failed: " + e.Err.Error()
}

func (e *ConnectionIOError) Unwrap() error { return e.Err }
