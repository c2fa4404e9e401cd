package okhttp

import (
	model "github.com/loulikong/okhttp/internal/http"
)

// Error taxonomy. Match with errors.As:
//
//	var pinErr *okhttp.CertificatePinningError
//	if errors.As(err, &pinErr) { ... }
type UnknownHostError = model.UnknownHostError
type CleartextBlockedError = model.CleartextBlockedError
type CertificateVerificationError = model.CertificateVerificationError
type CertificatePinningError = model.CertificatePinningError
type ConnectionIOError = model.ConnectionIOError
