// package transport contains implementations to requirements on *message
// syntaxes* defined by http related RFCs.
//
// RFCs that were to define HTTP/1.1 (RFC753x) are obsoleted by:
//
//	HTTP Semantics (RFC9110)
//	HTTP Caching (RFC9111) and
//	HTTP/1.1 (RFC9112)
//
// only the HTTP/1.1 syntax is implemented here. connections carry their
// negotiated protocol and stream capacity in the pool metadata, so a
// multiplexing transport can slot in behind the [Transport] interface.
//
// net/http components are reused on the "semantics" part ([net/http.Header] etc.)
package transport
