package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
)

type Dialer interface {
	Dial(ctx context.Context, r *PreparedRequest) (io.ReadWriteCloser, error)
	Unwrap() Dialer
}

type Request struct {
	Method string
	URL    string
	Body   interface{}
	Header http.Header
}

type Response struct {
	Proto      string
	Status     string
	StatusCode int
	Header     http.Header

	ContentLength int64
	Body          io.ReadCloser
}

// Destination is the logical endpoint a request connects to. It partitions
// the connection pool: two destinations that differ in any field never share
// a pooled connection. TLSIdentity folds in everything that affects trust
// decisions (pin set, protocol version bounds) so that clients with
// different pinning configurations stay isolated from each other.
type Destination struct {
	Scheme      string
	Host        string
	Port        string
	TLSIdentity string
}

func (d Destination) HostPort() string {
	return net.JoinHostPort(d.Host, d.Port)
}

func (d Destination) Secure() bool {
	return d.Scheme == "https"
}

var defaultPorts = map[string]string{
	"http": "80", "https": "443",
}

// DestinationOf derives the pool partition for a parsed request URL. The
// TLS identity is left empty, the dialer fills it in once it knows the
// active pinning and version configuration.
func DestinationOf(u *url.URL) Destination {
	host, port := u.Host, defaultPorts[u.Scheme]
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	}
	return Destination{Scheme: u.Scheme, Host: host, Port: port}
}
