package dialer

import (
	"context"
	"io"
	"net"
	"net/url"

	"github.com/loulikong/okhttp/internal/events"
	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/netpool"
	"github.com/loulikong/okhttp/internal/policy"
)

// Dial returns a stream for the request: a pooled connection when an idle
// one matches the destination, a freshly established one otherwise. The
// lifecycle events of the establishment (proxy selection, dns, connect,
// secure connect) go to the recorder carried by ctx; a pool hit emits
// none of them.
func (d *CoreDialer) Dial(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
	dest := r.Destination()
	if err := policy.CheckCleartext(dest.Scheme, dest.Host, d.Cleartext); err != nil {
		return nil, err
	}

	events.Emit(ctx, events.ProxySelectStart, dest.HostPort(), nil)
	proxy, err := d.selectProxy(ctx, r)
	if err != nil {
		events.Emit(ctx, events.ProxySelectEnd, "", err)
		return nil, err
	}
	detail := "direct"
	if proxy != nil {
		detail = proxy.Redacted()
	}
	events.Emit(ctx, events.ProxySelectEnd, detail, nil)

	dest.TLSIdentity = d.identity()
	return d.Pool().Connect(ctx, dest, func(ctx context.Context) (net.Conn, netpool.Meta, error) {
		return d.establish(ctx, dest, proxy)
	})
}

// establish creates one new connection to dest, optionally through proxy,
// and secures it when the destination demands TLS.
func (d *CoreDialer) establish(ctx context.Context, dest http.Destination, proxy *url.URL) (net.Conn, netpool.Meta, error) {
	if err := d.throttle(ctx, dest); err != nil {
		return nil, netpool.Meta{}, err
	}

	var conn net.Conn
	var err error
	if proxy != nil {
		// the proxy resolves the remote name, no local dns step
		events.Emit(ctx, events.ConnectStart, proxy.Redacted(), nil)
		conn, err = d.DialContextOverProxy(ctx, destURL(dest), proxy)
	} else {
		events.Emit(ctx, events.DNSStart, dest.Host, nil)
		var ips []net.IP
		ips, err = d.Resolve(ctx, dest.Host)
		events.Emit(ctx, events.DNSEnd, dest.Host, err)
		if err != nil {
			return nil, netpool.Meta{}, err
		}
		events.Emit(ctx, events.ConnectStart, dest.HostPort(), nil)
		conn, err = d.connect(ctx, ips, dest.Port)
	}
	if err != nil {
		return nil, netpool.Meta{}, err
	}

	meta := netpool.Meta{Proto: "http/1.1", MaxStreams: 1}
	if dest.Secure() {
		events.Emit(ctx, events.SecureConnectStart, dest.Host, nil)
		var secured net.Conn
		secured, meta, err = d.secureConnect(ctx, conn, dest)
		if err != nil {
			conn.Close()
			return nil, netpool.Meta{}, err
		}
		// the session id in the detail is the observable handle for
		// verifying session resumption across reconnects
		events.Emit(ctx, events.SecureConnectEnd, meta.TLSSessionID, nil)
		conn = secured
	}
	events.Emit(ctx, events.ConnectEnd, dest.HostPort(), nil)
	return conn, meta, nil
}

// connect tries the resolved addresses in resolver order, first success
// wins.
func (d *CoreDialer) connect(ctx context.Context, ips []net.IP, port string) (net.Conn, error) {
	network := "tcp"
	if d.ResolveConfig != nil {
		if d.ResolveConfig.Network == "ip4" {
			network = "tcp4"
		} else if d.ResolveConfig.Network == "ip6" {
			network = "tcp6"
		}
	}
	var err error
	for _, ip := range ips {
		var conn net.Conn
		conn, err = zeroDialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func destURL(dest http.Destination) *url.URL {
	return &url.URL{Scheme: dest.Scheme, Host: dest.HostPort()}
}
