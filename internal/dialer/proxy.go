package dialer

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"

	xproxy "golang.org/x/net/proxy"

	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/transport"
)

type ProxyConfig struct {
	TLSConfig      *tls.Config // the [*tls.Config] to use with an https proxy, if nil a default is used
	ResolveLocally bool
	ResolveConfig  *ResolveConfig // overrides the resolver config for dialer for proxy
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{
		TLSConfig:      c.TLSConfig.Clone(),
		ResolveLocally: c.ResolveLocally,
		ResolveConfig:  c.ResolveConfig.Clone(),
	}
}

var proxyPorts = map[string]string{
	"http": "80", "https": "443", "socks": "1080", "socks5": "1080",
}

var h1Transport = transport.HTTP1{}

// selectProxy asks the configured proxy selector for this request's proxy.
// An empty answer means a direct connection.
func (d *CoreDialer) selectProxy(ctx context.Context, r *http.PreparedRequest) (*url.URL, error) {
	if d.GetProxy == nil {
		return nil, nil
	}
	proxy, err := d.GetProxy(ctx, r.Request)
	if err != nil || proxy == "" {
		return nil, err
	}
	return url.Parse(proxy)
}

// DialContextOverProxy creates a connection to remote through an
// http/https/socks5 proxy. This part of logic may be reused when wrapping
// *[CoreDialer] into a new custom [Dialer]
func (d *CoreDialer) DialContextOverProxy(ctx context.Context, remote *url.URL, proxy *url.URL) (net.Conn, error) {
	switch proxy.Scheme {
	case "socks", "socks5":
		return d.dialSocks(ctx, remote, proxy)
	case "http", "https":
		return d.dialConnect(ctx, remote, proxy)
	}
	return nil, errors.New("unsupported proxy scheme:" + proxy.Scheme)
}

func proxyHostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), proxyPorts[u.Scheme])
}

// dialSocks tunnels through a SOCKS5 proxy. The remote hostname is passed
// to the proxy for resolution unless ResolveLocally is set.
func (d *CoreDialer) dialSocks(ctx context.Context, remote *url.URL, proxy *url.URL) (net.Conn, error) {
	var auth *xproxy.Auth
	if user := proxy.User; user != nil {
		pass, _ := user.Password()
		auth = &xproxy.Auth{User: user.Username(), Password: pass}
	}
	sd, err := xproxy.SOCKS5("tcp", proxyHostPort(proxy), auth, &zeroDialer)
	if err != nil {
		return nil, err
	}
	addr, port, err := d.remoteAddr(ctx, remote)
	if err != nil {
		return nil, err
	}
	cd, ok := sd.(xproxy.ContextDialer)
	if !ok {
		return sd.Dial("tcp", net.JoinHostPort(addr, port))
	}
	return cd.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
}

// dialConnect opens an http/https proxy tunnel with a CONNECT request.
func (d *CoreDialer) dialConnect(ctx context.Context, remote *url.URL, proxy *url.URL) (net.Conn, error) {
	conn, err := zeroDialer.DialContext(ctx, "tcp", proxyHostPort(proxy))
	if err != nil {
		return nil, err
	}

	if proxy.Scheme == "https" {
		tlsCfg := &tls.Config{ServerName: proxy.Hostname()}
		if d.ProxyConfig != nil && d.ProxyConfig.TLSConfig != nil {
			tlsCfg = d.ProxyConfig.TLSConfig
		}
		c := tls.Client(conn, tlsCfg)
		if err := c.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}

	addr, port, err := d.remoteAddr(ctx, remote)
	if err != nil {
		conn.Close()
		return nil, err
	}

	connReq := &http.PreparedRequest{
		Request:       &http.Request{Method: "CONNECT"},
		HeaderHost:    remote.Host,
		U:             &url.URL{Opaque: net.JoinHostPort(addr, port)},
		GetBody:       func() (io.ReadCloser, error) { return http.NoBody, nil },
		ContentLength: -1,
	}
	if auth := proxy.User.String(); auth != "" {
		connReq.Header = http.Header{
			"Proxy-Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte(auth))},
		}
	}
	if err := h1Transport.WriteHeader(ctx, conn, connReq); err != nil {
		conn.Close()
		return nil, err
	}
	resp := &http.Response{}
	if err := h1Transport.Read(ctx, conn, connReq, resp); err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != 200 {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
		conn.Close()
		return nil, fmt.Errorf("proxy server returned error. status:%d, body:%s", resp.StatusCode, string(body))
	}
	return conn, nil
}

// remoteAddr decides what address the proxy is asked to connect to: the
// hostname itself, or a locally resolved IP when ResolveLocally is set.
func (d *CoreDialer) remoteAddr(ctx context.Context, remote *url.URL) (string, string, error) {
	addr, port := remote.Host, defaultPortOf(remote.Scheme)
	if a, p, err := net.SplitHostPort(addr); err == nil {
		addr, port = a, p
	}
	if d.ProxyConfig == nil || !d.ProxyConfig.ResolveLocally {
		return addr, port, nil
	}
	dnsCfg := d.ProxyConfig.ResolveConfig.Merge(d.ResolveConfig)
	if dnsCfg != nil {
		if static, ok := dnsCfg.StaticHosts[addr]; ok {
			return static, port, nil
		}
	}
	ips, err := d.lookup(ctx, dnsCfg, addr)
	if err == nil && len(ips) == 0 {
		err = &net.DNSError{Err: "no addresses", Name: addr}
	}
	if err != nil {
		return "", "", &http.UnknownHostError{Host: addr, Err: err}
	}
	return ips[rand.Intn(len(ips))].String(), port, nil
}

func defaultPortOf(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}
