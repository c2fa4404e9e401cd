package dialer

import (
	"context"
	"net"

	"github.com/loulikong/okhttp/internal/http"
)

// we need a dedicated resolver for two scenarios:
//
//  1. Resolve remote address locally in proxied requests
//  2. to customize the DNS server used for resolving hostname
//
// the standard library didn't provide a intuitive way of setting DNS
// server addresses since it only follows the system configuration
// (e.g. /etc/resolv.conf), leaving us only one option of using
// [net.Resolver.Dial] hook with a Go Resolver.
type ResolveConfig struct {
	CustomDNSServer string
	Network         string            // one of "ip4", "ip6", default is "ip"
	StaticHosts     map[string]string // resembles /etc/hosts
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	return &ResolveConfig{
		CustomDNSServer: c.CustomDNSServer,
		Network:         c.Network,
		StaticHosts:     c.StaticHosts,
	}
}

// Merge fills c's unset fields from base, returning a new config.
func (c *ResolveConfig) Merge(base *ResolveConfig) *ResolveConfig {
	if c == nil {
		return base.Clone()
	}
	out := c.Clone()
	if base == nil {
		return out
	}
	if out.CustomDNSServer == "" {
		out.CustomDNSServer = base.CustomDNSServer
	}
	if out.Network == "" {
		out.Network = base.Network
	}
	if out.StaticHosts == nil {
		out.StaticHosts = base.StaticHosts
	}
	return out
}

// this type should not be used outside this file.
// prevents non-custom DNS server contexts to iterate through all keys
type dnsServerCtx struct {
	context.Context
	server string
}

var dnsServerCtxKey = &dnsServerCtx{nil, "dns-server"} // non-nil pointer to any object, definitely unique

func (c dnsServerCtx) Value(key interface{}) interface{} {
	if key == dnsServerCtxKey {
		return c.server
	}
	return c.Context.Value(key)
}

var zeroDialer net.Dialer

var customServerResolver = net.Resolver{
	PreferGo: true,
	Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		if v, ok := ctx.Value(dnsServerCtxKey).(string); ok && v != "" {
			return zeroDialer.DialContext(ctx, network, v)
		}
		return zeroDialer.DialContext(ctx, network, address)
	},
}

// Resolve maps a hostname to its ordered address list. Static host entries
// and literal IPs short-circuit the lookup. Failures come back as
// *http.UnknownHostError, the core does not retry them.
func (d *CoreDialer) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	cfg := d.ResolveConfig
	if cfg != nil {
		if static, ok := cfg.StaticHosts[host]; ok {
			if ip := net.ParseIP(static); ip != nil {
				return []net.IP{ip}, nil
			}
			host = static
		}
	}
	ips, err := d.lookup(ctx, cfg, host)
	if err != nil {
		return nil, &http.UnknownHostError{Host: host, Err: err}
	}
	if len(ips) == 0 {
		return nil, &http.UnknownHostError{Host: host, Err: &net.DNSError{Err: "no addresses", Name: host}}
	}
	return ips, nil
}

func (d *CoreDialer) lookup(ctx context.Context, cfg *ResolveConfig, host string) (result []net.IP, err error) {
	if cfg == nil {
		return d.LookupIPServer(ctx, "ip", host, "")
	}
	network := cfg.Network
	if network == "" {
		network = "ip"
	}
	return d.LookupIPServer(ctx, network, host, cfg.CustomDNSServer)
}

// LookupIPServer performs DNS lookup for a host on a custom dns server,
// it calls [net.Resolver.LookupIP] with a Go Resolver behind the scenes.
// This part of logic may be reused when wrapping *[CoreDialer] into
// a new custom [Dialer]
func (d *CoreDialer) LookupIPServer(ctx context.Context, network, host, dns string) ([]net.IP, error) {
	return customServerResolver.LookupIP(dnsServerCtx{ctx, dns}, network, host)
}
