// package nettools peeks at socket readiness through the raw file
// descriptor. The pool uses it to detect idle connections that the peer
// already closed (or wrote unsolicited data to) before handing them out
// for reuse.
package nettools

import (
	"net"
	"syscall"
)

var probe func(fd int) bool

// IdleHealthy reports whether an idle connection is still usable. A socket
// that polls readable while idle is stale: the peer either closed it or
// pushed bytes no request asked for. On platforms without a registered
// probe the connection is assumed healthy.
func IdleHealthy(c net.Conn) bool {
	rc := rawConn(c)
	if rc == nil || probe == nil {
		return true
	}
	healthy := true
	// It's annoying that golang docs didn't specify whether the
	// control action will be executed if error occurrs
	// however according to the source code errors would only
	// happen before the control action
	if err := rc.Control(func(fd uintptr) {
		healthy = probe(int(fd))
	}); err != nil {
		return true
	}
	return healthy
}

func rawConn(raw net.Conn) syscall.RawConn {
	if t, ok := raw.(interface{ NetConn() net.Conn }); ok {
		// is *tls.Conn or polyfilled TLS Connection
		raw = t.NetConn()
	}
	if c, ok := raw.(syscall.Conn); ok {
		if rc, err := c.SyscallConn(); err == nil {
			return rc
		}
	}
	return nil
}
