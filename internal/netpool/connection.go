package netpool

import (
	"io"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var poolLog = logrus.WithField("component", "netpool")

// Meta describes a connection at creation time.
type Meta struct {
	Proto        string // negotiated protocol, "http/1.1" unless ALPN said otherwise
	TLSVersion   uint16 // 0 for cleartext connections
	TLSSessionID string // stable across resumptions of the same TLS session
	MaxStreams   int    // concurrent calls the connection can carry
}

// Conn is a checked-out pooled connection. Close parks it for reuse,
// Evict discards it. After an I/O error the connection parks itself as
// evicted, a broken socket never returns to the idle set.
type Conn interface {
	io.ReadWriteCloser
	Raw() net.Conn
	Reused() bool
	Meta() Meta
	Evict()
}

type leased struct {
	g *Group
	p *hostPool
	c *pooled

	reused   bool
	broken   atomic.Bool
	released atomic.Bool
}

func (l *leased) Raw() net.Conn { return l.c.conn }
func (l *leased) Reused() bool  { return l.reused }
func (l *leased) Meta() Meta    { return l.c.meta }

func (l *leased) Write(p []byte) (n int, err error) {
	n, err = l.c.conn.Write(p)
	if err != nil {
		if err != io.EOF {
			poolLog.WithError(err).Debug("error on write")
		}
		l.broken.Store(true)
	}
	return
}

func (l *leased) Read(p []byte) (n int, err error) {
	n, err = l.c.conn.Read(p)
	if err != nil {
		if err != io.EOF {
			poolLog.WithError(err).Debug("error on read")
		}
		l.broken.Store(true)
	}
	return
}

// Close returns the connection to the pool. It is idempotent, only the
// first call releases the lease.
func (l *leased) Close() error {
	if l.released.CompareAndSwap(false, true) {
		l.g.release(l.p, l.c, l.broken.Load())
	}
	return nil
}

// Evict discards the connection instead of parking it.
func (l *leased) Evict() {
	l.broken.Store(true)
	l.Close()
}
