// package netpool owns every transport connection the client keeps alive.
// Connections are partitioned by exact destination identity (scheme, host,
// port and TLS identity), checked out to one call at a time and parked
// back on release. One mutex guards the whole registry so acquire, release,
// eviction and counting never observe a half-updated pool.
package netpool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/nettools"
)

// DialFunc creates one new connection to a destination. It is only invoked
// on a pool miss, while the caller already holds a capacity ticket.
type DialFunc func(ctx context.Context) (net.Conn, Meta, error)

type pooled struct {
	conn net.Conn
	meta Meta
	dest http.Destination

	idleSince time.Time
	inUse     bool
	evicted   bool
}

type hostPool struct {
	// ticket capacity bounds in-use plus in-dial connections per host
	connTicket chan struct{}
	all        map[*pooled]struct{}
	idle       []*pooled // oldest first
}

type Group struct {
	mu    sync.Mutex
	pools map[http.Destination]*hostPool

	maxConnsPerHost, maxIdlePerHost uint
	idleTimeout                     time.Duration
}

func NewGroup(maxConnsPerHost, maxIdlePerHost uint) *Group {
	return &Group{
		pools:           map[http.Destination]*hostPool{},
		maxConnsPerHost: maxConnsPerHost, maxIdlePerHost: maxIdlePerHost,
	}
}

// SetIdleTimeout bounds how long a parked connection stays eligible for
// reuse. Zero means no limit. Expired connections are collected lazily on
// the next acquire against their destination.
func (g *Group) SetIdleTimeout(d time.Duration) {
	g.mu.Lock()
	g.idleTimeout = d
	g.mu.Unlock()
}

func (g *Group) pool(dest http.Destination) *hostPool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pools[dest]
	if !ok {
		p = &hostPool{
			connTicket: make(chan struct{}, g.maxConnsPerHost),
			all:        map[*pooled]struct{}{},
		}
		g.pools[dest] = p
	}
	return p
}

// Connect returns a healthy idle connection for dest, or dials a new one
// through dial when none is parked. The returned Conn is checked out until
// Close (park for reuse) or Evict (discard).
func (g *Group) Connect(ctx context.Context, dest http.Destination, dial DialFunc) (Conn, error) {
	p := g.pool(dest)
	select {
	case p.connTicket <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c := g.takeIdle(p); c != nil {
		return &leased{g: g, p: p, c: c, reused: true}, nil
	}
	nc, meta, err := dial(ctx)
	if err != nil {
		<-p.connTicket
		return nil, err
	}
	c := &pooled{conn: nc, meta: meta, dest: dest, inUse: true}
	g.mu.Lock()
	p.all[c] = struct{}{}
	g.mu.Unlock()
	return &leased{g: g, p: p, c: c}, nil
}

// takeIdle pops the most recently parked connection, discarding expired or
// stale ones along the way. Reusing the hottest connection keeps the idle
// tail eligible for timeout collection (idle-time LRU).
func (g *Group) takeIdle(p *hostPool) *pooled {
	g.mu.Lock()
	defer g.mu.Unlock()
	for len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if g.idleTimeout != 0 && time.Since(c.idleSince) > g.idleTimeout {
			g.closeLocked(p, c)
			continue
		}
		if !nettools.IdleHealthy(c.conn) {
			poolLog.WithField("dest", c.dest.HostPort()).Debug("stale idle connection, evicting")
			g.closeLocked(p, c)
			continue
		}
		c.inUse = true
		return c
	}
	return nil
}

// closeLocked removes c from the registry and closes the socket.
// Caller holds g.mu.
func (g *Group) closeLocked(p *hostPool, c *pooled) {
	delete(p.all, c)
	c.evicted = true
	c.conn.Close()
}

// release hands a checked-out connection back. evict discards it, otherwise
// it is parked for reuse, dropping the least recently used idle connection
// when the destination's idle allowance is full.
func (g *Group) release(p *hostPool, c *pooled, evict bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	<-p.connTicket
	if c.evicted { // evictAll got here first, socket is already closed
		return
	}
	if evict {
		g.closeLocked(p, c)
		return
	}
	if g.maxIdlePerHost != 0 && uint(len(p.idle)) >= g.maxIdlePerHost {
		g.closeLocked(p, p.idle[0])
		p.idle = p.idle[1:]
	}
	c.inUse = false
	c.idleSince = time.Now()
	p.idle = append(p.idle, c)
}

// EvictAll forcibly closes every pooled connection, idle and checked-out
// alike, and returns how many were closed. Safe to call concurrently with
// in-flight calls: their leases notice the eviction on release.
func (g *Group) EvictAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.pools {
		for c := range p.all {
			delete(p.all, c)
			c.evicted = true
			c.conn.Close()
			n++
		}
		p.idle = p.idle[:0]
	}
	return n
}

// ConnCount reports the number of live connections, in-use and idle, at
// this instant. Counted under the pool's invariant lock.
func (g *Group) ConnCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.pools {
		n += len(p.all)
	}
	return n
}

// IdleCount reports parked connections only.
func (g *Group) IdleCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.pools {
		n += len(p.idle)
	}
	return n
}
