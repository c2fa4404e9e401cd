package internal

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/loulikong/okhttp/internal/dialer"
	"github.com/loulikong/okhttp/internal/events"
	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/netpool"
	"github.com/loulikong/okhttp/internal/transport"
)

type PreparedRequest = http.PreparedRequest

type Handler = func(ctx context.Context, req *PreparedRequest) (*http.Response, error)
type Middleware func(next Handler) Handler

type Dialer = http.Dialer

var defaultDialer = &dialer.CoreDialer{}

// Client executes calls against its dialer's connection pool. The zero
// value is usable and shares a process-wide default dialer; give a client
// its own CoreDialer to isolate its pool, pins and policy.
type Client struct {
	middlewares []Middleware
	dialer      Dialer

	mu        sync.Mutex
	listeners []events.Listener
}

// Use appends mw to the end of the chain. The last "Use"d mw executes first
func (c *Client) Use(mws ...Middleware) {
	c.middlewares = append(c.middlewares, mws...)
}

// SetDialer replaces the dialing stack. Must not be called concurrently
// with in-flight calls.
func (c *Client) SetDialer(d Dialer) {
	c.dialer = d
}

// UseDialer swaps the dialing stack through a wrapping function, for
// layering custom dialers over the current one.
func (c *Client) UseDialer(wrap func(Dialer) Dialer) {
	if c.dialer == nil {
		c.dialer = defaultDialer
	}
	c.dialer = wrap(c.dialer)
}

// OnEvent registers lifecycle listeners. Listeners observe every call of
// this client, synchronously, in registration order; they can never alter
// a call's outcome.
func (c *Client) OnEvent(ls ...events.Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, ls...)
	c.mu.Unlock()
}

func (c *Client) snapshot() []events.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Listener(nil), c.listeners...)
}

func (c *Client) getDialer() Dialer {
	if c.dialer != nil {
		return c.dialer
	}
	return defaultDialer
}

// coreDialer finds the CoreDialer at the bottom of the dialer chain, nil
// when a fully custom stack is installed.
func (c *Client) coreDialer() *dialer.CoreDialer {
	for d := c.getDialer(); d != nil; d = d.Unwrap() {
		if cd, ok := d.(*dialer.CoreDialer); ok {
			return cd
		}
	}
	return nil
}

// EvictAll forcibly closes every pooled connection and reports how many
// were closed. TLS session state survives, a follow-up call resumes the
// previous session on a fresh connection.
func (c *Client) EvictAll() int {
	if cd := c.coreDialer(); cd != nil {
		return cd.Pool().EvictAll()
	}
	return 0
}

// ConnCount reports live pooled connections, in-use and idle.
func (c *Client) ConnCount() int {
	if cd := c.coreDialer(); cd != nil {
		return cd.Pool().ConnCount()
	}
	return 0
}

// Shutdown tears down the client's pool. The client stays usable, the
// next call re-establishes connections.
func (c *Client) Shutdown() {
	c.EvictAll()
}

func (c *Client) CtxDo(ctx context.Context, req *http.Request) (*http.Response, error) {
	rec := events.NewRecorder(c.snapshot())
	rec.Emit(events.CallStart, req.URL, nil)
	pr, err := req.Prepare()
	if err != nil {
		rec.Emit(events.CallFailed, req.URL, err)
		return nil, err
	}
	ctx = events.With(ctx, rec)
	next := c.do
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		next = c.middlewares[i](next)
	}
	resp, err := next(ctx, pr)
	if err != nil {
		rec.Emit(events.CallFailed, req.URL, err)
		return nil, err
	}
	return resp, nil
}

// do is the innermost handler: acquire a connection, exchange headers and
// bodies, hand the response body to the caller with the event tail armed.
func (c *Client) do(ctx context.Context, pr *PreparedRequest) (*http.Response, error) {
	stream, err := c.getDialer().Dial(ctx, pr)
	if err != nil {
		return nil, err
	}
	conn := asPooled(stream)
	events.Emit(ctx, events.ConnectionAcquired, conn.Meta().Proto, nil)

	stopCancel := watchCancel(ctx, conn.Raw())
	t := transport.HTTP1{}
	fail := func(op string, err error) (*http.Response, error) {
		stopCancel()
		conn.Evict()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &http.ConnectionIOError{Op: op, Err: err}
	}

	events.Emit(ctx, events.RequestHeadersStart, pr.Method, nil)
	if err := t.WriteHeader(ctx, conn, pr); err != nil {
		return fail("write", err)
	}
	events.Emit(ctx, events.RequestHeadersEnd, pr.Method, nil)
	if err := t.WriteBody(ctx, conn, pr); err != nil {
		return fail("write", err)
	}

	resp := &http.Response{}
	events.Emit(ctx, events.ResponseHeadersStart, "", nil)
	if err := t.Read(ctx, conn, pr, resp); err != nil {
		return fail("read", err)
	}
	events.Emit(ctx, events.ResponseHeadersEnd, resp.Status, nil)

	events.Emit(ctx, events.ResponseBodyStart, "", nil)
	body := resp.Body
	if body == nil {
		body = http.NoBody
	}
	resp.Body = &bodyWatcher{
		ctx: ctx, body: body, conn: conn, stop: stopCancel,
		reuse:   resp.Header.Get("Connection") != "close",
		drained: body == http.NoBody,
	}
	return resp, nil
}

// watchCancel arms the connection against ctx cancellation: the deadline
// is applied up front and a poisoned deadline unblocks in-flight I/O when
// the call is cancelled early.
func watchCancel(ctx context.Context, raw net.Conn) (stop func()) {
	if raw == nil {
		return func() {}
	}
	if dl, ok := ctx.Deadline(); ok {
		raw.SetDeadline(dl)
	} else {
		raw.SetDeadline(time.Time{})
	}
	if ctx.Done() == nil {
		return func() {}
	}
	stopCh := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			raw.SetDeadline(time.Unix(1, 0))
		case <-stopCh:
		}
	}()
	return func() { once.Do(func() { close(stopCh) }) }
}

// asPooled adapts streams from custom dialers to the pooled-connection
// surface the executor works against.
func asPooled(stream io.ReadWriteCloser) netpool.Conn {
	if pc, ok := stream.(netpool.Conn); ok {
		return pc
	}
	return &foreignConn{stream: stream}
}

type foreignConn struct {
	stream io.ReadWriteCloser
}

func (f *foreignConn) Read(p []byte) (int, error)  { return f.stream.Read(p) }
func (f *foreignConn) Write(p []byte) (int, error) { return f.stream.Write(p) }
func (f *foreignConn) Close() error                { return f.stream.Close() }
func (f *foreignConn) Evict()                      { f.stream.Close() }
func (f *foreignConn) Reused() bool                { return false }
func (f *foreignConn) Meta() netpool.Meta {
	return netpool.Meta{Proto: "http/1.1", MaxStreams: 1}
}
func (f *foreignConn) Raw() net.Conn {
	if r, ok := f.stream.(interface{ Raw() net.Conn }); ok {
		return r.Raw()
	}
	return nil
}
