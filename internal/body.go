package internal

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/loulikong/okhttp/internal/events"
	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/netpool"
)

// bodyWatcher streams the response body and owns the tail of the call's
// event sequence: on EOF it emits ResponseBodyEnd, releases the connection
// and emits ConnectionReleased then CallEnd; on a transport error it
// evicts the connection and ends the stream with CallFailed instead.
type bodyWatcher struct {
	ctx  context.Context
	body io.ReadCloser
	conn netpool.Conn
	stop func()

	reuse   bool
	drained bool // body known empty, closing unread still permits reuse
	done    atomic.Bool
}

func (w *bodyWatcher) Read(p []byte) (int, error) {
	if w.done.Load() {
		return 0, io.EOF
	}
	n, err := w.body.Read(p)
	if err == nil {
		return n, nil
	}
	if err == io.EOF {
		w.finish(nil)
		return n, io.EOF
	}
	failure := error(&http.ConnectionIOError{Op: "read", Err: err})
	if ctxErr := w.ctx.Err(); ctxErr != nil {
		failure = ctxErr
	}
	w.finish(failure)
	return n, failure
}

// Close releases the connection. Closing before the body is fully read
// discards the connection, a socket with unread response data cannot be
// reused; bodyless responses (HEAD, 204, 304) carry no such data and park
// normally.
func (w *bodyWatcher) Close() error {
	if !w.drained {
		w.reuse = false
	}
	w.finish(nil)
	return nil
}

func (w *bodyWatcher) finish(failure error) {
	if !w.done.CompareAndSwap(false, true) {
		return
	}
	w.stop()
	if failure != nil {
		w.conn.Evict()
		events.Emit(w.ctx, events.ConnectionReleased, "", nil)
		events.Emit(w.ctx, events.CallFailed, "", failure)
		return
	}
	events.Emit(w.ctx, events.ResponseBodyEnd, "", nil)
	if w.reuse {
		w.conn.Close()
	} else {
		w.conn.Evict()
	}
	events.Emit(w.ctx, events.ConnectionReleased, "", nil)
	events.Emit(w.ctx, events.CallEnd, "", nil)
}
