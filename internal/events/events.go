// package events models the lifecycle of a single call as an ordered
// stream of tagged events. Listeners are passive observers: they are
// invoked synchronously, in registration order, and can never change the
// outcome of the call they watch.
package events

import (
	"context"
	"time"
)

type Kind int

const (
	CallStart Kind = iota
	ProxySelectStart
	ProxySelectEnd
	DNSStart
	DNSEnd
	ConnectStart
	SecureConnectStart
	SecureConnectEnd
	ConnectEnd
	ConnectionAcquired
	RequestHeadersStart
	RequestHeadersEnd
	ResponseHeadersStart
	ResponseHeadersEnd
	ResponseBodyStart
	ResponseBodyEnd
	ConnectionReleased
	CallEnd
	CallFailed
)

var kindNames = [...]string{
	CallStart:            "CallStart",
	ProxySelectStart:     "ProxySelectStart",
	ProxySelectEnd:       "ProxySelectEnd",
	DNSStart:             "DnsStart",
	DNSEnd:               "DnsEnd",
	ConnectStart:         "ConnectStart",
	SecureConnectStart:   "SecureConnectStart",
	SecureConnectEnd:     "SecureConnectEnd",
	ConnectEnd:           "ConnectEnd",
	ConnectionAcquired:   "ConnectionAcquired",
	RequestHeadersStart:  "RequestHeadersStart",
	RequestHeadersEnd:    "RequestHeadersEnd",
	ResponseHeadersStart: "ResponseHeadersStart",
	ResponseHeadersEnd:   "ResponseHeadersEnd",
	ResponseBodyStart:    "ResponseBodyStart",
	ResponseBodyEnd:      "ResponseBodyEnd",
	ConnectionReleased:   "ConnectionReleased",
	CallEnd:              "CallEnd",
	CallFailed:           "CallFailed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

type Event struct {
	Kind   Kind
	Time   time.Time
	Detail string // hostname, proxy url, negotiated protocol, ...
	Err    error  // set on DnsEnd failures and CallFailed
}

type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Recorder fans one call's events out to the listeners registered on the
// client. The listener slice is snapshotted at call start, so registering
// listeners concurrently with in-flight calls is safe.
type Recorder struct {
	listeners []Listener
}

func NewRecorder(listeners []Listener) *Recorder {
	return &Recorder{listeners: listeners}
}

func (r *Recorder) Emit(k Kind, detail string, err error) {
	if r == nil || len(r.listeners) == 0 {
		return
	}
	e := Event{Kind: k, Time: time.Now(), Detail: detail, Err: err}
	for _, l := range r.listeners {
		l.OnEvent(e)
	}
}

// this type should not be used outside this file.
// prevents recorder-less contexts from iterating through all keys
type recorderCtx struct {
	context.Context
	rec *Recorder
}

var recorderCtxKey = &recorderCtx{nil, nil} // non-nil pointer to any object, definitely unique

func (c recorderCtx) Value(key interface{}) interface{} {
	if key == recorderCtxKey {
		return c.rec
	}
	return c.Context.Value(key)
}

// With attaches the call's recorder to ctx so components below the
// executor (the dialer in particular) can emit into the same stream.
func With(ctx context.Context, rec *Recorder) context.Context {
	return recorderCtx{ctx, rec}
}

// Emit emits into the recorder carried by ctx, if any.
func Emit(ctx context.Context, k Kind, detail string, err error) {
	if rec, ok := ctx.Value(recorderCtxKey).(*Recorder); ok {
		rec.Emit(k, detail, err)
	}
}
