package okhttp

import (
	"github.com/loulikong/okhttp/internal/events"
)

// The event surface is the primary externally visible observability
// contract: every call emits an ordered stream of lifecycle events to the
// listeners registered on its client.
type Event = events.Event
type EventKind = events.Kind
type Listener = events.Listener
type ListenerFunc = events.ListenerFunc

const (
	CallStart            = events.CallStart
	ProxySelectStart     = events.ProxySelectStart
	ProxySelectEnd       = events.ProxySelectEnd
	DNSStart             = events.DNSStart
	DNSEnd               = events.DNSEnd
	ConnectStart         = events.ConnectStart
	SecureConnectStart   = events.SecureConnectStart
	SecureConnectEnd     = events.SecureConnectEnd
	ConnectEnd           = events.ConnectEnd
	ConnectionAcquired   = events.ConnectionAcquired
	RequestHeadersStart  = events.RequestHeadersStart
	RequestHeadersEnd    = events.RequestHeadersEnd
	ResponseHeadersStart = events.ResponseHeadersStart
	ResponseHeadersEnd   = events.ResponseHeadersEnd
	ResponseBodyStart    = events.ResponseBodyStart
	ResponseBodyEnd      = events.ResponseBodyEnd
	ConnectionReleased   = events.ConnectionReleased
	CallEnd              = events.CallEnd
	CallFailed           = events.CallFailed
)

// NewLoggingListener mirrors a client's event stream to a logrus logger.
var NewLoggingListener = events.NewLoggingListener
