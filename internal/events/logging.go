package events

import (
	"github.com/sirupsen/logrus"
)

// NewLoggingListener returns a listener that mirrors the event stream to a
// logrus logger at debug level. Intended for diagnostics, the library never
// installs it on its own.
func NewLoggingListener(log *logrus.Logger) Listener {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return ListenerFunc(func(e Event) {
		entry := log.WithField("event", e.Kind.String())
		if e.Detail != "" {
			entry = entry.WithField("detail", e.Detail)
		}
		if e.Err != nil {
			entry.WithError(e.Err).Debug("call event")
			return
		}
		entry.Debug("call event")
	})
}
