package dialer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/netpool"
	"github.com/loulikong/okhttp/internal/policy"
)

// Dialers handle pretty much everything related to the actual connection:
// proxy selection, name resolution, the cleartext policy gate, the TLS
// handshake with certificate pinning and session reuse, and the connection
// pool behind it all.
type Dialer = http.Dialer

// CoreDialer is the default implementation of the [Dialer] interface. It
// would be used by a zero value Client. Configuration fields are treated
// as immutable once the dialer serves its first call, deriving a variant
// goes through Clone.
type CoreDialer struct {
	ResolveConfig *ResolveConfig
	ProxyConfig   *ProxyConfig

	TLSConfig *TLSConfig

	// Cleartext gates plain http requests before any socket I/O.
	Cleartext policy.Cleartext

	// DialRate bounds new-connection churn per destination. Zero means
	// unlimited.
	DialRate  rate.Limit
	DialBurst int

	GetProxy func(ctx context.Context, r *http.Request) (string, error)

	once sync.Once
	pool *netpool.Group

	mu       sync.Mutex
	sessions map[string]*session
	limiters map[string]*rate.Limiter
}

const (
	defaultMaxConnsPerHost = 100
	defaultMaxIdlePerHost  = 80
)

// Pool returns the dialer's connection pool, creating it on first use.
func (d *CoreDialer) Pool() *netpool.Group {
	d.once.Do(func() {
		if d.pool == nil {
			d.pool = netpool.NewGroup(defaultMaxConnsPerHost, defaultMaxIdlePerHost)
		}
	})
	return d.pool
}

// identity folds everything trust-relevant into the pool partition key, so
// clients with different pinning or version policies never share sockets.
func (d *CoreDialer) identity() string {
	return fmt.Sprintf("v%d|%s", d.TLSConfig.mode(), d.TLSConfig.pinFingerprint())
}

// Clone derives an independent dialer sharing no mutable state with the
// original: the connection pool, session cache and limiters start empty.
func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		ResolveConfig: d.ResolveConfig.Clone(),
		ProxyConfig:   d.ProxyConfig.Clone(),
		TLSConfig:     d.TLSConfig.Clone(),
		Cleartext:     d.Cleartext,
		DialRate:      d.DialRate,
		DialBurst:     d.DialBurst,
		GetProxy:      d.GetProxy,
	}
}

func (d *CoreDialer) Unwrap() Dialer { return nil }

// throttle waits for dial permission when a dial rate is configured.
// Limiters are per destination, matching the pool partitioning.
func (d *CoreDialer) throttle(ctx context.Context, dest http.Destination) error {
	if d.DialRate == 0 {
		return nil
	}
	d.mu.Lock()
	if d.limiters == nil {
		d.limiters = map[string]*rate.Limiter{}
	}
	lim, ok := d.limiters[dest.HostPort()]
	if !ok {
		burst := d.DialBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(d.DialRate, burst)
		d.limiters[dest.HostPort()] = lim
	}
	d.mu.Unlock()
	return lim.Wait(ctx)
}
