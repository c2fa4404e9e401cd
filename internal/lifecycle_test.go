package internal_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loulikong/okhttp/internal"
	"github.com/loulikong/okhttp/internal/dialer"
	"github.com/loulikong/okhttp/internal/events"
	model "github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/pinning"
	"github.com/loulikong/okhttp/internal/policy"
)

var missSequence = []events.Kind{
	events.CallStart,
	events.ProxySelectStart, events.ProxySelectEnd,
	events.DNSStart, events.DNSEnd,
	events.ConnectStart,
	events.SecureConnectStart, events.SecureConnectEnd,
	events.ConnectEnd,
	events.ConnectionAcquired,
	events.RequestHeadersStart, events.RequestHeadersEnd,
	events.ResponseHeadersStart, events.ResponseHeadersEnd,
	events.ResponseBodyStart, events.ResponseBodyEnd,
	events.ConnectionReleased,
	events.CallEnd,
}

var hitSequence = []events.Kind{
	events.CallStart,
	events.ProxySelectStart, events.ProxySelectEnd,
	events.ConnectionAcquired,
	events.RequestHeadersStart, events.RequestHeadersEnd,
	events.ResponseHeadersStart, events.ResponseHeadersEnd,
	events.ResponseBodyStart, events.ResponseBodyEnd,
	events.ConnectionReleased,
	events.CallEnd,
}

func newTLSClient(t *testing.T, ca *testCA, pinner *pinning.Pinner) (*internal.Client, *recordListener) {
	t.Helper()
	cl := &internal.Client{}
	cl.SetDialer(&dialer.CoreDialer{
		TLSConfig: &dialer.TLSConfig{
			Base:   &tls.Config{RootCAs: ca.roots},
			Pinner: pinner,
		},
	})
	rec := &recordListener{}
	cl.OnEvent(rec)
	return cl, rec
}

func get(t *testing.T, cl *internal.Client, url string) (string, error) {
	t.Helper()
	resp, err := cl.CtxDo(context.Background(), &model.Request{Method: "GET", URL: url})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	require.Equal(t, 200, resp.StatusCode)
	return string(b), nil
}

func TestEventSequenceNewConnection(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	body, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	require.Equal(t, "abc", body)
	require.Equal(t, missSequence, rec.kinds())
}

func TestEventSequencePooledConnection(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	_, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	rec.reset()

	body, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	require.Equal(t, "abc", body)
	require.Equal(t, hitSequence, rec.kinds())
	require.Equal(t, 1, cl.ConnCount())
}

func TestEventSequenceRepeatable(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	_, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	rec.reset()

	// identical repeated calls produce identical sequences
	var prev []events.Kind
	for i := 0; i < 3; i++ {
		_, err := get(t, cl, "https://"+srv.addr())
		require.NoError(t, err)
		if prev != nil {
			require.Equal(t, prev, rec.kinds())
		}
		prev = rec.kinds()
		rec.reset()
	}
}

func TestChunkedResponseConnectionReuse(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	srv.setReply("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"+
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n", false)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	body, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	require.Equal(t, "hello world", body)
	require.Equal(t, missSequence, rec.kinds())
	rec.reset()

	// the chunked terminator must not linger on the socket, the second
	// call reuses the parked connection
	body, err = get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	require.Equal(t, "hello world", body)
	require.Equal(t, hitSequence, rec.kinds())
	require.Equal(t, 1, cl.ConnCount())
}

func TestBodylessResponseReusableAfterClose(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	srv.setReply("HTTP/1.1 204 No Content\r\n\r\n", false)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	resp, err := cl.CtxDo(context.Background(), &model.Request{Method: "GET", URL: "https://" + srv.addr()})
	require.NoError(t, err)
	require.Equal(t, 204, resp.StatusCode)
	// closing an unread empty body must not cost the connection
	require.NoError(t, resp.Body.Close())

	kinds := rec.kinds()
	require.Equal(t, events.CallEnd, kinds[len(kinds)-1])
	require.Equal(t, 1, cl.ConnCount())
	rec.reset()

	resp, err = cl.CtxDo(context.Background(), &model.Request{Method: "GET", URL: "https://" + srv.addr()})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, hitSequence, rec.kinds())
	require.Equal(t, 1, cl.ConnCount())
}

func TestServerDisconnectMidBody(t *testing.T) {
	srv := startServer(t, nil, false)
	srv.setReply("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc", true)

	cl := &internal.Client{}
	cl.SetDialer(&dialer.CoreDialer{})
	defer cl.Shutdown()
	rec := &recordListener{}
	cl.OnEvent(rec)

	_, err := get(t, cl, "http://"+srv.addr())
	var ioErr *model.ConnectionIOError
	require.ErrorAs(t, err, &ioErr)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	kinds := rec.kinds()
	require.Equal(t, events.CallFailed, kinds[len(kinds)-1])
	require.Contains(t, kinds, events.ConnectionReleased)
	require.Equal(t, 0, cl.ConnCount())
}

func TestUntrustedCertificate(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)

	// a client without the test CA in its roots
	cl := &internal.Client{}
	cl.SetDialer(&dialer.CoreDialer{TLSConfig: &dialer.TLSConfig{}})
	defer cl.Shutdown()
	rec := &recordListener{}
	cl.OnEvent(rec)

	_, err := get(t, cl, "https://"+srv.addr())
	var verifyErr *model.CertificateVerificationError
	require.ErrorAs(t, err, &verifyErr)
	// generic trust failure, not a pin mismatch
	var pinErr *model.CertificatePinningError
	require.False(t, errors.As(err, &pinErr))

	kinds := rec.kinds()
	require.Equal(t, events.CallFailed, kinds[len(kinds)-1])
	require.Equal(t, 0, cl.ConnCount())
}

func TestCertificatePinningMatch(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	host, _, _ := splitAddr(srv.addr())
	pinner, err := pinning.New(map[string][]string{host: {ca.caPin()}})
	require.NoError(t, err)
	cl, _ := newTLSClient(t, ca, pinner)
	defer cl.Shutdown()

	body, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	require.Equal(t, "abc", body)
}

func TestCertificatePinningMismatch(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	host, _, _ := splitAddr(srv.addr())
	// well-formed pin, wrong key
	bogus := pinning.Pin{Hash: [32]byte{0xde, 0xad}}.String()
	pinner, err := pinning.New(map[string][]string{host: {bogus}})
	require.NoError(t, err)
	cl, rec := newTLSClient(t, ca, pinner)
	defer cl.Shutdown()

	_, err = get(t, cl, "https://"+srv.addr())
	var pinErr *model.CertificatePinningError
	require.ErrorAs(t, err, &pinErr)
	require.Equal(t, host, pinErr.Host)

	kinds := rec.kinds()
	require.Equal(t, events.CallFailed, kinds[len(kinds)-1])
	require.NotContains(t, kinds, events.RequestHeadersStart)
	require.Equal(t, 0, cl.ConnCount())
}

func TestEvictAllAndSessionResumption(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	_, err := get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	first := rec.detailOf(events.SecureConnectEnd)
	require.NotEmpty(t, first)
	require.Equal(t, 1, cl.ConnCount())

	require.Equal(t, 1, cl.EvictAll())
	require.Equal(t, 0, cl.ConnCount())
	rec.reset()

	_, err = get(t, cl, "https://"+srv.addr())
	require.NoError(t, err)
	// a fresh connection was established
	require.Equal(t, missSequence, rec.kinds())
	// but it resumed the previous TLS session
	require.Equal(t, first, rec.detailOf(events.SecureConnectEnd))
}

func TestCleartextPolicy(t *testing.T) {
	srv := startServer(t, nil, false)

	t.Run("Blocked", func(t *testing.T) {
		cl := &internal.Client{}
		cl.SetDialer(&dialer.CoreDialer{Cleartext: policy.CleartextBlocked})
		defer cl.Shutdown()

		_, err := cl.CtxDo(context.Background(), &model.Request{Method: "GET", URL: "http://" + srv.addr()})
		var blocked *model.CleartextBlockedError
		require.ErrorAs(t, err, &blocked)
		require.Equal(t, 0, cl.ConnCount())
	})

	t.Run("Permitted", func(t *testing.T) {
		cl := &internal.Client{}
		cl.SetDialer(&dialer.CoreDialer{})
		defer cl.Shutdown()

		body, err := get(t, cl, "http://"+srv.addr())
		require.NoError(t, err)
		require.Equal(t, "abc", body)
	})
}

func TestUnknownHost(t *testing.T) {
	cl := &internal.Client{}
	cl.SetDialer(&dialer.CoreDialer{})
	defer cl.Shutdown()
	rec := &recordListener{}
	cl.OnEvent(rec)

	_, err := cl.CtxDo(context.Background(), &model.Request{Method: "GET", URL: "http://name.invalid/"})
	var unknown *model.UnknownHostError
	require.ErrorAs(t, err, &unknown)

	var dnsEnd *events.Event
	rec.mu.Lock()
	for i := range rec.evs {
		if rec.evs[i].Kind == events.DNSEnd {
			dnsEnd = &rec.evs[i]
		}
	}
	rec.mu.Unlock()
	require.NotNil(t, dnsEnd)
	require.Error(t, dnsEnd.Err)
	kinds := rec.kinds()
	require.Equal(t, events.CallFailed, kinds[len(kinds)-1])
}

func TestLegacyModeVersionSelection(t *testing.T) {
	ca := newTestCA(t)
	// the server insists on TLS 1.3, a legacy client must fail while a
	// modern one succeeds
	srv := startServer(t, &tls.Config{
		Certificates: []tls.Certificate{ca.leaf},
		MinVersion:   tls.VersionTLS13,
	}, false)

	legacy := &internal.Client{}
	legacy.SetDialer(&dialer.CoreDialer{TLSConfig: &dialer.TLSConfig{
		Base: &tls.Config{RootCAs: ca.roots},
		Mode: dialer.ModeLegacy,
	}})
	defer legacy.Shutdown()
	_, err := get(t, legacy, "https://"+srv.addr())
	require.Error(t, err)

	modern := &internal.Client{}
	modern.SetDialer(&dialer.CoreDialer{TLSConfig: &dialer.TLSConfig{
		Base: &tls.Config{RootCAs: ca.roots},
	}})
	defer modern.Shutdown()
	body, err := get(t, modern, "https://"+srv.addr())
	require.NoError(t, err)
	require.Equal(t, "abc", body)
}

func TestConcurrentCallsShareThePool(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, false)
	cl, _ := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := get(t, cl, "https://"+srv.addr())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	// never more live connections than calls that could hold one
	count := cl.ConnCount()
	require.LessOrEqual(t, count, callers)
	require.GreaterOrEqual(t, count, 1)
}

func TestCancellationReleasesConnection(t *testing.T) {
	ca := newTestCA(t)
	srv := startServer(t, &tls.Config{Certificates: []tls.Certificate{ca.leaf}}, true)
	cl, rec := newTLSClient(t, ca, nil)
	defer cl.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := cl.CtxDo(ctx, &model.Request{Method: "GET", URL: "https://" + srv.addr()})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))

	kinds := rec.kinds()
	require.Equal(t, events.CallFailed, kinds[len(kinds)-1])
	// a cancelled call never parks its connection
	require.Equal(t, 0, cl.ConnCount())
}

func splitAddr(addr string) (host, port string, err error) {
	return net.SplitHostPort(addr)
}
