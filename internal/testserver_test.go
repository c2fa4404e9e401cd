package internal_test

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loulikong/okhttp/internal/events"
	"github.com/loulikong/okhttp/internal/pinning"
)

// testCA is a throwaway issuing authority plus a leaf for 127.0.0.1.
type testCA struct {
	caCert *x509.Certificate
	roots  *x509.CertPool
	leaf   tls.Certificate
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "okhttp test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:     []string{"localhost"},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(caCert)
	return &testCA{
		caCert: caCert,
		roots:  roots,
		leaf: tls.Certificate{
			Certificate: [][]byte{leafDER, caDER},
			PrivateKey:  leafKey,
		},
	}
}

// caPin returns the "sha256/<base64>" pin of the issuing key, the pin a
// correctly configured client would register.
func (ca *testCA) caPin() string {
	p := pinning.Pin{Hash: pinning.HashOf(ca.caCert)}
	return p.String()
}

const defaultReply = "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nabc"

// testServer answers every well-formed HTTP/1.1 request on a connection
// with a fixed reply (200 and the 3-byte body "abc" unless overridden),
// keeping the connection open for reuse. With hang set it reads the
// request and never answers; with dropAfterReply set it writes the reply
// once and closes the connection.
type testServer struct {
	ln   net.Listener
	hang bool

	mu             sync.Mutex
	reply          string
	dropAfterReply bool

	wg sync.WaitGroup
}

func (s *testServer) setReply(reply string, dropAfter bool) {
	s.mu.Lock()
	s.reply, s.dropAfterReply = reply, dropAfter
	s.mu.Unlock()
}

func (s *testServer) getReply() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply, s.dropAfterReply
}

func startServer(t *testing.T, tlsCfg *tls.Config, hang bool) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s := &testServer{ln: ln, hang: hang, reply: defaultReply}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *testServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *testServer) serve(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		sawRequest := false
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if line == "\r\n" || line == "\n" {
				break
			}
			sawRequest = true
		}
		if !sawRequest {
			return
		}
		if s.hang {
			select {} // hold the request forever, the client must cancel
		}
		reply, dropAfter := s.getReply()
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
		if dropAfter {
			return
		}
	}
}

func (s *testServer) close() {
	s.ln.Close()
}

func (s *testServer) addr() string {
	return s.ln.Addr().String()
}

// recordListener collects one call's event stream for order assertions.
type recordListener struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recordListener) OnEvent(e events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, e)
	r.mu.Unlock()
}

func (r *recordListener) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.evs))
	for i, e := range r.evs {
		out[i] = e.Kind
	}
	return out
}

func (r *recordListener) detailOf(k events.Kind) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.evs {
		if e.Kind == k {
			return e.Detail
		}
	}
	return ""
}

func (r *recordListener) reset() {
	r.mu.Lock()
	r.evs = nil
	r.mu.Unlock()
}
