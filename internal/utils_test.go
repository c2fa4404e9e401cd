package internal_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/loulikong/okhttp/internal"
	"github.com/loulikong/okhttp/internal/http"
)

type CombinedReadWriteCloser struct {
	io.Reader
	io.Writer
	io.Closer
}

type TestDialer struct {
	io.ReadWriteCloser
}

// Dial implements internal.Dialer.
func (t *TestDialer) Dial(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
	return t.ReadWriteCloser, nil
}

// Unwrap implements internal.Dialer.
func (t *TestDialer) Unwrap() http.Dialer {
	return nil
}

func SendSingleRequest(t *testing.T, req *http.Request) io.Reader {
	readResponse, writeResponse := io.Pipe()
	go io.Copy(writeResponse, strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))

	readRequest, writeRequest := io.Pipe()
	c := &internal.Client{}
	c.UseDialer(func(internal.Dialer) internal.Dialer {
		return &TestDialer{CombinedReadWriteCloser{
			Reader: readResponse,
			Writer: writeRequest,
			Closer: writeRequest,
		}}
	})
	go func() {
		resp, err := c.CtxDo(context.Background(), req)
		if err != nil {
			t.Error(err)
			return
		}
		resp.Body.Close()
	}()
	return readRequest
}
