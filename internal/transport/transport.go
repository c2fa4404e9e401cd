package transport

import (
	"context"
	"io"

	"github.com/loulikong/okhttp/internal/http"
)

type Transport interface {
	WriteHeader(ctx context.Context, w io.Writer, req *http.PreparedRequest) error
	WriteBody(ctx context.Context, w io.Writer, req *http.PreparedRequest) error
	Read(ctx context.Context, r io.Reader, req *http.PreparedRequest, resp *http.Response) error
}
