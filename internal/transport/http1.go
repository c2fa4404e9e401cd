package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	model "github.com/loulikong/okhttp/internal/http"
	"github.com/loulikong/okhttp/internal/transport/chunked"
)

type bodyCloser struct {
	io.Reader
	close func() error
}

func (b bodyCloser) Close() error { return b.close() }

type HTTP1 struct{}

// WriteHeader writes the request line and header block of an http 1.1
// request, e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	X-Xx-Yy: cccccc\r\n
//	\r\n
func (t HTTP1) WriteHeader(ctx context.Context, w io.Writer, r *model.PreparedRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := bufio.NewWriter(w) // default bufsize is 4096

	header.WriteString(r.Method)
	header.WriteByte(' ')
	header.WriteString(r.U.RequestURI())
	header.WriteString(" HTTP/1.1\r\n")

	header.WriteString("Host: ")
	header.WriteString(r.HeaderHost)
	header.WriteString("\r\n")
	if r.ContentLength != -1 {
		header.WriteString("Content-Length: ")
		header.WriteString(strconv.FormatInt(r.ContentLength, 10))
		header.WriteString("\r\n")
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			header.WriteString(k)
			header.WriteString(": ")
			header.WriteString(v)
			if _, err := header.WriteString("\r\n"); err != nil {
				return err
			}
		}
	}
	if _, err := header.WriteString("\r\n"); err != nil {
		return err
	}
	return header.Flush()
}

// WriteBody streams the request body, if any. The body is always closed.
func (t HTTP1) WriteBody(ctx context.Context, w io.Writer, r *model.PreparedRequest) error {
	body, err := r.GetBody()
	if err != nil {
		return err
	}
	if body == nil || body == http.NoBody {
		return nil
	}
	defer body.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ContentLength == -1 {
		cw := chunked.NewChunkedWriter(w)
		if _, err := io.Copy(cw, body); err != nil {
			return err
		}
		return cw.CloseWithTrailer(nil)
	}
	_, err = io.Copy(w, body)
	return err
}

// Read parses the status line and header block off r and wires resp.Body
// to the remaining transfer, without consuming it.
func (t HTTP1) Read(ctx context.Context, r io.Reader, req *model.PreparedRequest, resp *model.Response) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	closer := io.NopCloser
	if cr, ok := r.(io.Closer); ok {
		closer = func(r io.Reader) io.ReadCloser { return bodyCloser{r, cr.Close} }
	}
	tp := textproto.NewReader(bufio.NewReader(r))

	line, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok {
		return errors.New("malformed HTTP response")
	}
	resp.Proto = proto
	resp.Status = strings.TrimLeft(status, " ")

	statusCode, _, _ := strings.Cut(resp.Status, " ")
	if len(statusCode) != 3 {
		return errors.New("malformed HTTP status code " + statusCode)
	}
	resp.StatusCode, err = strconv.Atoi(statusCode)
	if err != nil || resp.StatusCode < 0 {
		return errors.New("malformed HTTP status code")
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if hp, ok := mimeHeader["Pragma"]; ok && len(hp) > 0 && hp[0] == "no-cache" {
		if _, presentcc := mimeHeader["Cache-Control"]; !presentcc {
			mimeHeader["Cache-Control"] = []string{"no-cache"}
		}
	}
	resp.Header = http.Header(mimeHeader)

	if req.Method == "HEAD" || resp.StatusCode == 204 || resp.StatusCode == 304 ||
		(resp.StatusCode >= 100 && resp.StatusCode < 200) ||
		(req.Method == "CONNECT" && resp.StatusCode/100 == 2) {
		resp.ContentLength = 0
		resp.Body = http.NoBody
		return nil
	}
	return t.readTransfer(tp.R, resp, closer)
}

// lengthReader reads exactly remaining bytes. A peer that closes the
// connection short of the declared Content-Length is a transport failure,
// not end of body.
type lengthReader struct {
	r         io.Reader
	remaining int64
}

func (l *lengthReader) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err = l.r.Read(p)
	l.remaining -= int64(n)
	if err == io.EOF && l.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (t HTTP1) readTransfer(r *bufio.Reader, resp *model.Response, closer func(io.Reader) io.ReadCloser) error {
	contentLens := resp.Header["Content-Length"]

	// Hardening against HTTP request smuggling, taken from standard library
	if len(contentLens) > 1 {
		// Per RFC 7230 Section 3.3.2
		first := textproto.TrimString(contentLens[0])
		for _, ct := range contentLens[1:] {
			if first != textproto.TrimString(ct) {
				return fmt.Errorf("http: message cannot contain multiple Content-Length headers; got %q", contentLens)
			}
		}

		// deduplicate Content-Length
		resp.Header.Del("Content-Length")
		resp.Header.Add("Content-Length", first)

		contentLens = resp.Header["Content-Length"]
	}

	if resp.Header.Get("Transfer-Encoding") == "chunked" {
		resp.ContentLength = -1
		resp.Body = closer(chunked.NewChunkedReader(r))
		return nil
	}

	cl := int64(-1)
	if len(contentLens) > 0 {
		n, err := strconv.ParseUint(contentLens[0], 10, 63)
		if err == nil {
			cl = int64(n)
		}
	}
	resp.ContentLength = cl
	switch {
	case cl > 0:
		resp.Body = closer(&lengthReader{r: r, remaining: cl})
	case cl == 0:
		resp.Body = http.NoBody
	default:
		// no framing information, body runs until the peer closes
		resp.Body = closer(r)
	}
	return nil
}
