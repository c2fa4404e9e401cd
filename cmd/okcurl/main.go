// okcurl is a minimal curl-alike exercising the client end to end:
// certificate pinning, cleartext policy, proxies and the lifecycle event
// stream are all reachable from the command line or the environment.
//
// Environment (loaded from .env when present):
//
//	OKCURL_PROXY            proxy url (http, https or socks5)
//	OKCURL_PINS             path to a YAML pin set
//	OKCURL_BLOCK_CLEARTEXT  "1" to refuse plain http
//	OKCURL_VERBOSE          "1" to log lifecycle events
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	okhttp "github.com/loulikong/okhttp"
)

type headerFlags []string

func (h *headerFlags) String() string     { return strings.Join(*h, ", ") }
func (h *headerFlags) Set(v string) error { *h = append(*h, v); return nil }

func main() {
	_ = godotenv.Load()

	var headers headerFlags
	method := flag.String("X", "GET", "request method")
	data := flag.String("d", "", "request body")
	timeout := flag.Duration("m", 30*time.Second, "request timeout")
	flag.Var(&headers, "H", "extra header, repeatable (Key: Value)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: okcurl [flags] <url>")
		os.Exit(2)
	}

	log := logrus.New()
	if os.Getenv("OKCURL_VERBOSE") == "1" {
		log.SetLevel(logrus.DebugLevel)
	}

	d := &okhttp.CoreDialer{}
	if os.Getenv("OKCURL_BLOCK_CLEARTEXT") == "1" {
		d.Cleartext = okhttp.CleartextBlocked
	}
	if pins := os.Getenv("OKCURL_PINS"); pins != "" {
		pinner, err := okhttp.LoadPinsFile(pins)
		if err != nil {
			log.WithError(err).Fatal("loading pin set")
		}
		d.TLSConfig = &okhttp.TLSConfig{Pinner: pinner}
	}
	if proxy := os.Getenv("OKCURL_PROXY"); proxy != "" {
		d.GetProxy = func(context.Context, *okhttp.Request) (string, error) {
			return proxy, nil
		}
	}

	cl := &okhttp.Client{}
	cl.SetDialer(d)
	cl.OnEvent(okhttp.NewLoggingListener(log))
	defer cl.Shutdown()

	hdr := http.Header{}
	for _, h := range headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			log.Fatalf("malformed header %q", h)
		}
		hdr.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}

	req := &okhttp.Request{Method: *method, URL: flag.Arg(0), Header: hdr}
	if *data != "" {
		req.Body = *data
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := cl.CtxDo(ctx, req)
	if err != nil {
		log.WithError(err).Fatal("request failed")
	}
	defer resp.Body.Close()

	fmt.Fprintln(os.Stderr, resp.Proto, resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		log.WithError(err).Fatal("reading body")
	}
}
