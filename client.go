package okhttp

import (
	"net/http"

	"github.com/loulikong/okhttp/internal"
	model "github.com/loulikong/okhttp/internal/http"
)

type Client = internal.Client
type Header = http.Header
type Request = model.Request
type PreparedRequest = model.PreparedRequest
type Response = model.Response
type Destination = model.Destination

type Handler = internal.Handler
type Middleware = internal.Middleware
