package xhttp

import (
	"github.com/valyala/fasthttp"
)

// Status codes used by the built-in handlers and middlewares, re-exported
// so callers of this package never import fasthttp directly.
const (
	StatusNotFound            = fasthttp.StatusNotFound
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusInternalServerError = fasthttp.StatusInternalServerError
)

// StatusText returns the canonical reason phrase for an HTTP status code.
func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}
