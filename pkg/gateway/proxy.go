package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/maiserv/llamagate/pkg/logging"
)

// apiPrefix is the gateway path prefix stripped before forwarding, so that
// /api/v1/... reaches llama-server as /v1/....
const apiPrefix = "/api"

// Proxy forwards requests to the llama-server process. Bodies are streamed in
// both directions without buffering; the Host header is rewritten to the
// backend's.
type Proxy struct {
	proxy *httputil.ReverseProxy
}

// NewProxy creates a reverse proxy targeting the backend at addr
// (host:port).
func NewProxy(log logging.Logger, addr string) *Proxy {
	target := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
		if rest, ok := strings.CutPrefix(r.URL.Path, apiPrefix+"/"); ok {
			r.URL.Path = "/" + rest
		}
	}

	// Flush every write so that SSE chunks reach the client as they arrive.
	proxy.FlushInterval = -1

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Errorf("error forwarding %s %s to llama-server: %v", r.Method, r.URL.Path, err)
		http.Error(w, "upstream request failed", http.StatusInternalServerError)
	}

	return &Proxy{proxy: proxy}
}

// ServeHTTP implements net/http.Handler.ServeHTTP, rewriting /api/... paths
// onto the backend.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

// ForwardTo forwards the request at an explicit upstream path, ignoring the
// incoming one.
func (p *Proxy) ForwardTo(w http.ResponseWriter, r *http.Request, upstreamPath string) {
	clone := r.Clone(r.Context())
	clone.URL.Path = upstreamPath
	clone.URL.RawPath = ""
	p.proxy.ServeHTTP(w, clone)
}
