// Package executor forwards accepted OGC requests to the MapServer endpoint
// and streams the response back.
package executor

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/ECCC-CCCS/geomet-climate/internal/core/model"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/ogc"
	mylog "github.com/ECCC-CCCS/geomet-climate/internal/logger"
)

type Interface interface {
	Forward(w http.ResponseWriter, r *http.Request, req model.OWSRequest, mapfile string)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	msURL    *url.URL
	startNow func() time.Time // for tests
}

// New targets the MapServer CGI (or FastCGI front) at mapserv.
func New(logger *slog.Logger, client *http.Client, mapserv string) (*Executor, error) {
	u, err := url.Parse(mapserv)
	if err != nil {
		return nil, fmt.Errorf("parse mapserver url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mapserver url %q must be absolute", mapserv)
	}
	return &Executor{
		logger:   logger,
		client:   client,
		msURL:    u,
		startNow: time.Now,
	}, nil
}

// Forward proxies req to MapServer with map=mapfile. WCS GetCoverage
// downloads get a Content-Disposition filename unless MapServer answered
// with an XML exception.
func (e *Executor) Forward(w http.ResponseWriter, r *http.Request, req model.OWSRequest, mapfile string) {
	params := ogc.ForwardQuery(req.Query, mapfile)
	start := e.startNow()

	rt := http.RoundTripper(http.DefaultTransport)
	if e.client != nil && e.client.Transport != nil {
		rt = e.client.Transport
	}

	proxy := &httputil.ReverseProxy{
		Transport: rt,

		Rewrite: func(p *httputil.ProxyRequest) {
			p.Out.URL.Scheme = e.msURL.Scheme
			p.Out.URL.Host = e.msURL.Host
			p.Out.URL.Path = e.msURL.Path
			p.Out.URL.RawPath = e.msURL.EscapedPath()
			p.Out.URL.RawQuery = params.Encode()
			p.Out.Host = e.msURL.Host
			p.SetXForwarded()
			if id := mylog.RequestID(p.In.Context()); id != "" {
				p.Out.Header.Set("X-Request-ID", id)
			}
		},

		ModifyResponse: func(resp *http.Response) error {
			dur := time.Since(start)
			e.logger.DebugContext(resp.Request.Context(), "forward done",
				"status", resp.StatusCode,
				"duration", dur.String())
			observability.ObserveUpstreamLatency("mapserver", dur.Seconds())

			ct := resp.Header.Get("Content-Type")
			if req.Service == "WCS" && req.Is("GetCoverage") && !strings.HasPrefix(ct, "text/xml") {
				if name := ogc.CoverageFilename(req.Layer, req.Format); name != "" {
					resp.Header.Set("Content-Disposition", `attachment; filename="`+name+`"`)
				}
			}
			return nil
		},

		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			e.logger.Error("reverse proxy error", "err", err)
			http.Error(w, "upstream proxy error: "+err.Error(), http.StatusBadGateway)
		},
	}

	e.logger.Debug("forward OWS request",
		"service", req.Service,
		"request", req.Request,
		"layer", req.Layer,
		"mapfile", mapfile)

	proxy.ServeHTTP(w, r)
}
