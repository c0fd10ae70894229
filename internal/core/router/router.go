// Package router dispatches OGC requests: cached documents are served from
// disk, TIME is validated, everything else goes to MapServer.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/executor"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/model"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/ogc"
	"github.com/ECCC-CCCS/geomet-climate/internal/emitter"
	"github.com/ECCC-CCCS/geomet-climate/internal/extentstore"
	mylog "github.com/ECCC-CCCS/geomet-climate/internal/logger"
	"github.com/ECCC-CCCS/geomet-climate/internal/validator"
)

// LayerInfo answers catalog questions the gateway needs without a mapfile.
type LayerInfo interface {
	ClassGroup(layer string) (string, bool)
}

// CatalogLayers adapts a loaded catalog to LayerInfo.
type CatalogLayers struct{ Catalog *catalog.Catalog }

func (c CatalogLayers) ClassGroup(layer string) (string, bool) {
	if c.Catalog == nil {
		return "", false
	}
	l, err := c.Catalog.Lookup(layer)
	if err != nil || l.ClassGroup == "" {
		return "", false
	}
	return l.ClassGroup, true
}

type TimeValidator interface {
	Validate(extent, requested string) validator.Result
}

type Deps struct {
	BaseDir   string
	Layers    LayerInfo
	Extents   extentstore.Source
	Validator TimeValidator
	Exec      executor.Interface
}

type Handler struct {
	logger *slog.Logger
	deps   Deps
}

func New(logger *slog.Logger, deps Deps) *Handler {
	return &Handler{logger: logger, deps: deps}
}

func (h *Handler) mapfileDir() string { return filepath.Join(h.deps.BaseDir, "mapfile") }

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// safeName rejects layer names that would leave the mapfile directory.
func safeName(s string) bool {
	return s != "" && !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}

// selectMapfile prefers the per-layer mapfile of a single-layer request and
// falls back to the whole-catalog mapfile of the request language.
func (h *Handler) selectMapfile(req model.OWSRequest) string {
	svc, err := compiler.ParseService(req.Service)
	if err != nil {
		return ""
	}
	if req.Single() && safeName(req.Layer) {
		p := filepath.Join(h.mapfileDir(), emitter.MapfileName(svc, req.Layer))
		if exists(p) {
			return p
		}
	}
	p := filepath.Join(h.mapfileDir(), emitter.CatalogMapfileName(svc, req.Lang))
	if exists(p) {
		return p
	}
	return ""
}

func capabilitiesFile(service string, lang catalog.Lang) string {
	version := "1.3.0"
	if service == "WCS" {
		version = "2.0.1"
	}
	return "geomet-climate-" + service + "-" + version + "-capabilities-" + string(lang) + ".xml"
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	service := ""
	defer func() {
		observability.ObserveHTTP(r.Method, "/ows", service, sw.code, time.Since(start).Seconds())
	}()

	if r.URL.RawQuery == "" {
		writeXML(sw, "text/xml", http.StatusOK, ogc.Exception("MissingParameterValue", "request", ogc.MissingRequestText))
		return
	}

	req := ogc.ParseRequest(r.URL.Query())
	service = req.Service
	ctx := mylog.WithService(r.Context(), req.Service)
	ctx = mylog.WithLayer(ctx, req.Layer)
	r = r.WithContext(ctx)
	h.logger.DebugContext(ctx, "ows request", "request", req.Request, "lang", string(req.Lang))

	mapfile := h.selectMapfile(req)
	if mapfile == "" {
		writeXML(sw, "application/xml", http.StatusBadRequest, ogc.Exception("", "", "Unsupported service"))
		return
	}

	switch {
	case req.Is("GetCapabilities"):
		if req.Layer == "" {
			cached := filepath.Join(h.mapfileDir(), capabilitiesFile(req.Service, req.Lang))
			if h.serveFile(sw, cached, "application/xml") {
				return
			}
		} else if req.Lang != catalog.English {
			// per-layer mapfiles default to English
			svc, _ := compiler.ParseService(req.Service)
			if p := filepath.Join(h.mapfileDir(), emitter.CatalogMapfileName(svc, req.Lang)); exists(p) {
				mapfile = p
			}
		}

	case req.Is("GetLegendGraphic") && req.Layer != "":
		style := req.Style
		if style == "" && h.deps.Layers != nil {
			style, _ = h.deps.Layers.ClassGroup(req.Layer)
		}
		if safeName(style) {
			cached := filepath.Join(h.deps.BaseDir, "legends", style+"-"+string(req.Lang)+".png")
			if h.serveFile(sw, cached, "image/png") {
				return
			}
		}

	default:
		if req.Time != "" && req.Single() {
			if res, checked := h.checkTime(ctx, req); checked && !res.Accepted() {
				h.logger.InfoContext(ctx, "time rejected", "time", req.Time, "code", string(res.Code))
				writeXML(sw, "text/xml", http.StatusOK, ogc.Exception(string(res.Code), "time", res.Message))
				return
			}
		}
	}

	h.deps.Exec.Forward(sw, r, req, mapfile)
}

// checkTime validates TIME when the layer has a time dimension. Layers
// without an extent, or an unreachable store, leave TIME to MapServer.
func (h *Handler) checkTime(ctx context.Context, req model.OWSRequest) (validator.Result, bool) {
	if h.deps.Extents == nil || h.deps.Validator == nil {
		return validator.Result{}, false
	}
	extent, err := h.deps.Extents.Extent(ctx, req.Service, req.Layer)
	if errors.Is(err, extentstore.ErrNotFound) {
		return validator.Result{}, false
	}
	if err != nil {
		h.logger.WarnContext(ctx, "extent lookup failed; time not validated", "err", err)
		return validator.Result{}, false
	}
	return h.deps.Validator.Validate(extent, req.Time), true
}

func (h *Handler) serveFile(w http.ResponseWriter, path, contentType string) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
	return true
}

func writeXML(w http.ResponseWriter, contentType string, code int, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
