package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ECCC-CCCS/geomet-climate/internal/core/model"
	"github.com/ECCC-CCCS/geomet-climate/internal/extentstore"
	"github.com/ECCC-CCCS/geomet-climate/internal/validator"
)

type forwarded struct {
	req     model.OWSRequest
	mapfile string
}

type fakeExec struct{ calls []forwarded }

func (f *fakeExec) Forward(w http.ResponseWriter, _ *http.Request, req model.OWSRequest, mapfile string) {
	f.calls = append(f.calls, forwarded{req: req, mapfile: mapfile})
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("mapserver"))
}

type fakeLayers map[string]string

func (f fakeLayers) ClassGroup(layer string) (string, bool) {
	g, ok := f[layer]
	return g, ok
}

type brokenStore struct{}

func (brokenStore) Extent(context.Context, string, string) (string, error) {
	return "", errors.New("connection refused")
}

const sit = "CMIP5.SIT.RCP45.YEAR.ANO_PCTL50"

func touch(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	base string
	exec *fakeExec
	h    *Handler
}

func newFixture(t *testing.T, extents extentstore.Source) fixture {
	t.Helper()
	base := t.TempDir()
	mf := filepath.Join(base, "mapfile")
	touch(t, filepath.Join(mf, "geomet-climate-WMS-en.map"), "MAP END")
	touch(t, filepath.Join(mf, "geomet-climate-WMS-fr.map"), "MAP END")
	touch(t, filepath.Join(mf, "geomet-climate-WCS-en.map"), "MAP END")
	touch(t, filepath.Join(mf, "geomet-climate-WMS-"+sit+".map"), "MAP END")
	touch(t, filepath.Join(mf, "geomet-climate-WCS-"+sit+".map"), "MAP END")

	if extents == nil {
		mem := extentstore.NewMemory()
		_ = mem.Put(context.Background(), "WMS", map[string]string{sit: "2006-01/2100-01/P1Y"})
		_ = mem.Put(context.Background(), "WCS", map[string]string{sit: "2006-01/2100-01/P1Y"})
		extents = mem
	}
	v, err := validator.New(16)
	if err != nil {
		t.Fatal(err)
	}
	exec := &fakeExec{}
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		BaseDir:   base,
		Layers:    fakeLayers{sit: "SICETHKN_ANOMALY"},
		Extents:   extents,
		Validator: v,
		Exec:      exec,
	})
	return fixture{base: base, exec: exec, h: h}
}

func (f fixture) get(t *testing.T, query string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/"
	if query != "" {
		target += "?" + query
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestServeHTTP_EmptyQueryIsMissingParameter(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.get(t, "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/xml") {
		t.Fatalf("status=%d ct=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	body := rr.Body.String()
	if !strings.Contains(body, `code="MissingParameterValue"`) || !strings.Contains(body, `locator="request"`) {
		t.Fatalf("body=%s", body)
	}
}

func TestServeHTTP_UnsupportedService(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"SERVICE=WFS&REQUEST=GetCapabilities", "SERVICE=WCS&REQUEST=GetCapabilities&LANG=fr"} {
		rr := f.get(t, q)
		if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "Unsupported service") {
			t.Fatalf("%s: status=%d body=%s", q, rr.Code, rr.Body.String())
		}
	}
	if len(f.exec.calls) != 0 {
		t.Fatalf("forwarded %d requests", len(f.exec.calls))
	}
}

func TestServeHTTP_MapfileSelection(t *testing.T) {
	f := newFixture(t, nil)
	mf := filepath.Join(f.base, "mapfile")
	tests := []struct {
		query string
		want  string
	}{
		{"SERVICE=WMS&REQUEST=GetMap&LAYERS=" + sit, "geomet-climate-WMS-" + sit + ".map"},
		{"REQUEST=GetMap&LAYERS=" + sit, "geomet-climate-WMS-" + sit + ".map"},
		{"SERVICE=WMS&REQUEST=GetMap&LAYERS=" + sit + ",OTHER", "geomet-climate-WMS-en.map"},
		{"SERVICE=WMS&REQUEST=GetMap&LAYERS=UNKNOWN&LANG=fr", "geomet-climate-WMS-fr.map"},
		{"SERVICE=WMS&REQUEST=GetMap&LAYERS=../../etc/passwd", "geomet-climate-WMS-en.map"},
		{"SERVICE=WCS&REQUEST=DescribeCoverage&COVERAGEID=" + sit, "geomet-climate-WCS-" + sit + ".map"},
		{"SERVICE=WMS&REQUEST=GetCapabilities&LAYERS=" + sit + "&LANG=fr", "geomet-climate-WMS-fr.map"},
	}
	for _, tt := range tests {
		f.exec.calls = nil
		rr := f.get(t, tt.query)
		if rr.Code != http.StatusOK || len(f.exec.calls) != 1 {
			t.Fatalf("%s: status=%d calls=%d", tt.query, rr.Code, len(f.exec.calls))
		}
		if got := f.exec.calls[0].mapfile; got != filepath.Join(mf, tt.want) {
			t.Fatalf("%s: mapfile=%s want %s", tt.query, got, tt.want)
		}
	}
}

func TestServeHTTP_TimeValidation(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.get(t, "SERVICE=WMS&REQUEST=GetMap&LAYERS="+sit+"&TIME=2053")
	if len(f.exec.calls) != 1 || rr.Body.String() != "mapserver" {
		t.Fatalf("accepted time not forwarded: %s", rr.Body.String())
	}

	rr = f.get(t, "SERVICE=WMS&REQUEST=GetMap&LAYERS="+sit+"&TIME=2053-06")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `code="InvalidDimensionValue"`) || !strings.Contains(rr.Body.String(), `locator="time"`) {
		t.Fatalf("format rejection: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "expected format: YYYY") {
		t.Fatalf("message missing: %s", rr.Body.String())
	}

	rr = f.get(t, "SERVICE=WCS&REQUEST=GetCoverage&COVERAGEID="+sit+"&TIME=2200")
	if !strings.Contains(rr.Body.String(), `code="NoMatch"`) {
		t.Fatalf("range rejection: %s", rr.Body.String())
	}
	if len(f.exec.calls) != 1 {
		t.Fatalf("rejected requests were forwarded: %d", len(f.exec.calls))
	}
}

func TestServeHTTP_TimeSkippedWithoutExtent(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.get(t, "SERVICE=WMS&REQUEST=GetMap&LAYERS=CLIMATE.STATIONS&TIME=garbage")
	_ = f.get(t, "SERVICE=WMS&REQUEST=GetMap&LAYERS="+sit+",OTHER&TIME=garbage")
	if len(f.exec.calls) != 2 {
		t.Fatalf("calls=%d want 2", len(f.exec.calls))
	}
}

func TestServeHTTP_ExtentStoreDownForwards(t *testing.T) {
	f := newFixture(t, brokenStore{})
	_ = f.get(t, "SERVICE=WMS&REQUEST=GetMap&LAYERS="+sit+"&TIME=2200")
	if len(f.exec.calls) != 1 {
		t.Fatalf("calls=%d want 1", len(f.exec.calls))
	}
}

func TestServeHTTP_CachedCapabilities(t *testing.T) {
	f := newFixture(t, nil)
	touch(t, filepath.Join(f.base, "mapfile", "geomet-climate-WMS-1.3.0-capabilities-fr.xml"), "<WMS_Capabilities/>")

	rr := f.get(t, "SERVICE=WMS&REQUEST=GetCapabilities&LANG=fr")
	if rr.Body.String() != "<WMS_Capabilities/>" || rr.Header().Get("Content-Type") != "application/xml" {
		t.Fatalf("body=%q ct=%q", rr.Body.String(), rr.Header().Get("Content-Type"))
	}
	_ = f.get(t, "SERVICE=WMS&REQUEST=GetCapabilities")
	if len(f.exec.calls) != 1 {
		t.Fatalf("uncached english capabilities not forwarded")
	}
}

func TestServeHTTP_CachedLegend(t *testing.T) {
	f := newFixture(t, nil)
	touch(t, filepath.Join(f.base, "legends", "SICETHKN_ANOMALY-en.png"), "PNG")
	touch(t, filepath.Join(f.base, "legends", "CUSTOM-fr.png"), "PNG-FR")

	rr := f.get(t, "SERVICE=WMS&REQUEST=GetLegendGraphic&LAYER="+sit)
	if rr.Body.String() != "PNG" || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("body=%q", rr.Body.String())
	}
	rr = f.get(t, "SERVICE=WMS&REQUEST=GetLegendGraphic&LAYER="+sit+"&STYLE=CUSTOM&LANG=fr")
	if rr.Body.String() != "PNG-FR" {
		t.Fatalf("body=%q", rr.Body.String())
	}
	if len(f.exec.calls) != 0 {
		t.Fatalf("cached legends forwarded")
	}
	_ = f.get(t, "SERVICE=WMS&REQUEST=GetLegendGraphic&LAYER="+sit+"&STYLE=MISSING")
	if len(f.exec.calls) != 1 {
		t.Fatalf("missing legend not forwarded")
	}
}
