package executor

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ECCC-CCCS/geomet-climate/internal/core/httpclient"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/ogc"
	mylog "github.com/ECCC-CCCS/geomet-climate/internal/logger"
)

type upstreamRecorder struct {
	mu          sync.Mutex
	lastPath    string
	lastQuery   url.Values
	lastReqID   string
	contentType string
}

func (u *upstreamRecorder) handler(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.lastPath = r.URL.Path
	u.lastQuery = r.URL.Query()
	u.lastReqID = r.Header.Get("X-Request-ID")
	ct := u.contentType
	u.mu.Unlock()

	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("payload"))
}

func newExec(t *testing.T, rec *upstreamRecorder) *Executor {
	t.Helper()
	up := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(up.Close)
	exec, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(5*time.Second), up.URL+"/cgi-bin/mapserv")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return exec
}

func serve(exec *Executor, rawQuery, mapfile string) *http.Response {
	q, _ := url.ParseQuery(rawQuery)
	req := ogc.ParseRequest(q)
	rr := httptest.NewRecorder()
	exec.Forward(rr, httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil), req, mapfile)
	return rr.Result()
}

func TestForward_SetsMapfileAndKeepsParams(t *testing.T) {
	rec := &upstreamRecorder{contentType: "image/png"}
	exec := newExec(t, rec)

	res := serve(exec, "SERVICE=WMS&REQUEST=GetMap&LAYERS=CMIP5.SIT&TIME=2053&map=/tmp/evil.map", "/opt/geomet-climate/mapfile/geomet-climate-WMS-CMIP5.SIT.map")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", res.StatusCode)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.lastPath != "/cgi-bin/mapserv" {
		t.Fatalf("path=%q", rec.lastPath)
	}
	if got := rec.lastQuery["map"]; len(got) != 1 || got[0] != "/opt/geomet-climate/mapfile/geomet-climate-WMS-CMIP5.SIT.map" {
		t.Fatalf("map=%v", got)
	}
	if rec.lastQuery.Get("TIME") != "2053" || rec.lastQuery.Get("LAYERS") != "CMIP5.SIT" {
		t.Fatalf("query=%v", rec.lastQuery)
	}
	if res.Header.Get("Connection") != "" {
		t.Fatalf("hop-by-hop Connection header was forwarded")
	}
	if res.Header.Get("Content-Disposition") != "" {
		t.Fatalf("unexpected Content-Disposition on WMS")
	}
}

func TestForward_PropagatesRequestID(t *testing.T) {
	rec := &upstreamRecorder{contentType: "image/png"}
	exec := newExec(t, rec)

	q, _ := url.ParseQuery("SERVICE=WMS&REQUEST=GetMap&LAYERS=CMIP5.SIT")
	r := httptest.NewRequest(http.MethodGet, "/?SERVICE=WMS", nil)
	r = r.WithContext(mylog.WithRequestID(r.Context(), "req-42"))
	exec.Forward(httptest.NewRecorder(), r, ogc.ParseRequest(q), "/m.map")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.lastReqID != "req-42" {
		t.Fatalf("X-Request-ID=%q", rec.lastReqID)
	}
}

func TestForward_CoverageDownloadName(t *testing.T) {
	rec := &upstreamRecorder{contentType: "image/tiff"}
	exec := newExec(t, rec)

	res := serve(exec, "SERVICE=WCS&REQUEST=GetCoverage&COVERAGEID=CMIP5.SIT&FORMAT=image/tiff", "/x.map")
	if got := res.Header.Get("Content-Disposition"); got != `attachment; filename="geomet-climate-CMIP5.SIT.tif"` {
		t.Fatalf("Content-Disposition=%q", got)
	}
}

func TestForward_NoDownloadNameForXMLException(t *testing.T) {
	rec := &upstreamRecorder{contentType: "text/xml; charset=UTF-8"}
	exec := newExec(t, rec)

	res := serve(exec, "SERVICE=WCS&REQUEST=GetCoverage&COVERAGEID=CMIP5.SIT&FORMAT=image/tiff", "/x.map")
	if got := res.Header.Get("Content-Disposition"); got != "" {
		t.Fatalf("Content-Disposition=%q on exception", got)
	}
}

func TestForward_UpstreamDown(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	addr := up.URL
	up.Close()

	exec, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(time.Second), addr)
	if err != nil {
		t.Fatal(err)
	}
	res := serve(exec, "SERVICE=WMS&REQUEST=GetMap&LAYERS=a", "/x.map")
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", res.StatusCode)
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New(slog.Default(), nil, "/cgi-bin/mapserv"); err == nil {
		t.Fatal("expected error")
	}
}
