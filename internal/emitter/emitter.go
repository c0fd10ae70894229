// Package emitter writes compiled layer configurations to disk as MapServer
// mapfiles and GeoJSON query templates.
package emitter

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/natefinch/atomic"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
	"github.com/ECCC-CCCS/geomet-climate/internal/invalidation"
	"github.com/ECCC-CCCS/geomet-climate/internal/mapfile"
	"github.com/ECCC-CCCS/geomet-climate/internal/servicemeta"
)

// ErrConfigWrite wraps every failure to commit an artifact. A failed write
// never leaves a partial file at the final path.
var ErrConfigWrite = errors.New("emitter: config write failed")

//go:embed templates/*.js
var templates embed.FS

// ExtentSink receives the time extents of the layers just emitted.
type ExtentSink interface {
	Put(ctx context.Context, service string, extents map[string]string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev invalidation.RecompileEvent) error
}

// Target says where and what to write.
type Target struct {
	Dir    string
	Extent []float64
	SRS    string
	// Aggregate also writes the whole-catalog mapfile of each language.
	Aggregate bool
}

// Result lists artifact paths by outcome. Checksum fingerprints everything
// that was emitted, written or not.
type Result struct {
	Written   []string
	Unchanged []string
	Checksum  string
}

type Emitter struct {
	log     *slog.Logger
	extents ExtentSink
	events  EventPublisher
	now     func() time.Time
	source  string
}

type Option func(*Emitter)

func WithLogger(l *slog.Logger) Option { return func(e *Emitter) { e.log = l } }

func WithExtentSink(s ExtentSink) Option { return func(e *Emitter) { e.extents = s } }

func WithPublisher(p EventPublisher) Option { return func(e *Emitter) { e.events = p } }

func WithClock(now func() time.Time) Option { return func(e *Emitter) { e.now = now } }

// WithSource tags published events with the emitting host.
func WithSource(s string) Option { return func(e *Emitter) { e.source = s } }

func New(opts ...Option) *Emitter {
	e := &Emitter{
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now: time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// MapfileName is the per-layer artifact name; the front end resolves
// single-layer requests against it.
func MapfileName(svc compiler.Service, layer string) string {
	return "geomet-climate-" + string(svc) + "-" + layer + ".map"
}

// CatalogMapfileName is the whole-catalog artifact name for lang.
func CatalogMapfileName(svc compiler.Service, lang catalog.Lang) string {
	return "geomet-climate-" + string(svc) + "-" + string(lang) + ".map"
}

// Emit writes one mapfile and one query template per configuration and,
// when t.Aggregate is set, the whole-catalog mapfile per language. After
// every artifact is committed the time extents and a recompile event are
// published.
func (e *Emitter) Emit(ctx context.Context, b compiler.Batch, meta servicemeta.Metadata, t Target) (Result, error) {
	var res Result
	digest := xxhash.New()

	base := mapfile.Base(t.Extent, t.SRS)
	base.Web.Metadata = meta.Render(catalog.English)

	names := make([]string, 0, len(b.Configs))
	for _, cfg := range b.Configs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		names = append(names, cfg.Name)

		tpl, err := queryTemplate(cfg)
		if err != nil {
			return res, err
		}
		if err := e.commit(&res, digest, "template", cfg.Layer.Template, tpl); err != nil {
			return res, err
		}

		m := base.Copy()
		m.WithTemplate(cfg.Layer.Template)
		m.Layers = cfg.Layers(catalog.English)
		var buf bytes.Buffer
		if err := mapfile.Encode(&buf, m); err != nil {
			return res, fmt.Errorf("encode %s: %w", cfg.Name, err)
		}
		path := filepath.Join(t.Dir, MapfileName(b.Service, cfg.Name))
		if err := e.commit(&res, digest, "mapfile", path, buf.Bytes()); err != nil {
			return res, err
		}
	}

	if t.Aggregate {
		for _, lang := range catalog.Languages {
			m := base.Copy()
			m.Web.Metadata = meta.Render(lang)
			for _, cfg := range b.Configs {
				m.Layers = append(m.Layers, cfg.Layers(lang)...)
			}
			var buf bytes.Buffer
			if err := mapfile.Encode(&buf, m); err != nil {
				return res, fmt.Errorf("encode catalog %s: %w", lang, err)
			}
			path := filepath.Join(t.Dir, CatalogMapfileName(b.Service, lang))
			if err := e.commit(&res, digest, "mapfile", path, buf.Bytes()); err != nil {
				return res, err
			}
		}
	}
	res.Checksum = fmt.Sprintf("%016x", digest.Sum64())

	e.log.InfoContext(ctx, "configuration emitted",
		"service", string(b.Service), "layers", len(b.Configs),
		"written", len(res.Written), "unchanged", len(res.Unchanged))

	if len(names) == 0 {
		return res, nil
	}
	if e.extents != nil {
		extents := map[string]string{}
		for _, cfg := range b.Configs {
			if cfg.TimeExtent != "" {
				extents[cfg.Name] = cfg.TimeExtent
			}
		}
		if len(extents) > 0 {
			if err := e.extents.Put(ctx, string(b.Service), extents); err != nil {
				return res, fmt.Errorf("publish extents: %w", err)
			}
		}
	}
	if e.events != nil && len(res.Written) > 0 {
		ev := invalidation.RecompileEvent{
			Version:  1,
			Service:  string(b.Service),
			Layers:   names,
			Checksum: res.Checksum,
			TS:       e.now().UTC(),
			Source:   e.source,
		}
		if err := e.events.Publish(ctx, ev); err != nil {
			return res, fmt.Errorf("publish recompile event: %w", err)
		}
	}
	return res, nil
}

// commit writes data to path unless the file already holds the same bytes.
func (e *Emitter) commit(res *Result, digest *xxhash.Digest, kind, path string, data []byte) error {
	_, _ = digest.WriteString(path)
	_, _ = digest.Write(data)

	if old, err := os.ReadFile(path); err == nil && xxhash.Sum64(old) == xxhash.Sum64(data) {
		res.Unchanged = append(res.Unchanged, path)
		observability.IncArtifact(kind, "unchanged")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		observability.IncArtifact(kind, "failed")
		return fmt.Errorf("%w: %s: %w", ErrConfigWrite, path, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		observability.IncArtifact(kind, "failed")
		return fmt.Errorf("%w: %s: %w", ErrConfigWrite, path, err)
	}
	res.Written = append(res.Written, path)
	observability.IncArtifact(kind, "written")
	e.log.Debug("artifact written", "kind", kind, "path", path)
	return nil
}

// queryTemplate renders the GeoJSON query template for cfg.
func queryTemplate(cfg compiler.LayerConfig) ([]byte, error) {
	name := "templates/vector.js"
	if cfg.Layer.Type == string(catalog.Raster) {
		name = "templates/raster.js"
	}
	b, err := templates.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return []byte(strings.ReplaceAll(string(b), "{layer}", cfg.Name)), nil
}
