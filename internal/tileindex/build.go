package tileindex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/composite"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
)

type Builder struct {
	paths compiler.Paths
	list  Lister
	log   *slog.Logger
}

type Option func(*Builder)

// WithLister replaces directory listing, mostly for tests.
func WithLister(l Lister) Option { return func(b *Builder) { b.list = l } }

func WithLogger(l *slog.Logger) Option { return func(b *Builder) { b.log = l } }

func NewBuilder(paths compiler.Paths, opts ...Option) *Builder {
	b := &Builder{
		paths: paths,
		list:  ReadDir,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// TileIndex writes the GeoPackage of l and returns its path. Layers without
// a time dimension produce nothing and return "".
func (b *Builder) TileIndex(ctx context.Context, l catalog.Layer) (string, error) {
	start := time.Now()
	feats, err := Features(l, b.paths, b.list)
	if err != nil {
		observability.IncArtifact("tileindex", "failed")
		return "", err
	}
	if len(feats) == 0 {
		return "", nil
	}
	poly, ext, err := Footprint(l)
	if err != nil {
		observability.IncArtifact("tileindex", "failed")
		return "", err
	}
	path := b.paths.TileIndexPath(l)
	idx := Index{
		Name:      l.IndexName(),
		SRS:       SRSFor(l.Model.Projection),
		Footprint: poly,
		Extent:    ext,
		Features:  feats,
	}
	if err := Write(ctx, path, idx); err != nil {
		observability.IncArtifact("tileindex", "failed")
		return "", err
	}
	observability.IncArtifact("tileindex", "written")
	b.log.InfoContext(ctx, "tile index written",
		"path", path, "features", len(feats), "took_ms", time.Since(start).Milliseconds())
	return path, nil
}

// MergedVRT writes the fan-in VRT of a file series layer and returns its
// path. Other layouts return "".
func (b *Builder) MergedVRT(ctx context.Context, l catalog.Layer) (string, error) {
	if l.Layout() != catalog.FileSeries {
		return "", nil
	}
	if err := l.Validate(); err != nil {
		observability.IncArtifact("vrt", "failed")
		return "", err
	}
	dir, err := filepath.Abs(b.paths.DataDirOf(l))
	if err != nil {
		return "", err
	}
	names, err := b.list(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}
	sources := composite.Select(names, l.Filename, ".tif")
	d, err := composite.FanIn(composite.MergedName(l.Filename), Geometry(l), dir, sources)
	if err != nil {
		return "", err
	}
	data, err := composite.Encode(d)
	if err != nil {
		return "", err
	}
	out := filepath.Join(b.paths.VRTDir(l), d.Name)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		observability.IncArtifact("vrt", "failed")
		return "", err
	}
	if err := atomic.WriteFile(out, bytes.NewReader(data)); err != nil {
		observability.IncArtifact("vrt", "failed")
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	observability.IncArtifact("vrt", "written")
	b.log.InfoContext(ctx, "vrt written", "path", out, "bands", len(d.Bands))
	return out, nil
}
