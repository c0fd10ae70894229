// Package compiler turns catalog layer descriptors into resolved MapServer
// layer configurations for one service.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/mapfile"
	"github.com/ECCC-CCCS/geomet-climate/internal/projection"
	"github.com/ECCC-CCCS/geomet-climate/internal/temporal"
)

// ErrUnresolvedMetadataID is reported as a warning: the layer compiles
// without a metadata URL block.
var ErrUnresolvedMetadataID = errors.New("compiler: no metadata identifier matches layer")

var ErrUnknownService = errors.New("compiler: unknown service")

type Service string

const (
	WMS Service = "WMS"
	WCS Service = "WCS"
)

var Services = []Service{WMS, WCS}

func ParseService(s string) (Service, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "WMS":
		return WMS, nil
	case "WCS":
		return WCS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownService, s)
}

// CSWRecordURL is the catalogue record endpoint used for layer metadata URLs.
const CSWRecordURL = "https://csw.open.canada.ca/geonetwork/srv/csw?service=CSW&version=2.0.2&request=GetRecordById&outputschema=csw:IsoRecord&elementsetname=full&id="

// legacyProjections pins datasets whose grids have no exportable WKT.
var legacyProjections = map[string]string{
	"CANGRD": "init=epsg:102998",
}

// Paths locates data and generated artifacts.
type Paths struct {
	BaseDir string
	DataDir string
}

func (p Paths) TemplatePath(layer string) string {
	return filepath.Join(p.BaseDir, "mapfile", "template", "template-"+layer+".js")
}

func (p Paths) TileIndexPath(l catalog.Layer) string {
	return filepath.Join(p.BaseDir, "tileindex", l.Model.Basepath, l.Filepath, l.IndexFilename())
}

func (p Paths) VRTDir(l catalog.Layer) string {
	return filepath.Join(p.BaseDir, "vrt", l.Model.Basepath, l.Filepath)
}

func (p Paths) DataPath(l catalog.Layer) string {
	return filepath.Join(p.DataDir, l.Model.Basepath, l.Filepath, l.Filename)
}

func (p Paths) DataDirOf(l catalog.Layer) string {
	return filepath.Join(p.DataDir, l.Model.Basepath, l.Filepath)
}

// LayerConfig is the compiled form of one catalog layer for one service.
// Metadata carries unsuffixed keys in English plus _en and _fr variants of
// every language-dependent key.
type LayerConfig struct {
	Name       string
	Service    Service
	TileIndex  *mapfile.Layer
	Layer      mapfile.Layer
	Title      catalog.Bilingual[string]
	Group      catalog.Bilingual[string]
	TimeExtent string
	BandNames  []string
}

// Layers returns the mapfile layers in the given language, tile index first.
func (c LayerConfig) Layers(lang catalog.Lang) []mapfile.Layer {
	out := make([]mapfile.Layer, 0, 2)
	if c.TileIndex != nil {
		out = append(out, c.TileIndex.Clone())
	}
	l := c.Layer.Clone()
	l.Metadata = l.Metadata.Localize(string(lang))
	return append(out, l)
}

// Warning is a non-fatal compile problem.
type Warning struct {
	Layer string
	Err   error
}

func (w Warning) Error() string { return w.Layer + ": " + w.Err.Error() }

type Compiler struct {
	paths  Paths
	styles StyleLoader
	proj   projection.Exporter
	log    *slog.Logger
}

type Option func(*Compiler)

func WithStyles(s StyleLoader) Option { return func(c *Compiler) { c.styles = s } }

func WithExporter(e projection.Exporter) Option { return func(c *Compiler) { c.proj = e } }

func WithLogger(l *slog.Logger) Option { return func(c *Compiler) { c.log = l } }

func New(paths Paths, opts ...Option) *Compiler {
	c := &Compiler{
		paths:  paths,
		styles: NoStyles{},
		proj:   projection.WKT{},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile resolves one layer for svc. It never mutates l and returns the
// same configuration for the same inputs.
func (c *Compiler) Compile(name string, l catalog.Layer, svc Service) (LayerConfig, []Warning, error) {
	if err := l.Validate(); err != nil {
		return LayerConfig{}, nil, fmt.Errorf("layer %s: %w", name, err)
	}
	var warns []Warning
	cfg := LayerConfig{Name: name, Service: svc}

	var ext temporal.Extent
	if l.Temporal() {
		var err error
		ext, err = l.TimeExtent()
		if err != nil {
			return LayerConfig{}, nil, fmt.Errorf("layer %s: %w", name, err)
		}
		cfg.TimeExtent = string(l.Model.TemporalExtent.Begin) + "/" + string(l.Model.TemporalExtent.End) + "/" + ext.Step.String()
	}

	if l.Temporal() && svc == WMS {
		ti := mapfile.Layer{
			Name:           name + "-tileindex",
			Type:           string(catalog.Polygon),
			Status:         "OFF",
			ConnectionType: "OGR",
			Connection:     c.paths.TileIndexPath(l),
		}
		ti.Metadata.Set("ows_enable_request", "!*")
		cfg.TileIndex = &ti
	}

	ml := mapfile.Layer{
		Name:      name,
		Type:      string(catalog.Raster),
		Status:    "ON",
		Template:  c.paths.TemplatePath(name),
		Dump:      true,
		Tolerance: 150,
	}
	ml.Metadata.Set("gml_include_items", "all")
	ml.Metadata.Set("ows_include_items", "all")

	vector := l.Type != catalog.Raster
	switch {
	case vector:
		ml.Type = string(l.Type)
		ml.ConnectionType = "OGR"
		ml.Connection = "ES:" + l.Model.Basepath
		ml.Data = l.Filename
	case cfg.TileIndex != nil:
		ml.TileIndex = cfg.TileIndex.Name
		ml.TileItem = "location"
	default:
		ml.Data = c.paths.DataPath(l)
	}

	proj, err := c.projection(name, l)
	if err != nil {
		return LayerConfig{}, nil, fmt.Errorf("layer %s: %w", name, err)
	}
	ml.Projection = []string{proj}

	label := l.Label()
	if svc == WCS && !vector {
		ml.Metadata.Set("wcs_label", label.En)
		ml.Metadata.Set("wcs_label_en", label.En)
		ml.Metadata.Set("wcs_label_fr", label.Fr)
		ml.Metadata.Set("wcs_bandcount", strconv.Itoa(l.NumBands))
		x, y := l.Model.Size()
		ml.Metadata.Set("wcs_size", fmt.Sprintf("%d %d", x, y))
	}
	if svc == WCS && l.Temporal() {
		rng, err := ext.Range()
		if err != nil {
			return LayerConfig{}, nil, fmt.Errorf("layer %s: %w", name, err)
		}
		cfg.BandNames = make([]string, len(rng))
		for i, ts := range rng {
			cfg.BandNames[i] = ts.BandName()
		}
		ml.Metadata.Set("wcs_band_names", strings.Join(cfg.BandNames, " "))
		if l.Layout() == catalog.FileSeries {
			ml.Data = filepath.Join(c.paths.VRTDir(l), l.Filename+".vrt")
			ml.Metadata.Set("wcs_bandcount", strconv.Itoa(len(cfg.BandNames)))
		}
	}

	ml.Metadata.Set("ows_extent", l.Model.ExtentString(" "))

	cfg.Title, cfg.Group = hierarchy(l)
	ml.Metadata.Set("ows_layer_group", cfg.Group.En)
	ml.Metadata.Set("ows_title", cfg.Title.En)
	ml.Metadata.Set("ows_layer_group_en", cfg.Group.En)
	ml.Metadata.Set("ows_layer_group_fr", cfg.Group.Fr)
	ml.Metadata.Set("ows_title_en", cfg.Title.En)
	ml.Metadata.Set("ows_title_fr", cfg.Title.Fr)

	if len(l.Model.MetadataID) > 0 {
		id, err := MetadataID(name, l.Model.MetadataID)
		if err != nil {
			warns = append(warns, Warning{Layer: name, Err: err})
			c.log.Warn("metadata url not resolved", "layer", name, "err", err)
		} else {
			ml.Metadata.Set("ows_metadataurl_href", CSWRecordURL+id)
			ml.Metadata.Set("ows_metadataurl_format", "text/xml")
			ml.Metadata.Set("ows_metadataurl_type", "ISO 19115:2003")
		}
	}

	if l.Temporal() {
		ml.Metadata.Set("ows_timeitem", "timestamp")
		ml.Metadata.Set("ows_timeextent", cfg.TimeExtent)
		ml.Metadata.Set("ows_timedefault", string(l.Model.TemporalExtent.End))
	}

	ml.ClassGroup = l.ClassGroup
	for _, s := range l.Styles {
		classes, err := c.styles.Classes(s)
		if err != nil {
			return LayerConfig{}, nil, fmt.Errorf("layer %s: style %s: %w", name, s, err)
		}
		ml.Classes = append(ml.Classes, classes...)
	}

	cfg.Layer = ml
	return cfg, warns, nil
}

func (c *Compiler) projection(name string, l catalog.Layer) (string, error) {
	for prefix, p := range legacyProjections {
		if strings.HasPrefix(name, prefix) {
			return p, nil
		}
	}
	if l.Model.ProjectionOverride != "" {
		return l.Model.ProjectionOverride, nil
	}
	return projection.Resolve(c.proj, l.Model.Projection)
}

// hierarchy splits the label path of each language into a title (last
// segment) and a group rooted at the climate model label.
func hierarchy(l catalog.Layer) (title, group catalog.Bilingual[string]) {
	model := l.Model.Label()
	title = catalog.Map(l.Label(), func(_ catalog.Lang, label string) string {
		tokens := strings.Split(label, "/")
		return tokens[len(tokens)-1]
	})
	group = catalog.Map(l.Label(), func(lang catalog.Lang, label string) string {
		tokens := strings.Split(label, "/")
		g := "/" + model.In(lang) + "/" + strings.Join(tokens[:len(tokens)-1], "/")
		return strings.TrimSuffix(g, "/")
	})
	return title, group
}

// MetadataID finds the catalogue identifier whose key, uppercased, is one of
// the layer name tokens. Keys are tried in sorted order.
func MetadataID(name string, ids map[string]string) (string, error) {
	tokens := strings.Split(strings.ReplaceAll(name, "_", "."), ".")
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if slices.Contains(tokens, strings.ToUpper(k)) {
			return ids[k], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolvedMetadataID, name)
}
