// Package catalog loads the declarative layer catalog that drives mapfile,
// VRT and tile index generation.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ECCC-CCCS/geomet-climate/internal/temporal"
)

var ErrUnknownLayer = errors.New("catalog: unknown layer")

type Kind string

const (
	Raster  Kind = "RASTER"
	Point   Kind = "POINT"
	Polygon Kind = "POLYGON"
	Line    Kind = "LINE"
)

// Layout describes how the time steps of a raster layer are stored.
type Layout int

const (
	// Static is a non-temporal raster or a vector layer.
	Static Layout = iota
	// MultiBand stores one time step per band of a single file.
	MultiBand
	// FileSeries stores one time step per single-band file.
	FileSeries
)

type Catalog struct {
	Metadata Metadata         `yaml:"metadata"`
	Map      MapSettings      `yaml:"mapfile"`
	Layers   map[string]Layer `yaml:"layers"`
}

// MapSettings overrides parts of the base map definition.
type MapSettings struct {
	Extent []float64 `yaml:"extent"`
	SRS    string    `yaml:"srs"`
}

type Layer struct {
	Type       Kind          `yaml:"type"`
	LabelEn    string        `yaml:"label_en"`
	LabelFr    string        `yaml:"label_fr"`
	Filepath   string        `yaml:"filepath"`
	Filename   string        `yaml:"filename"`
	NumBands   int           `yaml:"num_bands"`
	Timestep   string        `yaml:"timestep"`
	ClassGroup string        `yaml:"classgroup"`
	Styles     []string      `yaml:"styles"`
	Template   string        `yaml:"template"`
	Model      *ClimateModel `yaml:"climate_model"`
}

type ClimateModel struct {
	Basepath           string            `yaml:"basepath"`
	LabelEn            string            `yaml:"label_en"`
	LabelFr            string            `yaml:"label_fr"`
	Projection         string            `yaml:"projection"`
	ProjectionOverride string            `yaml:"projection_override"`
	Dimensions         []int             `yaml:"dimensions"`
	Extent             []float64         `yaml:"extent"`
	GeoTransform       GeoTransform      `yaml:"geo_transform"`
	IsVRT              bool              `yaml:"is_vrt"`
	TemporalExtent     *TemporalExtent   `yaml:"temporal_extent"`
	MetadataID         map[string]string `yaml:"metadata_id"`
	NoData             Scalar            `yaml:"nodata"`
}

type TemporalExtent struct {
	Begin Scalar `yaml:"begin"`
	End   Scalar `yaml:"end"`
}

// Scalar keeps the literal text of a YAML scalar, so 2006 and "2006" read
// the same.
type Scalar string

func (s *Scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	*s = Scalar(n.Value)
	return nil
}

// GeoTransform accepts either a comma separated string or a sequence of six
// numbers.
type GeoTransform string

func (g *GeoTransform) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*g = GeoTransform(n.Value)
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			parts = append(parts, c.Value)
		}
		*g = GeoTransform(strings.Join(parts, ", "))
	default:
		return fmt.Errorf("line %d: geo_transform must be a string or a list", n.Line)
	}
	return nil
}

func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Layers) == 0 {
		return nil, errors.New("parse catalog: no layers")
	}
	return &c, nil
}

// Names returns every layer name in lexical order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Layers))
	for k := range c.Layers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (c *Catalog) Lookup(name string) (Layer, error) {
	l, ok := c.Layers[name]
	if !ok {
		return Layer{}, fmt.Errorf("%w: %s", ErrUnknownLayer, name)
	}
	return l, nil
}

func (l Layer) Label() Bilingual[string] { return Both(l.LabelEn, l.LabelFr) }

func (m ClimateModel) Label() Bilingual[string] { return Both(m.LabelEn, m.LabelFr) }

func (l Layer) Temporal() bool { return l.Timestep != "" }

// Validate checks the fields every consumer relies on.
func (l Layer) Validate() error {
	switch l.Type {
	case Raster, Point, Polygon, Line:
	default:
		return fmt.Errorf("unsupported layer type %q", l.Type)
	}
	if l.Model == nil {
		return errors.New("missing climate_model")
	}
	if l.Filename == "" {
		return errors.New("missing filename")
	}
	if l.Type == Raster && len(l.Model.Dimensions) != 2 {
		return fmt.Errorf("dimensions must have 2 values, got %d", len(l.Model.Dimensions))
	}
	if len(l.Model.Extent) != 4 {
		return fmt.Errorf("extent must have 4 values, got %d", len(l.Model.Extent))
	}
	if l.Temporal() && l.Model.TemporalExtent == nil {
		return fmt.Errorf("%w: timestep declared without temporal_extent", temporal.ErrInvalidStart)
	}
	return nil
}

// TimeExtent returns the begin/end/step declaration of a temporal layer.
func (l Layer) TimeExtent() (temporal.Extent, error) {
	step, err := temporal.ParseStep(l.Timestep)
	if err != nil {
		return temporal.Extent{}, err
	}
	if l.Model == nil || l.Model.TemporalExtent == nil {
		return temporal.Extent{}, fmt.Errorf("%w: no temporal_extent", temporal.ErrInvalidStart)
	}
	raw := string(l.Model.TemporalExtent.Begin) + "/" + string(l.Model.TemporalExtent.End) + "/" + step.String()
	return temporal.ParseExtent(raw)
}

func (l Layer) Layout() Layout {
	if l.Type != Raster || l.Model == nil {
		return Static
	}
	switch {
	case l.Model.IsVRT && l.NumBands > 1:
		return MultiBand
	case l.Temporal() && l.NumBands == 1:
		return FileSeries
	}
	return Static
}

// Size returns the raster dimensions.
func (m ClimateModel) Size() (x, y int) {
	if len(m.Dimensions) != 2 {
		return 0, 0
	}
	return m.Dimensions[0], m.Dimensions[1]
}

// ExtentString joins the bounding box with sep.
func (m ClimateModel) ExtentString(sep string) string {
	return JoinFloats(m.Extent, sep)
}

func JoinFloats(v []float64, sep string) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, sep)
}

// IndexFilename names the tile index of a temporal layer: foo.nc becomes
// foo.gpkg, a file series prefix gets .gpkg appended.
func (l Layer) IndexFilename() string {
	if strings.HasSuffix(l.Filename, ".nc") {
		return strings.TrimSuffix(l.Filename, ".nc") + ".gpkg"
	}
	return l.Filename + ".gpkg"
}

// IndexName is the feature table name inside the tile index.
func (l Layer) IndexName() string {
	return strings.TrimSuffix(l.IndexFilename(), ".gpkg")
}
