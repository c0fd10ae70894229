// Package mapfile models the subset of MapServer mapfiles produced by the
// compiler and serializes it.
package mapfile

import (
	"slices"
	"strings"
)

// Metadata is an ordered METADATA block. Keys are unique.
type Metadata []Item

type Item struct {
	Key   string
	Value string
}

// Set replaces the value of key, or appends it.
func (m *Metadata) Set(key, value string) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Item{Key: key, Value: value})
}

func (m Metadata) Get(key string) (string, bool) {
	for _, it := range m {
		if it.Key == key {
			return it.Value, true
		}
	}
	return "", false
}

func (m Metadata) Clone() Metadata { return slices.Clone(m) }

// Localize returns a copy where every key ending in _<lang> overwrites its
// unsuffixed counterpart.
func (m Metadata) Localize(lang string) Metadata {
	out := m.Clone()
	suffix := "_" + lang
	for _, it := range m {
		if base, ok := strings.CutSuffix(it.Key, suffix); ok && base != "" {
			out.Set(base, it.Value)
		}
	}
	return out
}

type Map struct {
	Name          string
	Extent        []float64
	Size          [2]int
	Units         string
	ImageType     string
	Projection    []string
	Config        Metadata
	Web           Web
	OutputFormats []OutputFormat
	Symbols       []Symbol
	Layers        []Layer
}

type Web struct {
	Metadata Metadata
}

type OutputFormat struct {
	Name          string
	Driver        string
	MimeType      string
	Extension     string
	ImageMode     string
	Transparent   bool
	FormatOptions []string
}

type Symbol struct {
	Name   string
	Type   string
	Filled bool
	Points []float64
}

type Layer struct {
	Name           string
	Type           string
	Status         string
	Data           string
	Connection     string
	ConnectionType string
	TileIndex      string
	TileItem       string
	Template       string
	Dump           bool
	Tolerance      int
	ClassGroup     string
	Projection     []string
	Metadata       Metadata
	Classes        []Class
}

// Class and Style follow the JSON layout of the style resources.
type Class struct {
	Name       string  `json:"name,omitempty"`
	Group      string  `json:"group,omitempty"`
	Expression string  `json:"expression,omitempty"`
	Styles     []Style `json:"styles,omitempty"`
}

type Style struct {
	Color        []int     `json:"color,omitempty"`
	OutlineColor []int     `json:"outlinecolor,omitempty"`
	ColorRange   []int     `json:"colorrange,omitempty"`
	DataRange    []float64 `json:"datarange,omitempty"`
	RangeItem    string    `json:"rangeitem,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	Size         float64   `json:"size,omitempty"`
	Width        float64   `json:"width,omitempty"`
}

// Clone deep-copies the layer so callers can localize it independently.
func (l Layer) Clone() Layer {
	out := l
	out.Projection = slices.Clone(l.Projection)
	out.Metadata = l.Metadata.Clone()
	out.Classes = make([]Class, len(l.Classes))
	for i, c := range l.Classes {
		c.Styles = slices.Clone(c.Styles)
		out.Classes[i] = c
	}
	return out
}

// Base returns the map skeleton shared by every generated mapfile.
func Base(extent []float64, srs string) Map {
	if len(extent) != 4 {
		extent = []float64{-141, 42, -52, 84}
	}
	if srs == "" {
		srs = "EPSG:4326 EPSG:3857 EPSG:3978 EPSG:102100"
	}
	m := Map{
		Name:       "geomet-climate",
		Extent:     slices.Clone(extent),
		Size:       [2]int{800, 600},
		Units:      "DD",
		ImageType:  "png",
		Projection: []string{"init=epsg:4326"},
		OutputFormats: []OutputFormat{
			{Name: "PNG", Driver: "AGG/PNG", MimeType: "image/png", Extension: "png", ImageMode: "RGBA", Transparent: true},
			{Name: "JPEG", Driver: "AGG/JPEG", MimeType: "image/jpeg", Extension: "jpg", ImageMode: "RGB"},
			{Name: "GeoJSON", Driver: "TEMPLATE", MimeType: "application/json", Extension: "json"},
			{Name: "GEOTIFF_32", Driver: "GDAL/GTiff", MimeType: "image/tiff", Extension: "tif", ImageMode: "FLOAT32"},
			{Name: "NetCDF", Driver: "GDAL/netCDF", MimeType: "image/netcdf", Extension: "nc", ImageMode: "FLOAT32"},
		},
		Symbols: []Symbol{
			{Name: "circle", Type: "ELLIPSE", Filled: true, Points: []float64{1, 1}},
		},
	}
	m.Config.Set("MS_ERRORFILE", "stderr")
	m.Web.Metadata.Set("ows_srs", srs)
	return m
}

// WithTemplate points the GeoJSON output format at a query template.
func (m *Map) WithTemplate(path string) {
	for i := range m.OutputFormats {
		if m.OutputFormats[i].Name == "GeoJSON" {
			m.OutputFormats[i].FormatOptions = []string{"FILE=" + path}
		}
	}
}

// Copy returns a map sharing no slices with m.
func (m Map) Copy() Map {
	out := m
	out.Extent = slices.Clone(m.Extent)
	out.Projection = slices.Clone(m.Projection)
	out.Config = m.Config.Clone()
	out.Web.Metadata = m.Web.Metadata.Clone()
	out.OutputFormats = make([]OutputFormat, len(m.OutputFormats))
	for i, f := range m.OutputFormats {
		f.FormatOptions = slices.Clone(f.FormatOptions)
		out.OutputFormats[i] = f
	}
	out.Symbols = slices.Clone(m.Symbols)
	out.Layers = make([]Layer, len(m.Layers))
	for i, l := range m.Layers {
		out.Layers[i] = l.Clone()
	}
	return out
}
