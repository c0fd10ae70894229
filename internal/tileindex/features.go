// Package tileindex produces the GDAL-side artifacts of temporal rasters:
// the GeoPackage tile indexes MapServer reads for WMS time requests and the
// merged VRTs that back WCS file series.
package tileindex

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/composite"
	"github.com/ECCC-CCCS/geomet-climate/internal/temporal"
)

// Feature is one tile index row. Location is either an absolute file path
// or an inline VRT document.
type Feature struct {
	Location  string
	Timestamp string
}

// Lister returns the file names in dir.
type Lister func(dir string) ([]string, error)

// ReadDir lists regular files with os.ReadDir.
func ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Geometry returns the grid of a layer's climate model.
func Geometry(l catalog.Layer) composite.Geometry {
	x, y := l.Model.Size()
	return composite.Geometry{
		XSize:        x,
		YSize:        y,
		GeoTransform: string(l.Model.GeoTransform),
		Projection:   l.Model.Projection,
		NoData:       string(l.Model.NoData),
	}
}

// Footprint is the polygon every feature of l covers.
func Footprint(l catalog.Layer) (geom.Polygon, geom.Extent, error) {
	e := l.Model.Extent
	if len(e) != 4 {
		return nil, geom.Extent{}, fmt.Errorf("extent must have 4 values, got %d", len(e))
	}
	ring := [][2]float64{
		{e[0], e[1]},
		{e[0], e[3]},
		{e[2], e[3]},
		{e[2], e[1]},
		{e[0], e[1]},
	}
	return geom.Polygon{ring}, geom.Extent{e[0], e[1], e[2], e[3]}, nil
}

// Features lists the tile index rows of l. Only temporal rasters have any:
// a multi-band file yields one inline VRT per band, a file series one row
// per matching GeoTIFF. Series files whose names carry no timestamp are
// skipped.
func Features(l catalog.Layer, paths compiler.Paths, list Lister) ([]Feature, error) {
	if l.Type != catalog.Raster || !l.Temporal() || l.Model == nil {
		return nil, nil
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	switch l.Layout() {
	case catalog.MultiBand:
		ext, err := l.TimeExtent()
		if err != nil {
			return nil, err
		}
		idx, err := temporal.Index(ext.Begin, ext.Step, l.NumBands)
		if err != nil {
			return nil, err
		}
		out := make([]Feature, 0, idx.Len())
		for _, d := range composite.FanOut(Geometry(l), paths.DataPath(l), idx) {
			b, err := composite.Encode(d)
			if err != nil {
				return nil, fmt.Errorf("band %s: %w", d.Name, err)
			}
			out = append(out, Feature{Location: string(b), Timestamp: d.Bands[0].Timestamp})
		}
		return out, nil

	case catalog.FileSeries:
		dir := paths.DataDirOf(l)
		names, err := list(dir)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		var out []Feature
		for _, n := range composite.Select(names, l.Filename, ".tif") {
			ts, err := temporal.FromFilename(n)
			if err != nil {
				continue
			}
			abs, err := filepath.Abs(filepath.Join(dir, n))
			if err != nil {
				return nil, err
			}
			out = append(out, Feature{Location: abs, Timestamp: ts.CatalogStamp()})
		}
		return out, nil
	}
	return nil, nil
}
