// Package composite builds virtual raster (VRT) descriptors that either merge
// many single-band files into one multi-band raster (fan-in) or expose every
// band of a multi-band file as its own raster (fan-out).
package composite

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ECCC-CCCS/geomet-climate/internal/temporal"
)

// Geometry is the raster grid shared by every source of a composite.
type Geometry struct {
	XSize        int
	YSize        int
	GeoTransform string
	Projection   string
	NoData       string
}

type Kind int

const (
	// Merged is a fan-in composite: one output band per source file.
	Merged Kind = iota + 1
	// Slice is a fan-out composite: a single band taken from a multi-band source.
	Slice
)

// Band is one output band. Band numbers are 1-based and contiguous.
type Band struct {
	Band       int
	Source     string
	SourceBand int
	Timestamp  string
}

type Descriptor struct {
	Geometry
	Kind  Kind
	Name  string
	Bands []Band
}

// order sorts source identifiers lexicographically. Both build directions
// number their bands from it.
func order(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}

// Select keeps the identifiers matching prefix and suffix, in band order.
func Select(names []string, prefix, suffix string) []string {
	keep := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, prefix) && strings.HasSuffix(n, suffix) {
			keep = append(keep, n)
		}
	}
	return order(keep)
}

// FanIn merges single-band sources into one descriptor. Sources are resolved
// against dir when relative.
func FanIn(name string, g Geometry, dir string, sources []string) (Descriptor, error) {
	if len(sources) == 0 {
		return Descriptor{}, fmt.Errorf("composite %s: no sources", name)
	}
	d := Descriptor{Geometry: g, Kind: Merged, Name: name}
	for i, s := range order(sources) {
		if !filepath.IsAbs(s) && dir != "" {
			s = filepath.Join(dir, s)
		}
		b := Band{Band: i + 1, Source: s, SourceBand: 1}
		if ts, err := temporal.FromFilename(s); err == nil {
			b.Timestamp = ts.CatalogStamp()
		}
		d.Bands = append(d.Bands, b)
	}
	return d, nil
}

// FanOut exposes every band of source as a single-band descriptor tagged
// with the band's timestamp.
func FanOut(g Geometry, source string, idx temporal.BandTimeIndex) []Descriptor {
	out := make([]Descriptor, 0, idx.Len())
	base := filepath.Base(source)
	for i := 1; i <= idx.Len(); i++ {
		ts, _ := idx.At(i)
		out = append(out, Descriptor{
			Geometry: g,
			Kind:     Slice,
			Name:     SliceName(base, i),
			Bands: []Band{{
				Band:       1,
				Source:     source,
				SourceBand: i,
				Timestamp:  ts.CatalogStamp(),
			}},
		})
	}
	return out
}

// SliceName names the per-band raster of a netCDF file: foo.nc -> foo_3.vrt.
func SliceName(filename string, band int) string {
	return strings.Replace(filename, ".nc", fmt.Sprintf("_%d.vrt", band), 1)
}

// MergedName names the fan-in raster of a file series.
func MergedName(filename string) string { return filename + ".vrt" }
