package composite

import (
	"encoding/xml"
	"fmt"
)

type vrtDataset struct {
	XMLName      xml.Name  `xml:"VRTDataset"`
	XSize        int       `xml:"rasterXSize,attr"`
	YSize        int       `xml:"rasterYSize,attr"`
	SRS          *vrtSRS   `xml:"SRS,omitempty"`
	GeoTransform string    `xml:"GeoTransform,omitempty"`
	Bands        []vrtBand `xml:"VRTRasterBand"`
}

type vrtSRS struct {
	AxisMapping string `xml:"dataAxisToSRSAxisMapping,attr,omitempty"`
	WKT         string `xml:",chardata"`
}

type vrtBand struct {
	DataType string     `xml:"dataType,attr"`
	Band     int        `xml:"band,attr"`
	NoData   string     `xml:"NoDataValue,omitempty"`
	Simple   *vrtSource `xml:"SimpleSource,omitempty"`
	Complex  *vrtSource `xml:"ComplexSource,omitempty"`
}

type vrtSource struct {
	Filename   vrtFilename `xml:"SourceFilename"`
	SourceBand int         `xml:"SourceBand"`
	Props      vrtProps    `xml:"SourceProperties"`
	SrcRect    *vrtRect    `xml:"SrcRect,omitempty"`
	DstRect    *vrtRect    `xml:"DstRect,omitempty"`
	NoData     string      `xml:"NODATA,omitempty"`
}

type vrtFilename struct {
	RelativeToVRT int    `xml:"relativeToVRT,attr"`
	Path          string `xml:",chardata"`
}

type vrtProps struct {
	XSize    int    `xml:"RasterXSize,attr"`
	YSize    int    `xml:"RasterYSize,attr"`
	DataType string `xml:"DataType,attr"`
	BlockX   int    `xml:"BlockXSize,attr"`
	BlockY   int    `xml:"BlockYSize,attr"`
}

type vrtRect struct {
	XOff  int `xml:"xOff,attr"`
	YOff  int `xml:"yOff,attr"`
	XSize int `xml:"xSize,attr"`
	YSize int `xml:"ySize,attr"`
}

// Encode renders d as GDAL VRT XML. Merged composites are Float64 simple
// sources carrying the SRS; slices are Float32 complex sources with nodata.
func Encode(d Descriptor) ([]byte, error) {
	if d.XSize <= 0 || d.YSize <= 0 {
		return nil, fmt.Errorf("composite %s: invalid raster size %dx%d", d.Name, d.XSize, d.YSize)
	}
	if len(d.Bands) == 0 {
		return nil, fmt.Errorf("composite %s: no bands", d.Name)
	}
	ds := vrtDataset{XSize: d.XSize, YSize: d.YSize, GeoTransform: d.GeoTransform}

	for i, b := range d.Bands {
		if b.Band != i+1 {
			return nil, fmt.Errorf("composite %s: band %d out of sequence at position %d", d.Name, b.Band, i+1)
		}
		switch d.Kind {
		case Merged:
			ds.Bands = append(ds.Bands, vrtBand{
				DataType: "Float64",
				Band:     b.Band,
				Simple: &vrtSource{
					Filename:   vrtFilename{Path: b.Source},
					SourceBand: b.SourceBand,
					Props:      props(d.Geometry, "Float64"),
				},
			})
		case Slice:
			rect := &vrtRect{XSize: d.XSize, YSize: d.YSize}
			ds.Bands = append(ds.Bands, vrtBand{
				DataType: "Float32",
				Band:     b.Band,
				NoData:   d.NoData,
				Complex: &vrtSource{
					Filename:   vrtFilename{Path: b.Source},
					SourceBand: b.SourceBand,
					Props:      props(d.Geometry, "Float32"),
					SrcRect:    rect,
					DstRect:    rect,
					NoData:     d.NoData,
				},
			})
		default:
			return nil, fmt.Errorf("composite %s: unknown kind %d", d.Name, d.Kind)
		}
	}
	if d.Kind == Merged && d.Projection != "" {
		ds.SRS = &vrtSRS{AxisMapping: "2,1", WKT: d.Projection}
	}

	out, err := xml.MarshalIndent(ds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("composite %s: encode: %w", d.Name, err)
	}
	return append(out, '\n'), nil
}

func props(g Geometry, dt string) vrtProps {
	return vrtProps{XSize: g.XSize, YSize: g.YSize, DataType: dt, BlockX: g.XSize, BlockY: 1}
}
