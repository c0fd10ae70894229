package projection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WKT exports WKT1 definitions covering the grids published by the service:
// geographic systems and the common conic, stereographic and mercator
// projections. Other definitions fall back to their EPSG authority code.
type WKT struct{}

var _ Exporter = WKT{}

func (WKT) ToProj4(wkt string) (string, error) {
	root, err := parse(wkt)
	if err != nil {
		return "", err
	}
	var parts []string
	switch root.Keyword {
	case "GEOGCS":
		parts = append(parts, "+proj=longlat")
		parts = append(parts, datum(root)...)
	case "PROJCS":
		proj, err := projected(root)
		if err != nil {
			return "", err
		}
		parts = append(parts, proj...)
		if g := root.child("GEOGCS"); g != nil {
			parts = append(parts, datum(g)...)
		}
		parts = append(parts, units(root.child("UNIT"))...)
	default:
		return "", fmt.Errorf("%w: root %s", ErrUnsupported, root.Keyword)
	}
	parts = append(parts, "+no_defs")
	return strings.Join(parts, " "), nil
}

func datum(geog *node) []string {
	d := geog.child("DATUM")
	if d == nil {
		return nil
	}
	switch strings.ToUpper(d.value(0)) {
	case "WGS_1984", "WGS84", "WORLD GEODETIC SYSTEM 1984":
		return []string{"+datum=WGS84"}
	case "NORTH_AMERICAN_DATUM_1983", "NAD83":
		return []string{"+datum=NAD83"}
	case "NORTH_AMERICAN_DATUM_1927", "NAD27":
		return []string{"+datum=NAD27"}
	}
	sph := d.child("SPHEROID")
	if sph == nil {
		return nil
	}
	a, rf := sph.value(1), sph.value(2)
	if strings.EqualFold(sph.value(0), "WGS 84") {
		return []string{"+ellps=WGS84"}
	}
	if rf == "" || num(rf) == "0" {
		return []string{"+R=" + num(a)}
	}
	return []string{"+a=" + num(a), "+rf=" + num(rf)}
}

func units(u *node) []string {
	if u == nil {
		return nil
	}
	switch strings.ToLower(u.value(0)) {
	case "metre", "meter", "m":
		return []string{"+units=m"}
	}
	if v := num(u.value(1)); v != "" && v != "1" {
		return []string{"+to_meter=" + v}
	}
	return []string{"+units=m"}
}

func projected(root *node) ([]string, error) {
	params := map[string]string{}
	for _, p := range root.children("PARAMETER") {
		params[strings.ToLower(p.value(0))] = num(p.value(1))
	}
	get := func(k, def string) string {
		if v, ok := params[k]; ok && v != "" {
			return v
		}
		return def
	}
	x0, y0 := "+x_0="+get("false_easting", "0"), "+y_0="+get("false_northing", "0")

	name := strings.ToLower(root.child("PROJECTION").value(0))
	switch name {
	case "polar_stereographic":
		latTS := get("latitude_of_origin", "90")
		lat0 := "90"
		if strings.HasPrefix(latTS, "-") {
			lat0 = "-90"
		}
		out := []string{"+proj=stere", "+lat_0=" + lat0, "+lat_ts=" + latTS, "+lon_0=" + get("central_meridian", "0")}
		if latTS == "90" || latTS == "-90" {
			out = append(out, "+k="+get("scale_factor", "1"))
		}
		return append(out, x0, y0), nil
	case "lambert_conformal_conic_2sp", "lambert_conformal_conic":
		return []string{"+proj=lcc", "+lat_0=" + get("latitude_of_origin", "0"), "+lon_0=" + get("central_meridian", "0"),
			"+lat_1=" + get("standard_parallel_1", "0"), "+lat_2=" + get("standard_parallel_2", "0"), x0, y0}, nil
	case "lambert_conformal_conic_1sp":
		lat0 := get("latitude_of_origin", "0")
		return []string{"+proj=lcc", "+lat_1=" + lat0, "+lat_0=" + lat0, "+lon_0=" + get("central_meridian", "0"),
			"+k_0=" + get("scale_factor", "1"), x0, y0}, nil
	case "transverse_mercator":
		return []string{"+proj=tmerc", "+lat_0=" + get("latitude_of_origin", "0"), "+lon_0=" + get("central_meridian", "0"),
			"+k=" + get("scale_factor", "1"), x0, y0}, nil
	case "mercator_1sp":
		return []string{"+proj=merc", "+lon_0=" + get("central_meridian", "0"), "+k=" + get("scale_factor", "1"), x0, y0}, nil
	case "albers_conic_equal_area":
		return []string{"+proj=aea", "+lat_0=" + get("latitude_of_center", get("latitude_of_origin", "0")),
			"+lon_0=" + get("longitude_of_center", get("central_meridian", "0")),
			"+lat_1=" + get("standard_parallel_1", "0"), "+lat_2=" + get("standard_parallel_2", "0"), x0, y0}, nil
	}
	if a := root.child("AUTHORITY"); a != nil && strings.EqualFold(a.value(0), "EPSG") && a.value(1) != "" {
		return nil, &authorityOnly{code: a.value(1)}
	}
	return nil, fmt.Errorf("%w: projection %q", ErrUnsupported, name)
}

// authorityOnly signals that only an EPSG code can describe the system.
type authorityOnly struct{ code string }

func (a *authorityOnly) Error() string { return "projection: use init=epsg:" + a.code }

// Resolve exports wkt, falling back to an init=epsg reference when the
// projection is unknown but carries an EPSG authority.
func Resolve(e Exporter, wkt string) (string, error) {
	s, err := e.ToProj4(wkt)
	var ao *authorityOnly
	if errors.As(err, &ao) {
		return "init=epsg:" + ao.code, nil
	}
	return s, err
}

func num(s string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
