// Package ogc reads OGC KVP requests and writes OGC exception reports.
package ogc

import (
	"net/url"
	"strings"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/model"
)

// WCSFormats maps coverage formats onto download file extensions.
var WCSFormats = map[string]string{
	"image/tiff":   "tif",
	"image/netcdf": "nc",
}

// Param returns the first value of key, matching names case-insensitively
// as OGC KVP requires. Present reports whether key was sent at all.
func Param(q url.Values, key string) (v string, present bool) {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	for k, vs := range q {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}

// ParseRequest extracts the gateway fields of q. SERVICE defaults to WMS.
func ParseRequest(q url.Values) model.OWSRequest {
	get := func(k string) string {
		v, _ := Param(q, k)
		return strings.TrimSpace(v)
	}
	r := model.OWSRequest{
		Service: strings.ToUpper(get("SERVICE")),
		Request: get("REQUEST"),
		Lang:    catalog.ParseLang(get("LANG")),
		Time:    get("TIME"),
		Format:  get("FORMAT"),
		Style:   get("STYLE"),
		Query:   q,
	}
	if r.Service == "" {
		r.Service = "WMS"
	}
	for _, k := range []string{"LAYERS", "LAYER", "COVERAGEID"} {
		if v, ok := Param(q, k); ok {
			r.Layer = strings.TrimSpace(v)
			break
		}
	}
	return r
}

// CoverageFilename is the download name of a GetCoverage response, or ""
// when the format has no known extension.
func CoverageFilename(layer, format string) string {
	ext, ok := WCSFormats[strings.ToLower(format)]
	if !ok {
		return ""
	}
	return "geomet-climate-" + layer + "." + ext
}

// ForwardQuery copies q and points it at mapfile.
func ForwardQuery(q url.Values, mapfile string) url.Values {
	out := make(url.Values, len(q)+1)
	for k, vs := range q {
		if strings.EqualFold(k, "map") {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	out.Set("map", mapfile)
	return out
}
