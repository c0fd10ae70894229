// Package model defines the request types shared by the OGC front end.
package model

import (
	"net/url"
	"strings"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
)

// OWSRequest is the subset of an OGC KVP request the gateway acts on.
// Query keeps every original parameter for forwarding.
type OWSRequest struct {
	Service string
	Request string
	// Layer is LAYERS, LAYER or COVERAGEID, whichever came first.
	Layer  string
	Lang   catalog.Lang
	Time   string
	Format string
	Style  string
	Query  url.Values
}

// Single reports whether exactly one layer was named.
func (r OWSRequest) Single() bool {
	return r.Layer != "" && !strings.Contains(r.Layer, ",")
}

func (r OWSRequest) Is(request string) bool { return strings.EqualFold(r.Request, request) }
