// Package servicemeta builds the service-level WEB METADATA block of the
// generated mapfiles.
package servicemeta

import (
	"strconv"
	"strings"
	"time"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/mapfile"
)

const (
	keywordVocabulary = "http://purl.org/dc/terms/"
	// one week
	httpMaxAge = 604800
)

type Params struct {
	Service compiler.Service
	URL     string
	Version string
	Extent  []float64
	SRS     string
	// Updated stamps ows_updatesequence. Unchanged inputs must yield the
	// same value so unchanged mapfiles keep their checksum.
	Updated time.Time
}

type entry struct {
	key       string
	value     catalog.Bilingual[string]
	bilingual bool
}

// Metadata is the compiled, language-neutral service record.
type Metadata struct {
	Service compiler.Service
	entries []entry
}

func (m *Metadata) plain(key, v string) {
	m.entries = append(m.entries, entry{key: key, value: catalog.Both(v, v)})
}

func (m *Metadata) both(key string, v catalog.Bilingual[string]) {
	m.entries = append(m.entries, entry{key: key, value: v, bilingual: true})
}

// Get returns the value of key in both languages.
func (m Metadata) Get(key string) (catalog.Bilingual[string], bool) {
	for _, e := range m.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return catalog.Bilingual[string]{}, false
}

// Compile assembles the service record from the catalog metadata section.
func Compile(c catalog.Metadata, p Params) Metadata {
	m := Metadata{Service: p.Service}
	id, prov := c.Identification, c.Provider
	contact, addr := prov.Contact, prov.Contact.Address

	m.both("ows_onlineresource", catalog.Both(p.URL, p.URL+"?lang=fr"))
	title := catalog.Map(id.Title, func(_ catalog.Lang, t string) string {
		return strings.TrimSpace(t + " " + p.Version)
	})
	m.both("ows_title", title)
	m.both("ows_abstract", id.Abstract)
	m.plain("ows_keywordlist_vocabulary", keywordVocabulary)
	keywords := catalog.Map(id.Keywords, func(_ catalog.Lang, k []string) string { return strings.Join(k, ",") })
	m.both("ows_keywordlist_"+keywordVocabulary+"_items", keywords)
	m.plain("ows_fees", id.Fees)
	m.plain("ows_accessconstraints", id.AccessConstraints)
	m.plain("wms_getmap_formatlist", "image/png,image/jpeg")
	m.plain("ows_extent", catalog.JoinFloats(p.Extent, ","))
	m.plain("ows_role", prov.Role)
	m.plain("ows_http_max_age", strconv.Itoa(httpMaxAge))
	m.plain("ows_updatesequence", p.Updated.UTC().Format("2006-01-02T15:04:05Z"))
	m.both("ows_service_onlineresource", id.URL)
	m.plain("encoding", "UTF-8")
	m.plain("ows_srs", p.SRS)

	m.both("ows_contactperson", contact.Name)
	m.both("ows_contactposition", contact.Position)
	m.both("ows_contactorganization", prov.Name)
	m.both("ows_address", addr.DeliveryPoint)
	m.plain("ows_addresstype", "postal")
	m.both("ows_city", addr.City)
	m.both("ows_stateorprovince", addr.StateOrProvince)
	m.plain("ows_postcode", addr.PostalCode)
	m.both("ows_country", addr.Country)
	m.plain("ows_contactelectronicmailaddress", addr.Email)
	m.plain("ows_contactvoicetelephone", contact.Phone.Voice)
	m.plain("ows_contactfacsimiletelephone", contact.Phone.Fax)
	m.both("ows_contactinstructions", contact.Instructions)
	m.both("ows_hoursofservice", contact.Hours)

	switch p.Service {
	case compiler.WMS:
		m.plain("wms_enable_request", "*")
		m.plain("wms_getfeatureinfo_formatlist", "text/plain,application/json,application/vnd.ogc.gml")
		m.both("wms_attribution_onlineresource", c.Attribution.URL)
		m.both("wms_attribution_title", c.Attribution.Title)
		m.plain("wms_attribution_logourl_format", prov.Logo.Format)
		m.plain("wms_attribution_logourl_width", strconv.Itoa(prov.Logo.Width))
		m.plain("wms_attribution_logourl_height", strconv.Itoa(prov.Logo.Height))
		m.plain("wms_attribution_logourl_href", prov.Logo.Href)
	case compiler.WCS:
		m.plain("wcs_enable_request", "*")
		m.both("wcs_label", title)
		m.both("wcs_description", id.Abstract)
		m.both("ows_keywordlist", keywords)
	}
	return m
}

// Render produces the METADATA block for lang: unsuffixed keys in that
// language followed by _en and _fr variants of every bilingual key.
func (m Metadata) Render(lang catalog.Lang) mapfile.Metadata {
	var out mapfile.Metadata
	for _, e := range m.entries {
		out.Set(e.key, e.value.In(lang))
		if e.bilingual {
			for _, l := range catalog.Languages {
				out.Set(e.key+"_"+string(l), e.value.In(l))
			}
		}
	}
	return out
}
