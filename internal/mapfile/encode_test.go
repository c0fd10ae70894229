package mapfile

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncode_LayerBlock(t *testing.T) {
	l := Layer{
		Name:       "CMIP5.SIT.RCP45.YEAR.ANO_PCTL50",
		Type:       "RASTER",
		Status:     "ON",
		TileIndex:  "CMIP5.SIT.RCP45.YEAR.ANO_PCTL50-tileindex",
		TileItem:   "location",
		Template:   "/basedir/mapfile/template/template-x.js",
		Dump:       true,
		Tolerance:  150,
		ClassGroup: "SICETHKN_ANOMALY",
		Projection: []string{"+proj=longlat +datum=WGS84 +no_defs"},
		Classes: []Class{{
			Name:       "0 - 1",
			Group:      "SICETHKN_ANOMALY",
			Expression: "([pixel] >= 0 AND [pixel] < 1)",
			Styles:     []Style{{ColorRange: []int{0, 0, 255, 255, 0, 0}, DataRange: []float64{0, 1}}},
		}},
	}
	l.Metadata.Set("ows_title", `Sea ice "thickness"`)
	l.Metadata.Set("ows_timeextent", "2006/2100/P1Y")

	got := string(EncodeLayer(l))
	for _, want := range []string{
		"LAYER\n",
		`  NAME "CMIP5.SIT.RCP45.YEAR.ANO_PCTL50"`,
		"  TYPE RASTER\n",
		`  TILEINDEX "CMIP5.SIT.RCP45.YEAR.ANO_PCTL50-tileindex"`,
		`  TILEITEM "location"`,
		"  DUMP TRUE\n",
		"  TOLERANCE 150\n",
		"  PROJECTION\n    \"proj=longlat\"\n    \"datum=WGS84\"\n    \"no_defs\"\n  END\n",
		`    "ows_title" "Sea ice \"thickness\""`,
		"    EXPRESSION ([pixel] >= 0 AND [pixel] < 1)\n",
		"      COLORRANGE 0 0 255 255 0 0\n",
		"      DATARANGE 0 1\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "END\n") {
		t.Fatalf("layer not closed:\n%s", got)
	}
}

func TestEncode_MapIsBalancedAndDeterministic(t *testing.T) {
	m := Base(nil, "")
	m.WithTemplate("/t/template-a.js")
	m.Layers = []Layer{{Name: "a", Type: "RASTER", Status: "ON", Data: "/d/a.tif", Projection: []string{"init=epsg:102998"}}}

	var a, b bytes.Buffer
	if err := Encode(&a, m); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := Encode(&b, m.Copy()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if a.String() != b.String() {
		t.Fatalf("copy encodes differently")
	}
	s := a.String()
	opens := 0
	for _, ln := range strings.Split(strings.TrimSpace(s), "\n") {
		switch strings.TrimSpace(ln) {
		case "MAP", "WEB", "METADATA", "OUTPUTFORMAT", "SYMBOL", "LAYER", "PROJECTION", "CLASS", "STYLE":
			opens++
		case "END":
			opens--
		}
	}
	if opens != 0 {
		t.Fatalf("unbalanced blocks (%d):\n%s", opens, s)
	}
	for _, want := range []string{
		"EXTENT -141 42 -52 84",
		`FORMATOPTION "FILE=/t/template-a.js"`,
		`"init=epsg:102998"`,
		`"ows_srs" "EPSG:4326 EPSG:3857 EPSG:3978 EPSG:102100"`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in\n%s", want, s)
		}
	}
}

func TestMetadata_SetReplaces(t *testing.T) {
	var md Metadata
	md.Set("a", "1")
	md.Set("b", "2")
	md.Set("a", "3")
	if len(md) != 2 || md[0].Value != "3" {
		t.Fatalf("got %+v", md)
	}
	if _, ok := md.Get("c"); ok {
		t.Fatalf("unexpected key c")
	}
}

func TestMetadata_Localize(t *testing.T) {
	var md Metadata
	md.Set("ows_title", "Air temperature")
	md.Set("ows_title_en", "Air temperature")
	md.Set("ows_title_fr", "Température de l'air")
	md.Set("ows_keywordlist_http://purl.org/dc/terms/_items", "Climate")
	md.Set("ows_keywordlist_http://purl.org/dc/terms/_items_fr", "Climat")

	fr := md.Localize("fr")
	if v, _ := fr.Get("ows_title"); v != "Température de l'air" {
		t.Fatalf("ows_title=%q", v)
	}
	if v, _ := fr.Get("ows_keywordlist_http://purl.org/dc/terms/_items"); v != "Climat" {
		t.Fatalf("keywords=%q", v)
	}
	if v, _ := md.Get("ows_title"); v != "Air temperature" {
		t.Fatalf("Localize mutated the receiver: %q", v)
	}
	if len(fr) != len(md) {
		t.Fatalf("Localize added keys: %d vs %d", len(fr), len(md))
	}
}
