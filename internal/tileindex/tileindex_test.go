package tileindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/temporal"
)

func loadLayer(t *testing.T, name string) catalog.Layer {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "..", "testdata", "geomet-climate-test.yml"))
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	l, err := cat.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return l
}

func fixedList(names ...string) Lister {
	return func(string) ([]string, error) { return names, nil }
}

const sit = "CMIP5.SIT.RCP45.YEAR.ANO_PCTL50"
const pcp = "CANGRD.ANO.PR_MONTHLY"

func TestFeatures_MultiBandYieldsOneSlicePerBand(t *testing.T) {
	l := loadLayer(t, sit)
	paths := compiler.Paths{BaseDir: "/opt/geomet-climate", DataDir: "/data/climate"}
	feats, err := Features(l, paths, nil)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if len(feats) != 95 {
		t.Fatalf("features=%d want 95", len(feats))
	}
	if feats[0].Timestamp != "2006-01-00T00:00:00" || feats[94].Timestamp != "2100-01-00T00:00:00" {
		t.Fatalf("first=%s last=%s", feats[0].Timestamp, feats[94].Timestamp)
	}
	if !strings.Contains(feats[94].Location, "<SourceBand>95</SourceBand>") {
		t.Fatalf("last location does not read band 95: %s", feats[94].Location)
	}
	if !strings.Contains(feats[0].Location, paths.DataPath(l)) {
		t.Fatalf("location does not reference the source file")
	}
}

func TestFeatures_FileSeriesMatchesPrefix(t *testing.T) {
	l := loadLayer(t, pcp)
	paths := compiler.Paths{BaseDir: "/opt/geomet-climate", DataDir: "/data/climate"}
	list := fixedList(
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-02.tif",
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif",
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif.aux.xml",
		"CANGRD_hist_monthly_anom_ps50km_TMEAN_1948-01.tif",
		"CANGRD_hist_monthly_anom_ps50km_PCP_latest.tif",
	)
	feats, err := Features(l, paths, list)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if len(feats) != 2 {
		t.Fatalf("features=%+v", feats)
	}
	if feats[0].Timestamp != "1948-01-00T00:00:00" || feats[1].Timestamp != "1948-02-00T00:00:00" {
		t.Fatalf("timestamps=%s,%s", feats[0].Timestamp, feats[1].Timestamp)
	}
	want := filepath.Join(paths.DataDirOf(l), "CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif")
	if feats[0].Location != want {
		t.Fatalf("location=%s want %s", feats[0].Location, want)
	}
}

func TestFeatures_StaticLayerHasNone(t *testing.T) {
	l := loadLayer(t, "CANGRD.TREND.TM_ANNUAL")
	feats, err := Features(l, compiler.Paths{}, fixedList("x.tif"))
	if err != nil || feats != nil {
		t.Fatalf("feats=%v err=%v", feats, err)
	}
}

func TestSRSFor(t *testing.T) {
	if s := SRSFor(loadLayer(t, sit).Model.Projection); s.ID != 4326 || s.Organization != "EPSG" {
		t.Fatalf("wgs84 srs=%+v", s)
	}
	if s := SRSFor(loadLayer(t, pcp).Model.Projection); s.ID != customSRSID || s.Organization != "NONE" {
		t.Fatalf("polar stereographic srs=%+v", s)
	}
}

func TestBuilder_TileIndexWritesGeoPackage(t *testing.T) {
	base := t.TempDir()
	l := loadLayer(t, pcp)
	paths := compiler.Paths{BaseDir: base, DataDir: filepath.Join(base, "data")}
	b := NewBuilder(paths, WithLister(fixedList(
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif",
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-02.tif",
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-03.tif",
	)))

	path, err := b.TileIndex(context.Background(), l)
	if err != nil {
		t.Fatalf("TileIndex: %v", err)
	}
	if path != paths.TileIndexPath(l) {
		t.Fatalf("path=%s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var appID int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil || appID != gpkgApplicationID {
		t.Fatalf("application_id=%d err=%v", appID, err)
	}
	var dataType string
	var srsID int
	if err := db.QueryRow(`SELECT data_type, srs_id FROM gpkg_contents WHERE table_name = ?`, l.IndexName()).Scan(&dataType, &srsID); err != nil {
		t.Fatalf("contents: %v", err)
	}
	if dataType != "features" || srsID != customSRSID {
		t.Fatalf("data_type=%s srs_id=%d", dataType, srsID)
	}

	rows, err := db.Query(`SELECT geom, location, timestamp FROM "` + l.IndexName() + `" ORDER BY fid`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var stamps []string
	for rows.Next() {
		var blob []byte
		var loc, ts string
		if err := rows.Scan(&blob, &loc, &ts); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if string(blob[:2]) != "GP" || int32(binary.LittleEndian.Uint32(blob[4:8])) != customSRSID {
			t.Fatalf("bad geopackage header %x", blob[:8])
		}
		g, err := wkb.DecodeBytes(blob[8+32:])
		if err != nil {
			t.Fatalf("wkb: %v", err)
		}
		poly, ok := g.(geom.Polygon)
		if !ok || len(poly) != 1 || len(poly[0]) != 4 {
			t.Fatalf("geometry=%#v", g)
		}
		if poly[0][1] != [2]float64{-4046324, -729185} {
			t.Fatalf("second vertex=%v", poly[0][1])
		}
		if !strings.HasSuffix(loc, ".tif") {
			t.Fatalf("location=%s", loc)
		}
		stamps = append(stamps, ts)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	if strings.Join(stamps, ",") != "1948-01-00T00:00:00,1948-02-00T00:00:00,1948-03-00T00:00:00" {
		t.Fatalf("stamps=%v", stamps)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".*"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func TestBuilder_TileIndexSkipsStaticLayers(t *testing.T) {
	b := NewBuilder(compiler.Paths{BaseDir: t.TempDir()})
	path, err := b.TileIndex(context.Background(), loadLayer(t, "CLIMATE.STATIONS"))
	if err != nil || path != "" {
		t.Fatalf("path=%q err=%v", path, err)
	}
}

func TestBuilder_MergedVRT(t *testing.T) {
	base := t.TempDir()
	l := loadLayer(t, pcp)
	paths := compiler.Paths{BaseDir: base, DataDir: filepath.Join(base, "data")}
	dir := paths.DataDirOf(l)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-02.tif",
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif",
		"README.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := NewBuilder(paths).MergedVRT(context.Background(), l)
	if err != nil {
		t.Fatalf("MergedVRT: %v", err)
	}
	if out != filepath.Join(paths.VRTDir(l), l.Filename+".vrt") {
		t.Fatalf("out=%s", out)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	doc := string(b)
	if strings.Count(doc, "<VRTRasterBand") != 2 {
		t.Fatalf("band count in %s", doc)
	}
	first := strings.Index(doc, "PCP_1948-01.tif")
	second := strings.Index(doc, "PCP_1948-02.tif")
	if first < 0 || second < first {
		t.Fatalf("sources out of order")
	}
}

func TestBuilder_MergedVRTIgnoresMultiBand(t *testing.T) {
	out, err := NewBuilder(compiler.Paths{BaseDir: t.TempDir()}).MergedVRT(context.Background(), loadLayer(t, sit))
	if err != nil || out != "" {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestBuilder_MergedVRTWritesAbsoluteSources(t *testing.T) {
	l := loadLayer(t, pcp)
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	paths := compiler.Paths{BaseDir: ".", DataDir: "data"}
	b := NewBuilder(paths, WithLister(fixedList("CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif")))

	out, err := b.MergedVRT(context.Background(), l)
	if err != nil {
		t.Fatalf("MergedVRT: %v", err)
	}
	doc, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	const open = `<SourceFilename relativeToVRT="0">`
	i := strings.Index(string(doc), open)
	if i < 0 {
		t.Fatalf("no source in %s", doc)
	}
	src := string(doc[i+len(open):])
	src = src[:strings.Index(src, "<")]
	if !filepath.IsAbs(src) {
		t.Fatalf("source %q is not absolute", src)
	}
	if filepath.Base(src) != "CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif" {
		t.Fatalf("source=%q", src)
	}
}

func TestBuilder_RejectsTimestepWithoutTemporalExtent(t *testing.T) {
	noExtent := func(l catalog.Layer) catalog.Layer {
		m := *l.Model
		m.TemporalExtent = nil
		l.Model = &m
		return l
	}
	b := NewBuilder(compiler.Paths{BaseDir: t.TempDir()}, WithLister(fixedList(
		"CANGRD_hist_monthly_anom_ps50km_PCP_1948-01.tif",
	)))

	for _, name := range []string{sit, pcp} {
		l := noExtent(loadLayer(t, name))
		if _, err := Features(l, compiler.Paths{}, fixedList()); !errors.Is(err, temporal.ErrInvalidStart) {
			t.Fatalf("%s Features: want ErrInvalidStart, got %v", name, err)
		}
		if _, err := b.TileIndex(context.Background(), l); !errors.Is(err, temporal.ErrInvalidStart) {
			t.Fatalf("%s TileIndex: want ErrInvalidStart, got %v", name, err)
		}
	}
	if _, err := b.MergedVRT(context.Background(), noExtent(loadLayer(t, pcp))); !errors.Is(err, temporal.ErrInvalidStart) {
		t.Fatalf("MergedVRT: want ErrInvalidStart, got %v", err)
	}
}
