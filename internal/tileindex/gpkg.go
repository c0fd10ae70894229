package tileindex

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/ECCC-CCCS/geomet-climate/internal/projection"
)

const (
	gpkgApplicationID = 0x47504B47
	gpkgUserVersion   = 10200
	// first id outside the EPSG range for grids without an authority
	customSRSID = 100000
)

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

// SRS is a gpkg_spatial_ref_sys row.
type SRS struct {
	ID           int
	Name         string
	Organization string
	Code         int
	Definition   string
}

// SRSFor registers wkt under its EPSG code when it has one.
func SRSFor(wkt string) SRS {
	if org, code, ok := projection.Authority(wkt); ok && strings.EqualFold(org, "EPSG") {
		return SRS{ID: code, Name: fmt.Sprintf("EPSG:%d", code), Organization: "EPSG", Code: code, Definition: wkt}
	}
	return SRS{ID: customSRSID, Name: "custom", Organization: "NONE", Code: customSRSID, Definition: wkt}
}

// Index is one GeoPackage feature table.
type Index struct {
	Name      string
	SRS       SRS
	Footprint geom.Polygon
	Extent    geom.Extent
	Features  []Feature
}

var schema = []string{
	fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
	fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE,
		min_y DOUBLE,
		max_x DOUBLE,
		max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
	)`,
	`INSERT INTO gpkg_spatial_ref_sys VALUES ('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', NULL)`,
	`INSERT INTO gpkg_spatial_ref_sys VALUES ('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', NULL)`,
	`INSERT INTO gpkg_spatial_ref_sys VALUES ('WGS 84 geodetic', 4326, 'EPSG', 4326, '` + wgs84WKT + `', NULL)`,
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// Write creates the GeoPackage at path. The file is built next to path and
// renamed into place, so readers never see a partial index.
func Write(ctx context.Context, path string, idx Index) (err error) {
	if idx.Name == "" {
		return errors.New("tileindex: table name is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tileindex: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("tileindex: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := build(ctx, tmpPath, idx); err != nil {
		return fmt.Errorf("tileindex %s: %w", idx.Name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tileindex: %w", err)
	}
	return nil
}

func build(ctx context.Context, path string, idx Index) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()
	// PRAGMAs are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES (?, ?, ?, ?, ?, NULL)`,
		idx.SRS.Name, idx.SRS.ID, idx.SRS.Organization, idx.SRS.Code, idx.SRS.Definition); err != nil {
		return fmt.Errorf("srs: %w", err)
	}

	table := quoteIdent(idx.Name)
	if _, err := db.ExecContext(ctx, `CREATE TABLE `+table+` (
		fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
		geom POLYGON,
		location TEXT,
		timestamp TEXT
	)`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	e := idx.Extent
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		idx.Name, idx.Name, e.MinX(), e.MinY(), e.MaxX(), e.MaxY(), idx.SRS.ID); err != nil {
		return fmt.Errorf("contents: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'POLYGON', ?, 0, 0)`,
		idx.Name, idx.SRS.ID); err != nil {
		return fmt.Errorf("geometry columns: %w", err)
	}

	blob, err := geometryBlob(int32(idx.SRS.ID), idx.Footprint, idx.Extent)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` (geom, location, timestamp) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, f := range idx.Features {
		if _, err := stmt.ExecContext(ctx, blob, f.Location, f.Timestamp); err != nil {
			return fmt.Errorf("insert %s: %w", f.Timestamp, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// geometryBlob encodes poly as a GeoPackage binary: the GP header with an
// xy envelope, little endian, followed by WKB.
func geometryBlob(srsID int32, poly geom.Polygon, e geom.Extent) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0)    // version 1
	buf.WriteByte(0x03) // envelope [minx, maxx, miny, maxy], little endian
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	for _, v := range []float64{e.MinX(), e.MaxX(), e.MinY(), e.MaxY()} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	if err := wkb.EncodeWithByteOrder(binary.LittleEndian, &buf, poly); err != nil {
		return nil, fmt.Errorf("wkb: %w", err)
	}
	return buf.Bytes(), nil
}
