package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ECCC-CCCS/geomet-climate/internal/emitter"
	"github.com/ECCC-CCCS/geomet-climate/internal/invalidation"
	"github.com/ECCC-CCCS/geomet-climate/internal/invalidation/kafkaconsumer"
	"github.com/ECCC-CCCS/geomet-climate/internal/servicemeta"
)

var (
	genService string
	genLayer   string
)

var mapfileCmd = &cobra.Command{
	Use:   "mapfile",
	Short: "Manage MapServer mapfiles",
}

var mapfileGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compile the catalog into mapfiles and query templates",
	Long: `Compile every catalog layer (or --layer) for WMS and WCS (or --service) and
write per-layer mapfiles. Without --layer the whole-catalog mapfiles of each
language are written too. When GEOMET_CLIMATE_REDIS_ADDR is set the compiled
time extents are published for the front ends.`,
	RunE: runMapfileGenerate,
}

func init() {
	mapfileGenerateCmd.Flags().StringVarP(&genService, "service", "s", "", "WMS or WCS (default both)")
	mapfileGenerateCmd.Flags().StringVarP(&genLayer, "layer", "l", "", "compile a single layer")
	mapfileCmd.AddCommand(mapfileGenerateCmd)
	rootCmd.AddCommand(mapfileCmd)
}

func runMapfileGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	names, err := layerNames(cat, genLayer)
	if err != nil {
		return err
	}
	svcs, err := parseServices(genService)
	if err != nil {
		return err
	}

	opts := []emitter.Option{emitter.WithLogger(appLog)}
	if host, err := os.Hostname(); err == nil {
		opts = append(opts, emitter.WithSource(host))
	}
	if cfg.RedisAddr != "" {
		rs, err := openRedis(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rs.Close() }()
		opts = append(opts, emitter.WithExtentSink(rs))
	}
	if cfg.Invalidation.Enabled {
		pub, err := invalidation.NewPublisher(kafkaconsumer.SplitCSV(cfg.Invalidation.Brokers), cfg.Invalidation.Topic)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, emitter.WithPublisher(pub))
	}
	em := emitter.New(opts...)
	updated := inputsUpdated()
	c := newCompiler()
	extent, srs := mapExtent(cat)

	failed := false
	for _, svc := range svcs {
		batch, err := c.CompileAll(ctx, cat, names, svc, cfg.CompileWorkers)
		if err != nil {
			if !layerFailures(err) {
				return err
			}
			failed = true
		}
		for _, w := range batch.Warnings {
			appLog.Warn("compile warning", "service", string(svc), "layer", w.Layer, "err", w.Err)
		}
		meta := servicemeta.Compile(cat.Metadata, servicemeta.Params{
			Service: svc,
			URL:     cfg.URL,
			Version: Version,
			Extent:  extent,
			SRS:     srs,
			Updated: updated,
		})
		res, err := em.Emit(ctx, batch, meta, emitter.Target{
			Dir:       mapfileDir(),
			Extent:    extent,
			SRS:       srs,
			Aggregate: genLayer == "",
		})
		if err != nil {
			return err
		}
		appLog.Info("mapfiles generated",
			"service", string(svc), "written", len(res.Written),
			"unchanged", len(res.Unchanged), "checksum", res.Checksum)
	}
	if failed {
		return errLayersFailed
	}
	return nil
}

// inputsUpdated is the newest modification time of the catalog and the style
// files. It falls back to the current time when nothing can be stat'ed.
func inputsUpdated() time.Time {
	var newest time.Time
	bump := func(path string) {
		if fi, err := os.Stat(path); err == nil && fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	bump(cfg.Catalog)
	if entries, err := os.ReadDir(stylesDir()); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				bump(filepath.Join(stylesDir(), e.Name()))
			}
		}
	}
	if newest.IsZero() {
		return time.Now()
	}
	return newest
}
