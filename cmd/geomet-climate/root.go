package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/config"
	"github.com/ECCC-CCCS/geomet-climate/internal/extentstore"
	"github.com/ECCC-CCCS/geomet-climate/internal/logger"
	"github.com/ECCC-CCCS/geomet-climate/internal/mapfile"
)

var (
	cfg    config.Config
	appLog *slog.Logger

	logLevel   string
	logConsole bool
	logSampleN int
)

// errLayersFailed marks a run that finished with at least one layer failing.
var errLayersFailed = errors.New("one or more layers failed")

var rootCmd = &cobra.Command{
	Use:   "geomet-climate",
	Short: "Climate WMS/WCS configuration compiler and OGC front end",
	Long: `geomet-climate compiles the climate layer catalog into MapServer mapfiles,
virtual rasters and tile indexes, and serves the resulting WMS/WCS services.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.FromEnv()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		zl := logger.Build(logger.Config{
			Level:     cfg.LogLevel,
			Console:   logConsole,
			SampleN:   logSampleN,
			Component: cmd.Name(),
			File:      cfg.OWSLog,
		}, os.Stdout)
		appLog = logger.NewSlog(&zl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides GEOMET_CLIMATE_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "console", false, "human readable log output")
	rootCmd.PersistentFlags().IntVar(&logSampleN, "log-sample", 0, "keep one log event in N")
}

func loadCatalog() (*catalog.Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func paths() compiler.Paths {
	return compiler.Paths{BaseDir: cfg.BaseDir, DataDir: cfg.DataDir}
}

func stylesDir() string {
	if cfg.StylesDir != "" {
		return cfg.StylesDir
	}
	return filepath.Join(cfg.BaseDir, "resources")
}

func newCompiler() *compiler.Compiler {
	return compiler.New(paths(),
		compiler.WithStyles(compiler.NewDirStyles(stylesDir())),
		compiler.WithLogger(appLog),
	)
}

// layerNames returns the single requested layer, or nil for the whole
// catalog.
func layerNames(cat *catalog.Catalog, layer string) ([]string, error) {
	if layer == "" {
		return nil, nil
	}
	if _, err := cat.Lookup(layer); err != nil {
		return nil, err
	}
	return []string{layer}, nil
}

func parseServices(s string) ([]compiler.Service, error) {
	if s == "" {
		return compiler.Services, nil
	}
	svc, err := compiler.ParseService(s)
	if err != nil {
		return nil, err
	}
	return []compiler.Service{svc}, nil
}

// mapExtent resolves the catalog map settings against the base map
// defaults.
func mapExtent(cat *catalog.Catalog) ([]float64, string) {
	base := mapfile.Base(cat.Map.Extent, cat.Map.SRS)
	srs, _ := base.Web.Metadata.Get("ows_srs")
	return base.Extent, srs
}

func openRedis(ctx context.Context) (*extentstore.Redis, error) {
	return extentstore.NewRedis(ctx, cfg.RedisAddr,
		extentstore.WithDialTimeout(2*time.Second),
		extentstore.WithReadTimeout(cfg.ExtentOpTimeout),
		extentstore.WithWriteTimeout(cfg.ExtentOpTimeout),
	)
}

func mapfileDir() string { return filepath.Join(cfg.BaseDir, "mapfile") }

// layerFailures logs every failed layer of a batch error.
func layerFailures(err error) bool {
	var be *compiler.BatchError
	if !errors.As(err, &be) {
		return false
	}
	for _, f := range be.Failures {
		appLog.Error("layer failed", "layer", f.Layer, "err", f.Err)
	}
	return true
}
