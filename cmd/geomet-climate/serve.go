package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/compiler"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/executor"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/health"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/httpclient"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/router"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/server"
	"github.com/ECCC-CCCS/geomet-climate/internal/extentstore"
	"github.com/ECCC-CCCS/geomet-climate/internal/invalidation/kafkaconsumer"
	"github.com/ECCC-CCCS/geomet-climate/internal/metrics"
	"github.com/ECCC-CCCS/geomet-climate/internal/validator"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OGC front end in front of MapServer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides GEOMET_CLIMATE_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	observability.ExposeBuildInfo(Version)
	p := metrics.Init(metrics.Config{Build: metrics.BuildInfo{
		Version:   Version,
		Revision:  Revision,
		Branch:    Branch,
		BuildDate: BuildDate,
	}})
	catalogLayers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geomet_climate_catalog_layers",
		Help: "Layers in the loaded catalog.",
	})
	p.Register(catalogLayers)
	catalogLayers.Set(float64(len(cat.Layers)))

	checks := []health.Check{{Name: "mapfiles", Fn: func(context.Context) error {
		fi, err := os.Stat(mapfileDir())
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", mapfileDir())
		}
		return nil
	}}}

	var src extentstore.Source
	if cfg.RedisAddr != "" {
		rs, err := openRedis(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rs.Close() }()
		src = rs
		checks = append(checks, health.Check{Name: "redis", Fn: rs.Ping})
	} else {
		mem := extentstore.NewMemory()
		if err := seedExtents(ctx, appLog, cat, mem); err != nil {
			return err
		}
		appLog.Info("time extents seeded from catalog", "extents", mem.Len())
		src = mem
	}
	extents, err := extentstore.NewCache(src, cfg.ExtentCacheSize, cfg.ExtentOpTimeout)
	if err != nil {
		return err
	}

	v, err := validator.New(validator.DefaultMemoSize)
	if err != nil {
		return err
	}
	exec, err := executor.New(appLog, httpclient.NewOutbound(cfg.UpstreamTimeout), cfg.MapServerURL)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	if cfg.Invalidation.Enabled {
		kc := kafkaconsumer.FromEnv()
		kc.Brokers = kafkaconsumer.SplitCSV(cfg.Invalidation.Brokers)
		kc.Topic = cfg.Invalidation.Topic
		kc.GroupID = cfg.Invalidation.GroupID
		consumer := kafkaconsumer.New(kc, appLog, extents)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("recompile consumer stopped", "err", err)
			}
		}()
	}

	ows := router.New(appLog, router.Deps{
		BaseDir:   cfg.BaseDir,
		Layers:    router.CatalogLayers{Catalog: cat},
		Extents:   extents,
		Validator: v,
		Exec:      exec,
	})
	handler := server.Routes(appLog, ows, p.Handler(), checks...)

	appLog.Info("starting front end",
		"addr", cfg.Addr, "version", Version,
		"mapserver", cfg.MapServerURL, "layers", len(cat.Layers))
	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return err
	}
	appLog.Info("server stopped")
	return nil
}

// seedExtents fills mem with the declared time extent of every temporal
// layer. A layer whose declaration does not parse is logged and left out;
// style or data problems never cost a layer its extent.
func seedExtents(ctx context.Context, log *slog.Logger, cat *catalog.Catalog, mem *extentstore.Memory) error {
	extents := map[string]string{}
	for _, name := range cat.Names() {
		l := cat.Layers[name]
		if !l.Temporal() {
			continue
		}
		ext, err := l.TimeExtent()
		if err != nil {
			log.Warn("time extent skipped", "layer", name, "err", err)
			continue
		}
		extents[name] = ext.String()
	}
	for _, svc := range compiler.Services {
		if err := mem.Put(ctx, string(svc), extents); err != nil {
			return err
		}
	}
	return nil
}
