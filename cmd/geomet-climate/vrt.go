package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/tileindex"
)

var vrtLayer string

var vrtCmd = &cobra.Command{
	Use:   "vrt",
	Short: "Manage virtual rasters",
}

var vrtGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the merged VRT of every file series layer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b := tileindex.NewBuilder(paths(), tileindex.WithLogger(appLog))
		return eachLayer(cmd.Context(), vrtLayer, "vrt", b.MergedVRT)
	},
}

func init() {
	vrtGenerateCmd.Flags().StringVarP(&vrtLayer, "layer", "l", "", "generate a single layer")
	vrtCmd.AddCommand(vrtGenerateCmd)
	rootCmd.AddCommand(vrtCmd)
}

// eachLayer runs fn over the requested layers in name order. A failing
// layer is logged and does not stop the others.
func eachLayer(ctx context.Context, layer, kind string, fn func(context.Context, catalog.Layer) (string, error)) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	names, err := layerNames(cat, layer)
	if err != nil {
		return err
	}
	if names == nil {
		names = cat.Names()
	}
	failed := false
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		l, _ := cat.Lookup(name)
		path, err := fn(ctx, l)
		if err != nil {
			appLog.Error("layer failed", "kind", kind, "layer", name, "err", err)
			failed = true
			continue
		}
		if path == "" {
			appLog.Debug("layer skipped", "kind", kind, "layer", name)
			continue
		}
		appLog.Info("artifact generated", "kind", kind, "layer", name, "path", path)
	}
	if failed {
		return errLayersFailed
	}
	return nil
}
