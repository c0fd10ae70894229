package main

import (
	"github.com/spf13/cobra"

	"github.com/ECCC-CCCS/geomet-climate/internal/tileindex"
)

var tileindexLayer string

var tileindexCmd = &cobra.Command{
	Use:   "tileindex",
	Short: "Manage tile indexes",
}

var tileindexGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the GeoPackage tile index of every temporal raster layer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b := tileindex.NewBuilder(paths(), tileindex.WithLogger(appLog))
		return eachLayer(cmd.Context(), tileindexLayer, "tileindex", b.TileIndex)
	},
}

func init() {
	tileindexGenerateCmd.Flags().StringVarP(&tileindexLayer, "layer", "l", "", "generate a single layer")
	tileindexCmd.AddCommand(tileindexGenerateCmd)
	rootCmd.AddCommand(tileindexCmd)
}
