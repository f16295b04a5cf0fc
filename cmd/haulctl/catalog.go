package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect item and terrain catalogs",
	}

	var asJSON bool
	digest := &cobra.Command{
		Use:   "digest",
		Short: "Print the digests a server announces in WELCOME",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := opts.catalogs()
			if err != nil {
				return err
			}
			rep := struct {
				ItemPalette  string `json:"item_palette"`
				ItemCount    int    `json:"item_count"`
				ItemDefs     string `json:"item_defs"`
				Terrain      string `json:"terrain"`
				TerrainCount int    `json:"terrain_count"`
			}{
				ItemPalette:  cats.Items.PaletteDigest,
				ItemCount:    len(cats.Items.Palette),
				ItemDefs:     cats.Items.DefsDigest,
				Terrain:      cats.Terrain.Digest,
				TerrainCount: len(cats.Terrain.Defs),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(rep)
			}
			fmt.Fprintf(out, "item_palette %s (%d)\n", rep.ItemPalette, rep.ItemCount)
			fmt.Fprintf(out, "item_defs    %s\n", rep.ItemDefs)
			fmt.Fprintf(out, "terrain      %s (%d)\n", rep.Terrain, rep.TerrainCount)
			return nil
		},
	}
	digest.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(digest)
	return cmd
}
