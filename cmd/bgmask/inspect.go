package main

import (
	"fmt"

	"github.com/setanarut/bgmask"
	"github.com/setanarut/bgmask/utils"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Show what masking would do to a single image",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	def := bgmask.DefaultOptions()
	inspectCmd.Flags().Float64("bg-tolerance", def.BackgroundTolerance, "RGB distance to the top-left color below which pixels are masked")
	inspectCmd.Flags().Float64("black-tolerance", def.BlackTolerance, "RGB distance to black below which pixels are masked")
	inspectCmd.Flags().Int("palette", 5, "Number of foreground colors to report")
	inspectCmd.Flags().String("palette-method", "dominantcolor", "Palette method (dominantcolor, kmeans)")
	inspectCmd.Flags().String("swatch", "", "Write the foreground palette as a PNG swatch")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	bgTol, _ := cmd.Flags().GetFloat64("bg-tolerance")
	blackTol, _ := cmd.Flags().GetFloat64("black-tolerance")
	k, _ := cmd.Flags().GetInt("palette")
	methodStr, _ := cmd.Flags().GetString("palette-method")
	swatch, _ := cmd.Flags().GetString("swatch")

	method, err := utils.ParsePaletteMethod(methodStr)
	if err != nil {
		return err
	}
	opt := bgmask.Options{BackgroundTolerance: bgTol, BlackTolerance: blackTol}
	if err := opt.Validate(); err != nil {
		return err
	}

	img, err := utils.ReadImage(path)
	if err != nil {
		return err
	}
	masked, stats := bgmask.Mask(img, opt)
	palette, used := utils.ExtractPalette(masked, k, method)
	utils.SortPaletteByBrightness(palette)

	out := cmd.OutOrStdout()
	b := masked.Bounds()
	fmt.Fprintf(out, "File:       %s\n", path)
	fmt.Fprintf(out, "Dimensions: %d x %d\n", b.Dx(), b.Dy())
	fmt.Fprintf(out, "Reference:  %s\n", stats.Reference.Hex())
	fmt.Fprintf(out, "Masked:     %d / %d pixels (%.1f%%)\n", stats.Masked, stats.Total, stats.Fraction()*100)
	fmt.Fprintf(out, "Foreground: %v (%s)\n", utils.HexPalette(palette), used)

	if swatch != "" {
		if err := utils.SavePalette(palette, 64, swatch); err != nil {
			return err
		}
		fmt.Fprintf(out, "Swatch:     %s\n", swatch)
	}
	return nil
}
