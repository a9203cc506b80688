package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/setanarut/bgmask"
	"github.com/setanarut/bgmask/utils"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Mask the background of every PNG under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	def := bgmask.DefaultOptions()
	runCmd.Flags().StringP("out", "o", "", "Write results under this directory instead of overwriting originals")
	runCmd.Flags().Float64("bg-tolerance", def.BackgroundTolerance, "RGB distance to the top-left color below which pixels are masked")
	runCmd.Flags().Float64("black-tolerance", def.BlackTolerance, "RGB distance to black below which pixels are masked")
	runCmd.Flags().IntP("workers", "j", 1, "Files processed concurrently")
	runCmd.Flags().Bool("dry-run", false, "Process and report without writing files")
	runCmd.Flags().Int("palette", 0, "Report this many foreground colors per file")
	runCmd.Flags().String("palette-method", "dominantcolor", "Palette method (dominantcolor, kmeans)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	bgTol, _ := cmd.Flags().GetFloat64("bg-tolerance")
	blackTol, _ := cmd.Flags().GetFloat64("black-tolerance")
	workers, _ := cmd.Flags().GetInt("workers")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	paletteSize, _ := cmd.Flags().GetInt("palette")
	methodStr, _ := cmd.Flags().GetString("palette-method")

	method, err := utils.ParsePaletteMethod(methodStr)
	if err != nil {
		return err
	}

	cfg := bgmask.DefaultConfig(args[0])
	cfg.OutputDir = outDir
	cfg.Options = bgmask.Options{BackgroundTolerance: bgTol, BlackTolerance: blackTol}
	cfg.Workers = workers
	cfg.DryRun = dryRun
	cfg.PaletteSize = paletteSize
	cfg.PaletteMethod = method

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := bgmask.Run(ctx, cfg)
	if report != nil {
		out := cmd.OutOrStdout()
		for _, res := range report.Results {
			if res.OK() && len(res.Palette) > 0 {
				fmt.Fprintf(out, "%s: %v\n", res.Path, utils.HexPalette(res.Palette))
			}
		}
		fmt.Fprintln(out, report.Summary())
	}
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}
