package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/setanarut/bgmask"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "bgmask",
	Short:         "Make uniform PNG backgrounds transparent",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			level = slog.LevelDebug
		}
		bgmask.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log per-image details")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
