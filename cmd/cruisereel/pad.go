package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/cruisereel/internal/audio"
	"github.com/ivlev/cruisereel/internal/timeline"
)

func newPadCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var duration float64
	var photos int

	cmd := &cobra.Command{
		Use:   "pad",
		Short: "Export the ambient audio pad as a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if duration <= 0 {
				duration = timeline.New(cfg.Timeline, photos).TotalDuration()
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			pad := audio.NewPad(cfg.Audio)
			if err := pad.WriteWAV(f, duration); err != nil {
				f.Close()
				return err
			}
			info, err := f.Stat()
			if err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+++] Wrote %s (%s, %.2fs)\n", outPath, humanize.Bytes(uint64(info.Size())), duration)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "pad.wav", "Output WAV file")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Duration in seconds (default: video length for --photos)")
	cmd.Flags().IntVarP(&photos, "photos", "n", 5, "Number of photos used to derive the duration")
	return cmd
}
