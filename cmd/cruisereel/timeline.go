package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ivlev/cruisereel/internal/timeline"
)

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var photos int

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the segment schedule for a number of photos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if photos < 1 {
				return fmt.Errorf("--photos must be at least 1, got %d", photos)
			}

			tl := timeline.New(cfg.Timeline, photos)
			var rows [][]string
			for _, seg := range tl.Segments() {
				photo := ""
				if seg.Kind == timeline.Content {
					photo = strconv.Itoa(seg.PhotoIndex + 1)
				}
				rows = append(rows, []string{
					seg.Kind.String(),
					photo,
					fmt.Sprintf("%.2fs", seg.Start),
					fmt.Sprintf("%.2fs", seg.End),
					fmt.Sprintf("%d-%d", seg.FirstFrame, seg.EndFrame-1),
					strconv.Itoa(seg.EndFrame - seg.FirstFrame),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Phase", "Photo", "Start", "End", "Frames", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Total: %d frames, %.2fs at %d fps\n", tl.TotalFrames(), tl.TotalDuration(), cfg.Timeline.FPS)
			return nil
		},
	}

	cmd.Flags().IntVarP(&photos, "photos", "n", 5, "Number of photos")
	return cmd
}
