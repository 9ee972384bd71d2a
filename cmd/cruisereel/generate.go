package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/generator"
	"github.com/ivlev/cruisereel/internal/log"
	"github.com/ivlev/cruisereel/internal/system"
	"github.com/ivlev/cruisereel/internal/video"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var flags storeFlags
	var cruiseID string
	var outPath string
	var encoderName string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render the slideshow video for one cruise",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cruiseID == "" {
				return errors.New("--cruise is required")
			}
			if encoderName != "" {
				cfg.Encode.VideoEncoder = encoderName
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := flags.open(signalCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			encoder := resolveEncoder(signalCtx, cfg)
			if encoder != system.SoftwareEncoder {
				fmt.Fprintf(cmd.OutOrStdout(), "[*] Hardware encoder: %s\n", encoder)
			}

			ctrl := generator.NewController(cruiseID, generator.Deps{
				Config:      cfg,
				Journals:    st.journals,
				Photos:      st.photos,
				Encoder:     &video.FFmpegEncoder{Path: cfg.Encode.FFmpegPath},
				EncoderName: encoder,
			})
			job, err := runToCompletion(signalCtx, cmd, ctrl)
			if err != nil {
				return err
			}
			if job.Status != generator.StatusDone {
				return errors.New(strings.Join(job.Errors, "; "))
			}

			out, ok := ctrl.Output()
			if !ok {
				return errors.New("generation finished without output")
			}
			if outPath == "" {
				outPath = filepath.Join("output", out.Filename)
			}
			if err := writeOutput(outPath, out.Data); err != nil {
				return err
			}

			note := ""
			if out.Partial {
				note = ", partial"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+++] Done: %s (%s, %d frames%s)\n", outPath, humanize.Bytes(uint64(len(out.Data))), out.Frames, note)

			probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if d, err := system.ProbeDuration(probeCtx, system.FFprobePath(cfg.Encode.FFmpegPath), outPath); err != nil {
				logger := log.WithComponent("cli")
				logger.Debug().Err(err).Msg("duration probe skipped")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "[*] Duration: %.2fs\n", d)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&cruiseID, "cruise", "", "Cruise id")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default output/<filename>)")
	cmd.Flags().StringVar(&encoderName, "encoder", "", "Video encoder (auto, libx264, h264_nvenc, h264_videotoolbox)")
	return cmd
}

// resolveEncoder returns the configured encoder, probing ffmpeg when none is set.
func resolveEncoder(ctx context.Context, cfg *config.Config) string {
	name := strings.TrimSpace(cfg.Encode.VideoEncoder)
	if name != "" && name != "auto" {
		return name
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return system.BestH264Encoder(probeCtx, cfg.Encode.FFmpegPath)
}

// runToCompletion starts ctrl, prints progress and cancels the run when ctx ends.
func runToCompletion(ctx context.Context, cmd *cobra.Command, ctrl *generator.Controller) (generator.Job, error) {
	if _, err := ctrl.Start(ctx); err != nil {
		return generator.Job{}, err
	}

	finished := make(chan generator.Job, 1)
	go func() {
		job, _ := ctrl.Wait(context.Background())
		finished <- job
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	stopped := ctx.Done()
	last := generator.Job{Progress: -1}
	for {
		select {
		case <-stopped:
			fmt.Fprintln(cmd.ErrOrStderr(), "[!] Interrupted, finishing what was rendered")
			ctrl.Cancel()
			stopped = nil
		case <-ticker.C:
			job := ctrl.Job()
			if job.Status != last.Status || job.Progress/10 != last.Progress/10 {
				printProgress(cmd, job)
				last = job
			}
		case job := <-finished:
			return job, nil
		}
	}
}

func printProgress(cmd *cobra.Command, job generator.Job) {
	switch job.Status {
	case generator.StatusLoading:
		fmt.Fprintln(cmd.OutOrStdout(), "[*] Loading photos...")
	case generator.StatusRendering:
		fmt.Fprintf(cmd.OutOrStdout(), "[*] Rendering %d photos: frame %d/%d (%d%%)\n", job.Photos, job.FrameIndex, job.TotalFrames, job.Progress)
	}
}

func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	return nil
}
