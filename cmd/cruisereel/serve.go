package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/cruisereel/internal/api"
	"github.com/ivlev/cruisereel/internal/generator"
	"github.com/ivlev/cruisereel/internal/log"
	"github.com/ivlev/cruisereel/internal/system"
	"github.com/ivlev/cruisereel/internal/video"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var flags storeFlags
	var addr string
	var startLimit int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := log.WithComponent("cli")

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if limit, err := system.RaiseFileLimit(4096); err != nil {
				logger.Warn().Err(err).Msg("could not raise open file limit")
			} else {
				logger.Debug().Uint64("limit", limit).Msg("open file limit")
			}

			st, err := flags.open(signalCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			registry := generator.NewRegistry(generator.Deps{
				Config:      cfg,
				Journals:    st.journals,
				Photos:      st.photos,
				Encoder:     &video.FFmpegEncoder{Path: cfg.Encode.FFmpegPath},
				EncoderName: resolveEncoder(signalCtx, cfg),
			})

			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(registry).Routes(startLimit),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Msg("listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve %s: %w", addr, err)
				}
				return nil
			case <-signalCtx.Done():
			}

			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("http shutdown")
			}
			return registry.Shutdown(shutdownCtx)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().IntVar(&startLimit, "start-limit", 10, "Generation starts allowed per client per minute")
	return cmd
}
