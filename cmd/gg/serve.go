package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/genglossary/genglossary/internal/config"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/server"
	"github.com/genglossary/genglossary/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GenGlossary HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			logger := setupLogger(cfg)

			if err := telemetry.Init(cmd.Context(), "gg", version); err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				telemetry.Shutdown(ctx)
			}()

			if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
				return err
			}
			reg, err := registry.Open(cfg.RegistryPath())
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			srv := server.New(cfg, reg, logger)
			defer srv.Close()

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				err := srv.RunWatchers(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "bind address (overrides config)")
	return cmd
}
