package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/ingress"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Discord interactions endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log.Debug().Interface("config", cfg.Redacted()).Msg("effective configuration")

			a, err := newApp(cfg, appOptions{followUp: true})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			verifier := ingress.NewVerifier(cfg.Discord.PublicKey)
			if verifier.Bypass() {
				log.Warn().Msg("discord.public-key is not set, signature verification is disabled")
			}
			srv := &http.Server{
				Addr: cfg.HTTP.Listen,
				Handler: ingress.NewRouter(verifier, a.bus, ingress.Options{
					Path:         cfg.Discord.InteractionPath,
					MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
					MaxUserID:    cfg.HTTP.MaxUserIDBytes,
					MaxText:      cfg.HTTP.MaxTextBytes,
					Events:       a.sink,
				}),
				ReadHeaderTimeout: readHeaderTimeout,
			}

			eg, ctx := errgroup.WithContext(ctx)
			a.startBackground(ctx, eg.Go)
			a.startWorkers(ctx, eg.Go)
			eg.Go(func() error {
				log.Info().
					Str("listen", cfg.HTTP.Listen).
					Str("path", cfg.Discord.InteractionPath).
					Msg("listening for interactions")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "http server")
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
				defer cancel()
				log.Info().Msg("shutting down")
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("http shutdown")
				}
				a.close(shutdownCtx)
				return nil
			})

			return eg.Wait()
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on (overrides http.listen)")
	bindFlag(cmd, "http.listen", "listen")
	return cmd
}
