package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/api"
	"github.com/ayulink/herbtrace/internal/certificate"
	"github.com/ayulink/herbtrace/internal/config"
	"github.com/ayulink/herbtrace/internal/metrics"
	"github.com/ayulink/herbtrace/internal/scoring"
)

func newServeCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the traceability HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, load)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, e)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	return cmd
}

func newScorer(cfg config.ScoringConfig, logger *zap.Logger) scoring.Scorer {
	if cfg.Endpoint == "" {
		return scoring.DefaultModel()
	}
	return scoring.NewRemoteScorer(cfg.Endpoint, cfg.Timeout, scoring.WithRemoteLogger(logger))
}

func newCertificates(cfg config.CertificateConfig, logger *zap.Logger) *certificate.Service {
	if !cfg.Enabled {
		return nil
	}
	renderer := certificate.NewChromeRenderer(certificate.Options{
		ChromiumPath: cfg.ChromiumPath,
		Timeout:      cfg.Timeout,
		TimeZone:     cfg.TimeZone,
	})
	return certificate.NewService(renderer, certificate.NewInMemoryStorage(), logger)
}

func serve(ctx context.Context, e *env) error {
	cfg := e.cfg
	srv := api.New(api.Deps{
		Ledger:             e.ledger,
		Store:              e.store,
		Scorer:             newScorer(cfg.Scoring, e.logger.Named("scoring")),
		Certificates:       newCertificates(cfg.Certificate, e.logger.Named("certificate")),
		Metrics:            metrics.New(),
		Logger:             e.logger.Named("api"),
		CORSOrigins:        cfg.HTTP.CORSOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		TrustProxyHeaders:  cfg.HTTP.TrustProxyHeaders,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("herbtrace listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("certificates", cfg.Certificate.Enabled),
			zap.String("version", version),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	case <-ctx.Done():
	}

	e.logger.Info("shutting down", zap.Duration("timeout", cfg.HTTP.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
