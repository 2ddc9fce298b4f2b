package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
)

const (
	shutdownTimeout  = 30 * time.Second
	cacheSweepPeriod = time.Minute
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close resources", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		CORSOrigin:         cfg.CORSOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MultiUser:          cfg.MultiUser,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	}, a.service)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server",
			log.FieldOperation, log.OpStartup,
			"addr", srv.Addr,
			"backend", cfg.DataBackend,
			"multi_user", cfg.MultiUser,
			"timezone", a.service.Location().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.caches != nil {
		g.Go(func() error {
			return a.caches.Run(gctx, cacheSweepPeriod)
		})
	}

	if a.events != nil {
		g.Go(func() error {
			return a.events.ConsumeLedgerEvents(gctx, a.service.HandleLedgerEvent)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
