package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets/google"
	"ledger/internal/worker"
)

const defaultSyncQueue = "ledger-sheets-sync"

func newSyncSheetsCommand() *cobra.Command {
	var (
		queue  string
		owners []int64
	)

	cmd := &cobra.Command{
		Use:   "sync-sheets",
		Short: "Consume ledger events and keep the spreadsheet summaries current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if queue == "" {
				return errors.New("--queue must not be empty")
			}
			ids := make([]core.OwnerID, 0, len(owners))
			for _, o := range owners {
				if o < 0 {
					return fmt.Errorf("--owner %d must not be negative", o)
				}
				ids = append(ids, core.OwnerID(o))
			}
			return runSyncSheets(cmd.Context(), queue, ids)
		},
	}

	cmd.Flags().StringVar(&queue, "queue", defaultSyncQueue, "durable queue bound to the ledger exchange")
	cmd.Flags().Int64SliceVar(&owners, "owner", []int64{0}, "owners whose current month is exported on startup")

	return cmd
}

func runSyncSheets(parent context.Context, queue string, owners []core.OwnerID) error {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is not set")
	}
	if !cfg.SheetsEnabled() {
		return errors.New("GOOGLE_SPREADSHEET_ID is not set")
	}
	logger := cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext(parent)
	defer stop()

	creds, err := google.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return err
	}
	writer, err := google.NewClient(ctx, cfg.GoogleSpreadsheetID, creds)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close resources", log.FieldError, err)
		}
	}()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, queue, replicaOrigin())
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer client.Close()

	w := worker.NewSheetsSync(a.service, writer)
	if err := w.StartupSync(ctx, owners...); err != nil {
		logger.Warn("Startup sync failed", log.FieldError, err)
	}

	logger = logger.WithComponent(log.ComponentSheets)
	logger.Info("Starting sheets sync worker",
		log.FieldOperation, log.OpStartup,
		"exchange", cfg.AMQPExchange,
		"queue", queue)
	if err := client.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent); err != nil {
		return err
	}
	logger.Info("Sheets sync worker stopped", log.FieldOperation, log.OpShutdown)
	return nil
}
