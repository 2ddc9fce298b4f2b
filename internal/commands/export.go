package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets/google"
	"ledger/internal/worker"
)

func newExportSheetsCommand() *cobra.Command {
	var (
		month string
		owner int64
	)

	cmd := &cobra.Command{
		Use:   "export-sheets",
		Short: "Write a monthly summary to the configured Google spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if month != "" {
				if _, err := core.ParseMonth(month); err != nil {
					return fmt.Errorf("--month must be YYYY-MM: %w", err)
				}
			}
			if owner < 0 {
				return errors.New("--owner must not be negative")
			}
			return runExportSheets(cmd, month, core.OwnerID(owner))
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month to export as YYYY-MM (default: current month)")
	cmd.Flags().Int64Var(&owner, "owner", 0, "owner whose ledger is exported")

	return cmd
}

func runExportSheets(cmd *cobra.Command, month string, owner core.OwnerID) error {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if !cfg.SheetsEnabled() {
		return errors.New("GOOGLE_SPREADSHEET_ID is not set")
	}
	logger := cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext(cmd.Context())
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

	ref, err := worker.NewSheetsSync(a.service, writer).Export(ctx, owner, month)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %s\n", ref)
	return err
}
