// Package sheets exports ledger summaries to spreadsheets.
package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// SummaryWriter replaces the sheet of one owner and month with the
	// rendered summary and returns the written range.
	SummaryWriter interface {
		WriteMonthlySummary(ctx context.Context, owner core.OwnerID, s core.MonthlySummary) (rowRef string, err error)
	}
)
