// Package google writes ledger summaries to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
	"ledger/internal/log"
	ports "ledger/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var _ ports.SummaryWriter = (*Client)(nil)

// NewClient creates a Sheets client authenticated with a service account.
// Extra options are appended after the credentials.
func NewClient(ctx context.Context, spreadsheetID string, credentialsJSON []byte, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if len(credentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}

	opts = append([]goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	return newClient(ctx, spreadsheetID, opts...)
}

func newClient(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// LoadCredentials returns the service account key, preferring inline JSON
// over a key file. GOOGLE_APPLICATION_CREDENTIALS is the last fallback.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)
	if inlineJSON == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inlineJSON != "":
		return []byte(inlineJSON), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// WriteMonthlySummary creates the month's tab when missing, clears it and
// writes the summary from A1.
func (c *Client) WriteMonthlySummary(ctx context.Context, owner core.OwnerID, s core.MonthlySummary) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	title := ports.SheetTitle(owner, s.Month)
	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	quoted := quoteSheet(title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", title, err)
	}

	rows := ports.MonthlyRows(s)
	ref := fmt.Sprintf("%s!A1:B%d", quoted, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", title, err)
	}

	slog.InfoContext(ctx, "Exported monthly summary",
		log.FieldComponent, log.ComponentSheets,
		log.FieldOwnerID, int64(owner),
		log.FieldMonth, s.Month,
		"range", ref)
	return ref, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}

// quoteSheet quotes a tab title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
