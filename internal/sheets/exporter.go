// Package sheets exports the expense log to a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetwise/internal/core"
	applog "budgetwise/internal/log"
)

// Rows per Values.Append call.
const appendChunk = 500

// Header is the first row Export writes to an empty sheet.
var Header = []any{"ID", "Timestamp", "Description", "Amount", "Category", "Confidence", "Method", "Merchant", "Notes", "Tags"}

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Exporter appends expense records as rows of a sheet.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
}

// New builds an Exporter authenticated with a service account. Extra
// options are passed to the Sheets client after the credentials.
func New(ctx context.Context, cfg Config, logger *applog.Logger, opts ...option.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Expenses"
	}
	if logger == nil {
		logger = applog.Discard()
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsJSON(data))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	clientOpts = append(clientOpts, option.WithScopes(gsheet.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger.WithComponent(applog.ComponentSheets),
	}, nil
}

// ExportRecords appends records, oldest first, below the existing rows and
// returns how many rows the API reports as written. A header row is added
// when the sheet is empty.
func (e *Exporter) ExportRecords(ctx context.Context, records []core.ExpenseRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	empty, err := e.sheetEmpty(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records)+1)
	if empty {
		rows = append(rows, Header)
	}
	// The log is newest first; a sheet reads top to bottom.
	for i := len(records) - 1; i >= 0; i-- {
		rows = append(rows, toRow(records[i]))
	}

	written := 0
	for start := 0; start < len(rows); start += appendChunk {
		end := min(start+appendChunk, len(rows))
		n, err := e.appendRows(ctx, rows[start:end])
		written += n
		if err != nil {
			return written, err
		}
	}

	e.logger.InfoContext(ctx, "Exported expense log",
		applog.FieldCount, len(records),
		"rows_written", written,
		"sheet", e.sheetName)
	return written, nil
}

func (e *Exporter) sheetEmpty(ctx context.Context) (bool, error) {
	rng := fmt.Sprintf("%s!A1:A1", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rng, err)
	}
	return len(resp.Values) == 0, nil
}

func (e *Exporter) appendRows(ctx context.Context, rows [][]any) (int, error) {
	rng := fmt.Sprintf("%s!A:J", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", e.sheetName, err)
	}
	if resp.Updates == nil {
		return len(rows), nil
	}
	return int(resp.Updates.UpdatedRows), nil
}

func toRow(r core.ExpenseRecord) []any {
	return []any{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Description,
		r.Amount,
		string(r.Category),
		r.Confidence,
		r.Method,
		r.Merchant,
		r.Notes,
		strings.Join(r.Tags, ", "),
	}
}
