// Package sheets appends snapshots of the published instance list to a
// Google spreadsheet, which is how the household reviews upcoming cash
// flow outside the app.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/tmaly1980/banked/internal/core"
)

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewFromEnv creates an exporter from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or ADC.
func NewFromEnv(ctx context.Context, spreadsheetID, sheetName string) (*Exporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheetName == "" {
		sheetName = "Upcoming"
	}

	svc, err := newService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Exporter{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func newService(ctx context.Context) (*gsheet.Service, error) {
	if raw := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); raw != "" {
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(raw)),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}
	if file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")); file != "" {
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(file),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}
	// Fall back to Application Default Credentials.
	return gsheet.NewService(ctx, goption.WithScopes(gsheet.SpreadsheetsScope))
}

// Append writes one row per instance plus a snapshot header row.
func (e *Exporter) Append(ctx context.Context, kind core.EventKind, instances []core.Instance) error {
	rows := make([][]any, 0, len(instances)+1)
	rows = append(rows, []any{
		"snapshot", string(kind), time.Now().Format(time.RFC3339), len(instances),
	})
	for _, inst := range instances {
		rows = append(rows, []any{
			inst.Date.String(),
			string(kind),
			inst.DisplayName,
			inst.Amount.Dollars(),
			inst.Generated,
			inst.ID,
		})
	}

	_, err := e.svc.Spreadsheets.Values.Append(
		e.spreadsheetID,
		e.sheetName+"!A:F",
		&gsheet.ValueRange{Values: rows},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	slog.InfoContext(ctx, "exported instance snapshot",
		"kind", kind, "rows", len(instances), "sheet", e.sheetName)
	return nil
}
