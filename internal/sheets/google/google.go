package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

const defaultReportSheet = "Tracking"

// Client writes tracking reports into a spreadsheet, one tab per user and
// control period. Each write replaces the tab's contents.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	reportBase    string

	// tabs already known to exist
	mu    sync.Mutex
	known map[string]bool
}

var _ ports.ReportWriter = (*Client)(nil)

// Options configures a Client. Credentials are resolved from the
// environment when both CredentialsJSON and CredentialsFile are empty.
type Options struct {
	SpreadsheetID   string
	ReportSheetName string
	CredentialsJSON string
	CredentialsFile string
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_REPORT_SHEET_NAME (default "Tracking").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Options{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		ReportSheetName: os.Getenv("GOOGLE_REPORT_SHEET_NAME"),
	})
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.ReportSheetName)
	if base == "" {
		base = defaultReportSheet
	}

	credentials, err := loadCredentials(ctx, opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets report writer ready",
		"spreadsheet_id", spreadsheetID,
		"report_sheet", base)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		reportBase:    base,
		known:         make(map[string]bool),
	}, nil
}

// loadCredentials resolves Service Account credentials from the options, then
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func loadCredentials(ctx context.Context, opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		inline = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
		file = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	}
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// WriteTrackingReport implements ports.ReportWriter. It returns the A1
// range the report now occupies.
func (c *Client) WriteTrackingReport(ctx context.Context, report core.TrackingReport) (string, error) {
	if report.UserID == "" {
		return "", errors.New("report has no user")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	tab := sheetTitle(c.reportBase, report.UserID, report.Period)
	if err := c.ensureSheet(ctx, tab); err != nil {
		return "", err
	}

	quoted := quoteSheet(tab)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted+"!A:Z", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", tab, err)
	}

	rows := reportRows(report)
	ref := fmt.Sprintf("%s!A1:%s%d", quoted, lastColumn, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", tab, err)
	}
	return ref, nil
}

// ensureSheet adds the tab when the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context, title string) error {
	c.mu.Lock()
	if c.known[title] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.known[sh.Properties.Title] = true
		}
	}
	if c.known[title] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	c.known[title] = true
	slog.InfoContext(ctx, "Created report sheet", "sheet", title)
	return nil
}
