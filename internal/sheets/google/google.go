package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"mealtrack/internal/core"
	applog "mealtrack/internal/log"
	ports "mealtrack/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// base tab name without year (e.g. "Meals"); the event's year is prefixed.
	sheetBase string
	logger    *slog.Logger

	mu       sync.Mutex
	prepared map[string]bool
}

var (
	_ ports.EventExporter = (*Client)(nil)
	_ ports.EventLister   = (*Client)(nil)
)

// Config selects the spreadsheet and the credentials used to write it. A
// service account wins over an OAuth client and token.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, logger), nil
}

// NewWithService wraps an existing service, e.g. one built with
// option.WithEndpoint for tests.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *slog.Logger) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Meals"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     sheetBase,
		logger:        logger,
		prepared:      make(map[string]bool),
	}
}

// newSheetsService initializes a Sheets Service. Inline JSON wins over a
// file, and a service account over user OAuth credentials.
func newSheetsService(ctx context.Context, cfg Config, logger *slog.Logger) (*gsheet.Service, error) {
	credentialsJSON, ok, err := readSecret(cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	if ok {
		service, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		logger.InfoContext(ctx, "Google Sheets service created",
			applog.FieldComponent, applog.ComponentSheets,
			"auth", "service_account",
			"credentials_size", len(credentialsJSON))
		return service, nil
	}

	clientJSON, ok, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	if !ok {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS) or oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	oc, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx, goption.WithTokenSource(oc.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created",
		applog.FieldComponent, applog.ComponentSheets,
		"auth", "oauth")
	return service, nil
}

// sheetFor names the tab holding events of the given date key.
func (c *Client) sheetFor(date string) string {
	year := 0
	if len(date) >= 4 {
		year, _ = strconv.Atoi(date[:4])
	}
	if year == 0 {
		return c.sheetBase
	}
	return yearPrefixedName(c.sheetBase, year)
}

// ensureHeader writes the header row into an empty tab once per client.
func (c *Client) ensureHeader(ctx context.Context, sheet string) error {
	c.mu.Lock()
	done := c.prepared[sheet]
	c.mu.Unlock()
	if done {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:%s1", sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	empty, err := checkHeader(resp.Values)
	if err != nil {
		return err
	}
	if empty {
		row := make([]any, len(header))
		for i, h := range header {
			row[i] = h
		}
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
	}

	c.mu.Lock()
	c.prepared[sheet] = true
	c.mu.Unlock()
	return nil
}

// ExportEvent appends ev as one row and returns the updated range.
func (c *Client) ExportEvent(ctx context.Context, ev core.MealEvent) (string, error) {
	if ev.ID == "" {
		return "", errors.New("export event: missing event id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.sheetFor(ev.Date)
	if err := c.ensureHeader(ctx, sheet); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:%s", sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{eventRow(ev)}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}

	c.logger.InfoContext(ctx, "Meal event exported",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldOperation, applog.OpExport,
		applog.FieldEventID, ev.ID,
		applog.FieldSheetsRef, ref)
	return ref, nil
}

// ListEvents reads back every exported event for the date key.
func (c *Client) ListEvents(ctx context.Context, date string) ([]core.MealEvent, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:%s", c.sheetFor(date), lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRows(resp.Values, date)
}
