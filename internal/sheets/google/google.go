package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"splitledger/internal/core"
	"splitledger/internal/export"
	ports "splitledger/internal/sheets"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Expense rows span columns A:I on the expenses tab:
// id, date, payer, card, merchant, item, amount, allocations, notes.
const expenseColumns = "A:I"

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	expensesSheet  string
	summarySheet   string
	transfersSheet string
}

// Ensure interface conformance
var (
	_ ports.ExpenseUpserter = (*Client)(nil)
	_ ports.ExpenseRemover  = (*Client)(nil)
	_ ports.ReportWriter    = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
/// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet names: GOOGLE_SHEET_NAME (default "Expenses"),
// GOOGLE_SUMMARY_SHEET_NAME (default "Summary"),
// GOOGLE_TRANSFERS_SHEET_NAME (default "Transfers").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	expensesSheet := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if expensesSheet == "" {
		expensesSheet = "Expenses"
	}
	summarySheet := strings.TrimSpace(os.Getenv("GOOGLE_SUMMARY_SHEET_NAME"))
	if summarySheet == "" {
		summarySheet = "Summary"
	}
	transfersSheet := strings.TrimSpace(os.Getenv("GOOGLE_TRANSFERS_SHEET_NAME"))
	if transfersSheet == "" {
		transfersSheet = "Transfers"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:            svc,
		spreadsheetID:  spreadsheetID,
		expensesSheet:  expensesSheet,
		summarySheet:   summarySheet,
		transfersSheet: transfersSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service. Service account
// credentials take precedence (GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS);
// otherwise an OAuth client plus the token written by cmd/oauth-init
// is used (GOOGLE_OAUTH_CLIENT_JSON/_FILE + GOOGLE_OAUTH_TOKEN_JSON/_FILE).
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if credentialsJSON, err := readEnvJSON("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"); err != nil {
		return nil, err
	} else if credentialsJSON != nil {
		service, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		slog.InfoContext(ctx, "Google Sheets service created", "auth", "service_account")
		return service, nil
	}

	clientJSON, err := readEnvJSON("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readEnvJSON("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if clientJSON == nil || tokenJSON == nil {
		return nil, errors.New("missing Google credentials: set service account credentials or an OAuth client and token")
	}

	oauthCfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	service, err := gsheet.NewService(ctx,
		goption.WithTokenSource(oauthCfg.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "auth", "oauth")
	return service, nil
}

// readEnvJSON resolves credential material from the first set variable:
// an inline JSON variable followed by file path variables. Returns nil
// when none is set.
func readEnvJSON(inlineVar string, fileVars ...string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(inlineVar)); v != "" {
		return []byte(v), nil
	}
	for _, fv := range fileVars {
		if path := strings.TrimSpace(os.Getenv(fv)); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", fv, err)
			}
			return b, nil
		}
	}
	return nil, nil
}

// expenseRow renders the spreadsheet row for an expense.
func expenseRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.Date.String(),
		e.Payer,
		e.Card,
		e.Merchant,
		e.Item,
		e.Amount,
		export.EncodeAllocations(e.Allocations),
		e.Notes,
	}
}

// findRowByID scans the ID column for an expense and returns its
// 1-based row number, or 0 when absent.
func (c *Client) findRowByID(ctx context.Context, id string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.expensesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

// UpsertExpense writes the row for an expense. An existing row with the
// same ID is overwritten in place; otherwise a new row is appended.
func (c *Client) UpsertExpense(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	row, err := c.findRowByID(ctx, e.ID)
	if err != nil {
		return "", err
	}

	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}

	if row > 0 {
		rng := fmt.Sprintf("%s!A%d:I%d", c.expensesSheet, row, row)
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("update row in sheet %s: %w", c.expensesSheet, err)
		}
		return rng, nil
	}

	rng := fmt.Sprintf("%s!%s", c.expensesSheet, expenseColumns)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append row to sheet %s: %w", c.expensesSheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// RemoveExpense clears the row for an expense ID. A missing row is not
// an error; the delete may have already been applied.
func (c *Client) RemoveExpense(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	row, err := c.findRowByID(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		slog.InfoContext(ctx, "Expense row already absent", "id", id)
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:I%d", c.expensesSheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row in sheet %s: %w", c.expensesSheet, err)
	}
	return nil
}

// WriteReport replaces the summary and transfers tabs.
func (c *Client) WriteReport(ctx context.Context, summary []ports.SummaryRow, transfers []core.Transfer) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	summaryValues := [][]any{{"person", "paid", "consumed", "cashback", "net", "net_after_cashback"}}
	for _, row := range summary {
		summaryValues = append(summaryValues, []any{
			row.Person, row.Paid, row.Consumed, row.Cashback, row.Net, row.NetAfterCashback,
		})
	}
	if err := c.replaceSheet(ctx, c.summarySheet, "A:F", summaryValues); err != nil {
		return err
	}

	transferValues := [][]any{{"from", "to", "amount"}}
	for _, tr := range transfers {
		transferValues = append(transferValues, []any{tr.From, tr.To, tr.Amount})
	}
	if err := c.replaceSheet(ctx, c.transfersSheet, "A:C", transferValues); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Report written",
		"summary_rows", len(summary),
		"transfers_count", len(transfers))
	return nil
}

func (c *Client) replaceSheet(ctx context.Context, sheetName, columns string, values [][]any) error {
	rng := fmt.Sprintf("%s!%s", sheetName, columns)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheetName, err)
	}

	startRange := fmt.Sprintf("%s!A1", sheetName)
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, startRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet %s: %w", sheetName, err)
	}
	return nil
}
