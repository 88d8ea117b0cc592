package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/merge"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var _ merge.Table = (*Table)(nil)

// DateFormat is the number format pattern applied to inserted date cells.
const DateFormat = "dd/mm/yyyy"

// Table is a worksheet whose first row is the header and whose remaining rows are data rows.
type Table struct {
	service       *sheets.Service
	logger        *slog.Logger
	sheetID       *int64
	dateIndex     *int
	spreadsheetID string
	sheetName     string
	dateColumn    string
	retry         common.RetryOptions
}

// NewTable authenticates against the Sheets API and returns the configured worksheet.
func NewTable(ctx context.Context, config Config, logger *slog.Logger) (*Table, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewTableWithService(service, config, logger), nil
}

// NewTableWithService wraps an existing Sheets service.
func NewTableWithService(service *sheets.Service, config Config, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		service:       service,
		logger:        logger,
		spreadsheetID: config.SpreadsheetID,
		sheetName:     config.SheetName,
		dateColumn:    config.DateColumn,
		retry: common.RetryOptions{
			MaxAttempts:  config.RetryAttempts,
			InitialDelay: config.RetryDelay,
		},
	}
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		tokenSource = oauthConfig(config.ClientID, config.ClientSecret, "").TokenSource(ctx, token)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// Header returns the first row as text.
func (t *Table) Header(ctx context.Context) ([]string, error) {
	var header []string
	err := t.withRetry(ctx, func() error {
		resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, t.a1("1:1")).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		header = nil
		if len(resp.Values) > 0 {
			header = cellStrings(resp.Values[0])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", t.sheetName, err)
	}
	return header, nil
}

// Len returns the number of data rows up to the last non-empty row.
func (t *Table) Len(ctx context.Context) (int, error) {
	var rows int
	err := t.withRetry(ctx, func() error {
		resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, t.a1("")).
			MajorDimension("ROWS").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		rows = len(resp.Values)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading rows of %s: %w", t.sheetName, err)
	}
	if rows == 0 {
		return 0, nil
	}
	return rows - 1, nil
}

// Column returns one column's unformatted data values. Dates come back as serial numbers.
func (t *Table) Column(ctx context.Context, index int) ([]string, error) {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return nil, err
	}
	rows, err := t.Len(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]string, rows)
	err = t.withRetry(ctx, func() error {
		resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, t.a1(fmt.Sprintf("%s2:%s", name, name))).
			MajorDimension("COLUMNS").
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("SERIAL_NUMBER").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Values) > 0 {
			copy(out, cellStrings(resp.Values[0]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading column %s of %s: %w", name, t.sheetName, err)
	}
	return out, nil
}

// InsertRow inserts an empty row before data row position and writes values into it.
// The date cell of the new row gets the date number format in the same update, so serials
// display as dates even when the row above carries no format.
func (t *Table) InsertRow(ctx context.Context, position int, values []any) error {
	sheetID, err := t.resolveSheetID(ctx)
	if err != nil {
		return err
	}
	dateIndex, err := t.resolveDateIndex(ctx)
	if err != nil {
		return err
	}

	gridRow := int64(position + 1)
	insert := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: gridRow,
					EndIndex:   gridRow + 1,
				},
				InheritFromBefore: position > 0,
			},
		}},
	}
	if dateIndex >= 0 {
		insert.Requests = append(insert.Requests, dateFormatRequest(sheetID, gridRow, int64(dateIndex)))
	}
	err = t.withRetry(ctx, func() error {
		_, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, insert).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting row %d: %w", position, err)
	}

	row := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			v = ""
		}
		row[i] = v
	}
	update := &sheets.ValueRange{Values: [][]any{row}}
	target := t.a1(fmt.Sprintf("A%d", gridRow+1))
	err = t.withRetry(ctx, func() error {
		_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, target, update).
			ValueInputOption("RAW").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("writing row %d: %w", position, err)
	}

	t.logger.Debug("inserted sheet row", "sheet", t.sheetName, "row", gridRow+1)
	return nil
}

// WriteHeader writes names into the first row.
func (t *Table) WriteHeader(ctx context.Context, names []string) error {
	row := make([]any, len(names))
	for i, n := range names {
		row[i] = n
	}
	t.dateIndex = nil
	return t.withRetry(ctx, func() error {
		_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, t.a1("A1"), &sheets.ValueRange{Values: [][]any{row}}).
			ValueInputOption("RAW").
			Context(ctx).Do()
		return err
	})
}

// withRetry runs op under the table's retry policy, retrying only rate limits and server errors.
func (t *Table) withRetry(ctx context.Context, op func() error) error {
	return common.WithRetry(ctx, func() error { return classify(op()) }, t.retry)
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	case apiErr.Code >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}

func dateFormatRequest(sheetID, row, column int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    row,
				EndRowIndex:      row + 1,
				StartColumnIndex: column,
				EndColumnIndex:   column + 1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					NumberFormat: &sheets.NumberFormat{Type: "DATE", Pattern: DateFormat},
				},
			},
			Fields: "userEnteredFormat.numberFormat",
		},
	}
}

// resolveDateIndex finds the date column in the header, or -1 when the header has none.
func (t *Table) resolveDateIndex(ctx context.Context) (int, error) {
	if t.dateIndex != nil {
		return *t.dateIndex, nil
	}
	header, err := t.Header(ctx)
	if err != nil {
		return 0, err
	}
	index := -1
	for i, name := range header {
		if t.dateColumn != "" && strings.EqualFold(strings.TrimSpace(name), t.dateColumn) {
			index = i
			break
		}
	}
	t.dateIndex = &index
	return index, nil
}

func (t *Table) resolveSheetID(ctx context.Context) (int64, error) {
	if t.sheetID != nil {
		return *t.sheetID, nil
	}

	var spreadsheet *sheets.Spreadsheet
	err := t.withRetry(ctx, func() error {
		var err error
		spreadsheet, err = t.service.Spreadsheets.Get(t.spreadsheetID).
			Fields("sheets.properties").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("unable to access spreadsheet %s: %w", t.spreadsheetID, err)
	}

	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil && s.Properties.Title == t.sheetName {
			id := s.Properties.SheetId
			t.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: sheet %q", common.ErrNotFound, t.sheetName)
}

// a1 builds a range on this table's sheet. An empty ref addresses the whole sheet.
func (t *Table) a1(ref string) string {
	quoted := "'" + strings.ReplaceAll(t.sheetName, "'", "''") + "'"
	if ref == "" {
		return quoted
	}
	return quoted + "!" + ref
}

func cellStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch typed := v.(type) {
		case string:
			out[i] = typed
		case float64:
			out[i] = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(typed)
		case nil:
		default:
			out[i] = fmt.Sprint(typed)
		}
	}
	return out
}
