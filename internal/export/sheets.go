package export

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/mtlprog/finances/internal/portfolio"
)

// SheetHistory is the append-only sheet of daily portfolio totals.
const SheetHistory = "HISTORY"

var historyHeader = []any{
	"Date", "User", "Base currency", "Positions", "Invested (base)", "Value (base)",
	"Gain/loss (base)", "Gain/loss %",
}

// SheetsWriter writes reports to a Google Sheets spreadsheet.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write ensures the report's sheets exist, then clears and rewrites them.
func (w *SheetsWriter) Write(ctx context.Context, r Report) error {
	names := make([]string, 0, len(r.Sheets))
	ranges := make([]string, 0, len(r.Sheets))
	data := make([]*sheets.ValueRange, 0, len(r.Sheets))
	for _, s := range r.Sheets {
		names = append(names, s.Name)
		ranges = append(ranges, s.Name+"!A:Z")
		data = append(data, &sheets.ValueRange{Range: s.Name + "!A1", Values: s.Rows})
	}

	ids, err := w.ensureSheets(ctx, names...)
	if err != nil {
		return err
	}

	_, err = w.svc.Spreadsheets.Values.BatchClear(
		w.spreadsheetID,
		&sheets.BatchClearValuesRequest{Ranges: ranges},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing sheets: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data:             data,
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing sheets: %w", err)
	}

	var reqs []*sheets.Request
	for _, s := range r.Sheets {
		reqs = append(reqs, fillRequests(ids[s.Name], s.Fills)...)
	}
	_, err = w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("coloring sheets: %w", err)
	}

	return nil
}

// fillRequests resets the first column's background, then colors the first cell of each
// filled row. Rows are emitted in order.
func fillRequests(sheetID int64, fills map[int]string) []*sheets.Request {
	const fields = "userEnteredFormat.backgroundColor"
	reqs := []*sheets.Request{{
		RepeatCell: &sheets.RepeatCellRequest{
			Range:  &sheets.GridRange{SheetId: sheetID, StartColumnIndex: 0, EndColumnIndex: 1},
			Cell:   &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{BackgroundColor: &sheets.Color{Red: 1, Green: 1, Blue: 1}}},
			Fields: fields,
		},
	}}

	rows := make([]int, 0, len(fills))
	for row := range fills {
		rows = append(rows, row)
	}
	slices.Sort(rows)

	for _, row := range rows {
		color, ok := hexColor(fills[row])
		if !ok {
			continue
		}
		reqs = append(reqs, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(row),
					EndRowIndex:      int64(row) + 1,
					StartColumnIndex: 0,
					EndColumnIndex:   1,
				},
				Cell:   &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{BackgroundColor: color}},
				Fields: fields,
			},
		})
	}
	return reqs
}

// hexColor parses "#RRGGBB" into a Sheets color.
func hexColor(s string) (*sheets.Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return nil, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, false
	}
	channel := func(shift uint) float64 { return float64((v>>shift)&0xFF) / 255 }
	return &sheets.Color{Red: channel(16), Green: channel(8), Blue: channel(0)}, true
}

// historyRow builds the HISTORY row for one user's summary on date.
func historyRow(s portfolio.Summary, date time.Time) []any {
	return []any{
		date.UTC().Format(time.DateOnly),
		s.UserID.String(),
		s.BaseCurrency,
		s.PositionCount,
		toFloat(s.TotalInvestedBase),
		toFloat(s.CurrentValueBase),
		toFloat(s.GainLossBase),
		toFloat(s.PercentageGainLossBase),
	}
}

// AppendHistory ensures the HISTORY sheet exists, writes the header if the sheet is new
// or empty, then appends one row for the summary.
func (w *SheetsWriter) AppendHistory(ctx context.Context, date time.Time, s portfolio.Summary) error {
	meta, err := w.ensureSheets(ctx, SheetHistory)
	if err != nil {
		return fmt.Errorf("ensuring %s sheet: %w", SheetHistory, err)
	}

	existing, err := w.svc.Spreadsheets.Values.Get(
		w.spreadsheetID, SheetHistory+"!A1",
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", SheetHistory, err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			SheetHistory+"!A1",
			&sheets.ValueRange{Values: [][]any{historyHeader}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", SheetHistory, err)
		}
		if err := w.formatHistory(ctx, meta[SheetHistory]); err != nil {
			return fmt.Errorf("formatting %s sheet: %w", SheetHistory, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		SheetHistory+"!A:H",
		&sheets.ValueRange{Values: [][]any{historyRow(s, date)}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", SheetHistory, err)
	}

	return nil
}

// AfterSnapshot appends the freshly stored snapshot to the HISTORY sheet.
func (w *SheetsWriter) AfterSnapshot(ctx context.Context, _ uuid.UUID, date time.Time, s portfolio.Summary) error {
	return w.AppendHistory(ctx, date, s)
}

// formatHistory makes the header bold and frozen.
func (w *SheetsWriter) formatHistory(ctx context.Context, sheetID int64) error {
	reqs := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(historyHeader)),
				},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					BackgroundColor:     &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827},
					TextFormat:          &sheets.TextFormat{Bold: true},
					HorizontalAlignment: "CENTER",
				}},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}

// ensureSheets creates any of the named sheets that do not already exist and returns the
// sheet id of every named sheet.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]int64, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	ids := make(map[string]int64, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return ids, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			ids[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}

	return ids, nil
}
