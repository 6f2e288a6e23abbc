// Package export renders portfolio reports to spreadsheets.
package export

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/portfolio"
)

// Sheet names of a report, in output order.
const (
	SheetSummary    = "SUMMARY"
	SheetPositions  = "POSITIONS"
	SheetByType     = "BY_TYPE"
	SheetByCurrency = "BY_CURRENCY"
)

// Sheet is one tab of a report. The first row is the header.
type Sheet struct {
	Name string
	Rows [][]any
	// Fills maps a row index to the fill color of its first cell.
	Fills map[int]string
}

// Report is a spreadsheet-shaped rendering of a portfolio.
type Report struct {
	UserID      string
	GeneratedAt time.Time
	Sheets      []Sheet
}

// Build renders the overview as a report.
// Numeric cells are float64 so spreadsheets treat them as numbers.
func Build(o portfolio.Overview, at time.Time) Report {
	return Report{
		UserID:      o.Summary.UserID.String(),
		GeneratedAt: at.UTC(),
		Sheets: []Sheet{
			summarySheet(o.Summary, at),
			positionsSheet(o.Positions),
			typeSheet(o.ByType),
			currencySheet(o.ByCurrency),
		},
	}
}

func summarySheet(s portfolio.Summary, at time.Time) Sheet {
	base := s.BaseCurrency
	types := lo.Map(s.Types, func(t domain.InstrumentType, _ int) string {
		return PresentationOf(t).Label
	})

	return Sheet{
		Name: SheetSummary,
		Rows: [][]any{
			{"Field", "Value"},
			{"Generated", at.UTC().Format(time.RFC3339)},
			{"Base currency", base},
			{"Positions", s.PositionCount},
			{"Invested", domain.FormatAmount(s.TotalInvestedBase, base)},
			{"Current value", domain.FormatAmount(s.CurrentValueBase, base)},
			{"Gain/loss", domain.SignedAmount(s.GainLossBase, base)},
			{"Gain/loss %", percent(s.PercentageGainLossBase)},
			{"Instrument types", strings.Join(types, ", ")},
			{"Currencies", strings.Join(s.Currencies, ", ")},
		},
	}
}

func positionsSheet(views []portfolio.PositionView) Sheet {
	rows := make([][]any, 0, len(views)+1)
	rows = append(rows, []any{
		"Symbol", "Name", "Type", "Currency", "Quantity", "Purchase price", "Purchase date",
		"Current price", "Invested", "Current value", "Gain/loss", "Gain/loss %",
		"Invested (base)", "Value (base)", "Notes",
	})
	fills := make(map[int]string, len(views))

	for _, v := range views {
		p, val := v.Position, v.Valuation
		var symbol, name string
		var price any
		if p.Product != nil {
			symbol, name = p.Product.Symbol, p.Product.Name
		}
		if cur, ok := p.CurrentPrice(); ok {
			price = toFloat(cur)
		}
		pres := PresentationOf(p.InstrumentType())
		fills[len(rows)] = pres.Color

		rows = append(rows, []any{
			symbol, name, pres.Label, p.EffectiveCurrency(),
			toFloat(p.Quantity), toFloat(p.PurchasePrice), p.PurchaseDate.Format(time.DateOnly),
			price, toFloat(val.TotalInvested), toFloat(val.CurrentValue), toFloat(val.GainLoss),
			toFloat(val.PercentageGainLoss), toFloat(val.TotalInvestedBase), toFloat(val.CurrentValueBase),
			p.Notes,
		})
	}
	return Sheet{Name: SheetPositions, Rows: rows, Fills: fills}
}

var allocationHeader = []any{"Positions", "Invested", "Invested (base)", "Value (base)", "Share %"}

func allocationRow(key string, f portfolio.Figures) []any {
	return []any{
		key, f.Count, toFloat(f.TotalInvested), toFloat(f.TotalInvestedBase),
		toFloat(f.CurrentValueBase), toFloat(f.Percentage),
	}
}

func typeSheet(allocs []portfolio.TypeAllocation) Sheet {
	rows := [][]any{append([]any{"Type"}, allocationHeader...)}
	fills := make(map[int]string, len(allocs))
	for _, a := range allocs {
		pres := PresentationOf(a.Type)
		fills[len(rows)] = pres.Color
		rows = append(rows, allocationRow(pres.Label, a.Figures))
	}
	return Sheet{Name: SheetByType, Rows: rows, Fills: fills}
}

func currencySheet(allocs []portfolio.CurrencyAllocation) Sheet {
	rows := [][]any{append([]any{"Currency"}, allocationHeader...)}
	for _, a := range allocs {
		rows = append(rows, allocationRow(a.Currency, a.Figures))
	}
	return Sheet{Name: SheetByCurrency, Rows: rows}
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPrecision) + "%"
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
