// Package report renders valuation snapshots for the console and moves the
// ledger in and out of CSV/JSON files.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/folio/internal/domain"
)

const chartWidth = 30

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	profitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	lossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	alertHigh    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	alertMedium  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	summaryLabel = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("245"))
)

var snapshotHeaders = []string{"Symbol", "Quantity", "Avg Buy", "Current", "Value", "P&L", "P&L %", "24h %", "Alloc %"}

// Snapshot renders the portfolio summary, the holdings table and the allocation chart.
func Snapshot(snap domain.ValuationSnapshot, currency string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("PORTFOLIO PERFORMANCE  %s", snap.TakenAt.Format("2006-01-02 15:04:05"))))
	b.WriteString("\n\n")

	b.WriteString(summaryLine("Total invested", money(snap.TotalInvested, currency)))
	b.WriteString(summaryLine("Current value", money(snap.TotalValue, currency)))
	b.WriteString(summaryLine("Unrealized P&L", signed(snap.TotalPnL, money(snap.TotalPnL, currency))+" "+signed(snap.TotalPnL, percent(snap.TotalPnLPercent))))
	if !snap.RealizedPnL.IsZero() {
		b.WriteString(summaryLine("Realized P&L", signed(snap.RealizedPnL, money(snap.RealizedPnL, currency))))
	}
	if !snap.UnpricedInvested.IsZero() {
		b.WriteString(summaryLine("Unpriced invested", mutedStyle.Render(money(snap.UnpricedInvested, currency))))
	}
	b.WriteString("\n")

	if len(snap.Holdings) == 0 {
		b.WriteString(mutedStyle.Render("no active holdings"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(holdingsTable(snap))
	b.WriteString("\n")

	if len(snap.Unavailable) > 0 {
		b.WriteString(mutedStyle.Render("price unavailable: " + strings.Join(snap.Unavailable, ", ")))
		b.WriteString("\n")
	}

	if snap.HasPrices() {
		b.WriteString("\n")
		b.WriteString(AllocationChart(snap))
	}

	return b.String()
}

// Column indexes of snapshotHeaders that are coloured by sign.
const (
	colPnL        = 5
	colPnLPercent = 6
	colChange24h  = 7
)

type rowSigns struct {
	pnl    int
	change int
}

func holdingsTable(snap domain.ValuationSnapshot) string {
	rows := make([][]string, 0, len(snap.Holdings))
	signs := make([]rowSigns, 0, len(snap.Holdings))

	for _, h := range snap.Holdings {
		if !h.Priced() {
			rows = append(rows, []string{
				h.Symbol, h.Quantity.String(), h.AvgCost.StringFixed(2), "n/a", "n/a", "n/a", "n/a", "n/a", "n/a",
			})
			signs = append(signs, rowSigns{})
			continue
		}

		rows = append(rows, []string{
			h.Symbol,
			h.Quantity.String(),
			h.AvgCost.StringFixed(2),
			h.CurrentPrice.StringFixed(2),
			h.CurrentValue.StringFixed(2),
			h.UnrealizedPnL.StringFixed(2),
			percent(h.PnLPercent),
			percent(h.Change24h),
			h.AllocationPercent.StringFixed(1) + "%",
		})
		signs = append(signs, rowSigns{pnl: h.UnrealizedPnL.Sign(), change: h.Change24h.Sign()})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(snapshotHeaders...).
		Rows(rows...).
		StyleFunc(holdingsStyle(signs))

	return t.Render()
}

func holdingsStyle(signs []rowSigns) table.StyleFunc {
	return func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if row < 0 || row >= len(signs) {
			return cellStyle
		}

		style := numberStyle
		sign := 0
		switch col {
		case 0:
			style = cellStyle.Bold(true)
		case colPnL, colPnLPercent:
			sign = signs[row].pnl
		case colChange24h:
			sign = signs[row].change
		}

		switch sign {
		case 1:
			style = style.Foreground(profitStyle.GetForeground())
		case -1:
			style = style.Foreground(lossStyle.GetForeground())
		}

		return style
	}
}

// AllocationChart draws one horizontal bar per priced holding.
func AllocationChart(snap domain.ValuationSnapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ALLOCATION"))
	b.WriteString("\n")

	width := decimal.NewFromInt(chartWidth)
	for _, h := range snap.Holdings {
		if !h.Priced() {
			continue
		}
		n := int(h.AllocationPercent.Mul(width).Div(decimal.NewFromInt(100)).Round(0).IntPart())
		if n == 0 && h.AllocationPercent.IsPositive() {
			n = 1
		}

		fmt.Fprintf(&b, "%-6s %s%s %6s%%\n",
			h.Symbol,
			barStyle.Render(strings.Repeat("█", n)),
			strings.Repeat(" ", chartWidth-n),
			h.AllocationPercent.StringFixed(1))
	}

	return b.String()
}

// Holdings renders the ledger positions without prices.
func Holdings(holdings []domain.Holding, currency string) string {
	if len(holdings) == 0 {
		return mutedStyle.Render("no active holdings") + "\n"
	}

	rows := make([][]string, 0, len(holdings))
	for _, h := range holdings {
		rows = append(rows, []string{
			h.Symbol,
			h.AssetID,
			h.Quantity.String(),
			h.AvgCost.StringFixed(2),
			money(h.Invested, currency),
			money(h.RealizedPnL, currency),
			h.FirstTime.Format("2006-01-02"),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Symbol", "Asset ID", "Quantity", "Avg Cost", "Invested", "Realized", "Since").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render() + "\n"
}

// Alerts renders fired alerts as a banner, empty when there are none.
func Alerts(alerts []domain.Alert) string {
	if len(alerts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(alertHigh.Render("PORTFOLIO ALERTS"))
	b.WriteString("\n")
	for _, a := range alerts {
		style := alertMedium
		if a.Severity == domain.SeverityHigh {
			style = alertHigh
		}
		b.WriteString(style.Render(fmt.Sprintf("[%s]", a.Severity)))
		b.WriteString(" ")
		b.WriteString(a.Message)
		b.WriteString("\n")
	}

	return b.String()
}

func summaryLine(label, value string) string {
	return summaryLabel.Render(label) + value + "\n"
}

func money(v decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", v.StringFixed(2), currency)
}

func percent(v decimal.Decimal) string {
	if v.IsPositive() {
		return "+" + v.StringFixed(2) + "%"
	}
	return v.StringFixed(2) + "%"
}

func signed(v decimal.Decimal, s string) string {
	switch v.Sign() {
	case 1:
		return profitStyle.Render(s)
	case -1:
		return lossStyle.Render(s)
	default:
		return s
	}
}
