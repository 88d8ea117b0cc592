package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/Veraticus/browser2excel/internal/pipeline"
	"github.com/charmbracelet/lipgloss"
)

// FormatAmount renders an amount with two decimals, colored by sign.
func FormatAmount(txn model.Transaction) string {
	text := txn.Amount.StringFixed(2)
	if txn.Amount.IsNegative() {
		return ExpenseStyle.Render(text)
	}
	return IncomeStyle.Render(text)
}

// RenderRows writes the batch as an aligned table.
func RenderRows(w io.Writer, rows []pipeline.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No transactions in this batch."))
		return err
	}

	widths := []int{4, 10, 36, 12, 10, 10}
	header := []string{"ID", "Date", "Description", "Kind", "Frequency", "Amount"}
	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(joinCells(header, widths)))
	b.WriteString("\n")
	for _, row := range rows {
		cells := []string{
			fmt.Sprint(row.ID),
			row.Date,
			truncate(row.Description, widths[2]),
			row.Kind,
			row.Frequency,
			FormatAmount(row.Transaction),
		}
		line := joinCells(cells, widths)
		if row.Added {
			line = SubtleStyle.Render(line + " " + SuccessIcon)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinCells(cells []string, widths []int) string {
	styled := make([]string, len(cells))
	for i, c := range cells {
		styled[i] = lipgloss.NewStyle().Width(widths[i]).PaddingRight(1).Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, styled...)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
