package writer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fundingflow/models"
)

const tableWidth = 88

// TableWriter renders rankings as plain-text tables. Color-coding of
// extreme funding values lives here and nowhere else; with color disabled
// the output is deterministic byte-for-byte.
type TableWriter struct {
	out   io.Writer
	color bool

	headerStyle   lipgloss.Style
	positiveStyle lipgloss.Style
	negativeStyle lipgloss.Style
}

// NewTableWriter creates a table writer targeting out.
func NewTableWriter(out io.Writer, enableColor bool) *TableWriter {
	return &TableWriter{
		out:           out,
		color:         enableColor,
		headerStyle:   lipgloss.NewStyle().Bold(true),
		positiveStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		negativeStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// RenderRanking prints one titled ranking table.
func (w *TableWriter) RenderRanking(title string, entries []models.RankedEntry) {
	fmt.Fprintf(w.out, "\n--- %s ---\n", title)

	header := fmt.Sprintf("%-12s %-15s %-12s %-12s %-18s %-14s",
		"SYMBOL", "NAME", "MARK PRICE", "FUNDING", "MARKET CAP", "TURNOVER 24H")
	if w.color {
		header = w.headerStyle.Render(header)
	}
	fmt.Fprintln(w.out, header)
	fmt.Fprintln(w.out, strings.Repeat("-", tableWidth))

	if len(entries) == 0 {
		fmt.Fprintln(w.out, "(no entries)")
		return
	}

	for _, e := range entries {
		funding := fmt.Sprintf("%-12.6f", e.FundingRate)
		if w.color {
			switch {
			case e.FundingRate > 0:
				funding = w.positiveStyle.Render(funding)
			case e.FundingRate < 0:
				funding = w.negativeStyle.Render(funding)
			}
		}

		fmt.Fprintf(w.out, "%-12s %-15s %-12.4f %s %-18s %-14s\n",
			e.Symbol,
			truncate(e.Name, 15),
			e.MarkPrice,
			funding,
			marketCapCell(e),
			groupThousands(e.Turnover24h),
		)
	}
}

func marketCapCell(e models.RankedEntry) string {
	if !e.HasMarketCap() {
		return "N/A"
	}
	return groupThousands(e.MarketCapUSD)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// groupThousands formats v as an integer with comma grouping.
func groupThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}
