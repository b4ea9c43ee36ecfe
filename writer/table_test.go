package writer

import (
	"bytes"
	"strings"
	"testing"

	"fundingflow/models"
)

func sampleEntries() []models.RankedEntry {
	return []models.RankedEntry{
		{
			Symbol:       "BTCUSDT",
			Name:         "Bitcoin",
			MarkPrice:    64250.5,
			FundingRate:  0.0001,
			MarketCapUSD: 1_250_000_000_000,
			Turnover24h:  9_876_543_210,
		},
		{
			Symbol:       "AAAUSDT",
			Name:         "AAA",
			MarkPrice:    1.25,
			FundingRate:  -0.0015,
			MarketCapUSD: models.MarketCapUnknown,
			Turnover24h:  5_000_000,
		},
	}
}

func TestRenderRankingPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewTableWriter(&buf, false)
	w.RenderRanking("MOST NEGATIVE FUNDING", sampleEntries())

	out := buf.String()
	if !strings.Contains(out, "--- MOST NEGATIVE FUNDING ---") {
		t.Fatalf("missing title:\n%s", out)
	}
	if !strings.Contains(out, "SYMBOL") || !strings.Contains(out, "MARKET CAP") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "BTCUSDT") || !strings.Contains(out, "AAAUSDT") {
		t.Fatalf("missing rows:\n%s", out)
	}
	if !strings.Contains(out, "1,250,000,000,000") {
		t.Fatalf("market cap not comma grouped:\n%s", out)
	}
	if !strings.Contains(out, "N/A") {
		t.Fatalf("unknown cap must render as N/A:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color disabled but escape codes present:\n%s", out)
	}
}

func TestRenderRankingDeterministicWithoutColor(t *testing.T) {
	var a, b bytes.Buffer
	NewTableWriter(&a, false).RenderRanking("HIGHEST POSITIVE FUNDING", sampleEntries())
	NewTableWriter(&b, false).RenderRanking("HIGHEST POSITIVE FUNDING", sampleEntries())
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("identical input must render byte-identical output")
	}
}

func TestRenderRankingEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTableWriter(&buf, false).RenderRanking("HIGHEST POSITIVE FUNDING", nil)
	if !strings.Contains(buf.String(), "(no entries)") {
		t.Fatalf("empty ranking placeholder missing:\n%s", buf.String())
	}
}

func TestRenderRankingTruncatesLongNames(t *testing.T) {
	entries := []models.RankedEntry{{
		Symbol:       "LONGUSDT",
		Name:         "An Exceedingly Long Asset Name",
		FundingRate:  0.0001,
		MarketCapUSD: models.MarketCapUnfiltered,
	}}
	var buf bytes.Buffer
	NewTableWriter(&buf, false).RenderRanking("HIGHEST POSITIVE FUNDING", entries)
	if strings.Contains(buf.String(), "An Exceedingly Long Asset Name") {
		t.Fatalf("name not truncated:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "An Exceedingly ") {
		t.Fatalf("truncated name missing:\n%s", buf.String())
	}
}

func TestGroupThousands(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{100_000_000, "100,000,000"},
		{-2500, "-2,500"},
	}
	for _, c := range cases {
		if got := groupThousands(c.in); got != c.want {
			t.Errorf("groupThousands(%f) = %q, want %q", c.in, got, c.want)
		}
	}
}
