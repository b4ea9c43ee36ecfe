package processor

import (
	"sort"
	"strings"

	appconfig "fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// Options control one ranking pass.
type Options struct {
	Top             int
	MinMarketCapUSD float64
	SkipMarketCap   bool
	SettlementCoin  string
}

// Ranker joins instrument, funding, ticker and market-cap data and
// produces the two funding-rate rankings.
type Ranker struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewRanker(cfg *appconfig.Config) *Ranker {
	log := logger.GetLogger()
	log.WithComponent("ranker").Info("ranker initialized")
	return &Ranker{config: cfg, log: log}
}

// Rank reconciles the data sets and returns the two rankings: contracts
// paying a positive rate sorted most positive first, and contracts paying
// a negative rate sorted most negative first, each truncated to opts.Top.
//
// Exclusion rules, in order:
//   - no funding quote for the symbol: an unknown rate cannot be ranked;
//   - capitalization filter enabled and the cap is KNOWN and below the
//     floor. An unknown cap never excludes: the filter only acts on a
//     confirmed sub-floor valuation.
//
// A missing ticker quote leaves the price fields zero but keeps the entry.
func (r *Ranker) Rank(
	instruments []models.Instrument,
	funding map[string]models.FundingQuote,
	tickers map[string]models.TickerQuote,
	caps map[string]models.MarketCapRecord,
	opts Options,
) (positive, negative []models.RankedEntry) {
	log := r.log.WithComponent("ranker").WithFields(logger.Fields{
		"instruments": len(instruments),
		"top":         opts.Top,
	})

	entries := make([]models.RankedEntry, 0, len(instruments))
	excludedNoFunding := 0
	excludedBelowFloor := 0

	for _, inst := range instruments {
		quote, ok := funding[inst.Symbol]
		if !ok {
			excludedNoFunding++
			continue
		}

		base := inst.Base(opts.SettlementCoin)
		name := base
		capUSD := models.MarketCapUnfiltered

		if !opts.SkipMarketCap {
			capUSD = models.MarketCapUnknown
			if rec, ok := caps[strings.ToLower(base)]; ok {
				if rec.Name != "" {
					name = rec.Name
				}
				if rec.MarketCapUSD > 0 {
					if rec.MarketCapUSD < opts.MinMarketCapUSD {
						excludedBelowFloor++
						continue
					}
					capUSD = rec.MarketCapUSD
				}
			}
		}

		ticker := tickers[inst.Symbol]
		entries = append(entries, models.RankedEntry{
			Symbol:        inst.Symbol,
			BaseCoin:      base,
			Name:          name,
			MarkPrice:     ticker.MarkPrice,
			FundingRate:   quote.Rate,
			FundingTimeMs: quote.TimestampMs,
			MarketCapUSD:  capUSD,
			Turnover24h:   ticker.Turnover24h,
		})
	}

	// Each direction only ranks rates of its own sign; a zero rate is
	// extreme in neither direction and appears in neither table.
	positive = sortAndTruncate(filterSign(entries, func(rate float64) bool { return rate > 0 }), opts.Top,
		func(a, b models.RankedEntry) bool { return a.FundingRate > b.FundingRate })
	negative = sortAndTruncate(filterSign(entries, func(rate float64) bool { return rate < 0 }), opts.Top,
		func(a, b models.RankedEntry) bool { return a.FundingRate < b.FundingRate })

	log.WithFields(logger.Fields{
		"ranked":               len(entries),
		"excluded_no_funding":  excludedNoFunding,
		"excluded_below_floor": excludedBelowFloor,
	}).Info("ranking computed")

	return positive, negative
}

func filterSign(entries []models.RankedEntry, keep func(rate float64) bool) []models.RankedEntry {
	out := make([]models.RankedEntry, 0, len(entries))
	for _, e := range entries {
		if keep(e.FundingRate) {
			out = append(out, e)
		}
	}
	return out
}

// sortAndTruncate stable-sorts entries so that exact funding ties keep
// input order, then truncates to top.
func sortAndTruncate(sorted []models.RankedEntry, top int, less func(a, b models.RankedEntry) bool) []models.RankedEntry {
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	if top > 0 && len(sorted) > top {
		sorted = sorted[:top]
	}
	return sorted
}
