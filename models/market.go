package models

import "strings"

// Market cap sentinels carried on RankedEntry when no real figure applies.
// A real capitalization is always > 0, so negative values are unambiguous.
const (
	// MarketCapUnknown marks an entry whose base asset could not be resolved
	// to a capitalization figure. Unknown is not zero: the entry still ranks.
	MarketCapUnknown float64 = -1
	// MarketCapUnfiltered marks entries produced with capitalization
	// filtering disabled.
	MarketCapUnfiltered float64 = -2
)

// Instrument identifies one tradable perpetual contract on the exchange.
type Instrument struct {
	Symbol   string `json:"symbol"`
	BaseCoin string `json:"base_coin"`
	Status   string `json:"status"`
}

// Base returns the base asset ticker for the instrument. Some catalog
// entries omit baseCoin, in which case it is derived from the trading
// symbol by stripping the settlement suffix.
func (i Instrument) Base(settlementCoin string) string {
	if i.BaseCoin != "" {
		return i.BaseCoin
	}
	return strings.TrimSuffix(i.Symbol, settlementCoin)
}

// FilterBySettlement keeps only instruments settled in the given quote coin.
// Non-matching contracts are dropped before any further fetch so batch
// requests are not wasted on them.
func FilterBySettlement(instruments []Instrument, settlementCoin string) []Instrument {
	out := make([]Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if strings.HasSuffix(inst.Symbol, settlementCoin) {
			out = append(out, inst)
		}
	}
	return out
}

// FundingQuote is the most recent funding state for one instrument.
// A quote only exists when the source reported a numeric rate; a missing
// or malformed rate means no quote, never a rate of zero.
type FundingQuote struct {
	Symbol      string  `json:"symbol"`
	Rate        float64 `json:"rate"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// TickerQuote is the current market state for one instrument.
type TickerQuote struct {
	Symbol      string  `json:"symbol"`
	MarkPrice   float64 `json:"mark_price"`
	Turnover24h float64 `json:"turnover_24h"`
}

// MarketCapRecord is the off-exchange valuation for one base asset, keyed
// by lowercase ticker. A MarketCapUSD of 0 means the provider had no
// figure, not that the asset is worthless.
type MarketCapRecord struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	MarketCapUSD float64 `json:"market_cap_usd"`
}

// RankedEntry joins instrument, funding, ticker and market cap data for
// one contract. This is the unit fed to ranking and presentation.
type RankedEntry struct {
	Symbol        string  `json:"symbol"`
	BaseCoin      string  `json:"base_coin"`
	Name          string  `json:"name"`
	MarkPrice     float64 `json:"mark_price"`
	FundingRate   float64 `json:"funding_rate"`
	FundingTimeMs int64   `json:"funding_time_ms"`
	MarketCapUSD  float64 `json:"market_cap_usd"`
	Turnover24h   float64 `json:"turnover_24h"`
}

// HasMarketCap reports whether the entry carries a real capitalization
// figure rather than one of the sentinels.
func (e RankedEntry) HasMarketCap() bool {
	return e.MarketCapUSD >= 0
}
