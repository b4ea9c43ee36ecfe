package bybit

// Typed shapes of the v5 market endpoint results. Numeric fields arrive
// as strings and are parsed where they are consumed, so that a missing or
// malformed value can be told apart from a real zero.

type instrumentsResult struct {
	Category       string           `json:"category"`
	NextPageCursor string           `json:"nextPageCursor"`
	List           []instrumentItem `json:"list"`
}

type instrumentItem struct {
	Symbol    string `json:"symbol"`
	BaseCoin  string `json:"baseCoin"`
	QuoteCoin string `json:"quoteCoin"`
	Status    string `json:"status"`
}

type tickersResult struct {
	Category string       `json:"category"`
	List     []tickerItem `json:"list"`
}

type tickerItem struct {
	Symbol      string `json:"symbol"`
	MarkPrice   string `json:"markPrice"`
	Turnover24h string `json:"turnover24h"`
}

type fundingResult struct {
	Category string        `json:"category"`
	List     []fundingItem `json:"list"`
}

type fundingItem struct {
	Symbol               string `json:"symbol"`
	FundingRate          string `json:"fundingRate"`
	FundingRateTimestamp string `json:"fundingRateTimestamp"`
}
