package bybit

import (
	"context"
	"strconv"
	"strings"

	"fundingflow/fetch"
	"fundingflow/logger"
	"fundingflow/models"
)

// FetchFundingAndTickers returns the latest funding quote and ticker
// quote for each symbol, issuing batched requests of at most the
// configured batch size. A failed batch contributes nothing for its
// symbols but does not abort the run: losing a few symbols does not bias
// the shape of the ranking the way a truncated catalog would. Only
// cancellation stops the loop.
func (r *Reader) FetchFundingAndTickers(ctx context.Context, symbols []string) (map[string]models.FundingQuote, map[string]models.TickerQuote, error) {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"operation": "fetch_funding_tickers",
		"symbols":   len(symbols),
	})

	funding := make(map[string]models.FundingQuote, len(symbols))
	tickers := make(map[string]models.TickerQuote, len(symbols))

	batchSize := r.config.Source.Bybit.BatchSize
	batches := (len(symbols) + batchSize - 1) / batchSize
	failed := 0

	for i := 0; i < len(symbols); i += batchSize {
		end := i + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		blog := log.WithFields(logger.Fields{
			"batch":   i/batchSize + 1,
			"batches": batches,
		})

		if err := r.loadTickerBatch(ctx, blog, batch, tickers); err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			failed++
			blog.WithError(err).Warn("ticker batch failed, symbols skipped")
		}
		if err := r.loadFundingBatch(ctx, blog, batch, funding); err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			failed++
			blog.WithError(err).Warn("funding batch failed, symbols skipped")
		}
		blog.Debug("symbol batch processed")
	}

	log.WithFields(logger.Fields{
		"funding_quotes": len(funding),
		"ticker_quotes":  len(tickers),
		"failed_batches": failed,
	}).Info("funding and ticker data loaded")

	return funding, tickers, nil
}

func (r *Reader) loadTickerBatch(ctx context.Context, log *logger.Entry, symbols []string, into map[string]models.TickerQuote) error {
	result, err := fetch.Do(ctx, log, r.retry, func(ctx context.Context) (tickersResult, error) {
		return r.tickersBatch(ctx, symbols)
	})
	if err != nil {
		return err
	}

	for _, item := range result.List {
		mark, err := strconv.ParseFloat(item.MarkPrice, 64)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": item.Symbol}).Debug("unparsable mark price, ticker skipped")
			continue
		}
		turnover, err := strconv.ParseFloat(item.Turnover24h, 64)
		if err != nil {
			turnover = 0
		}
		into[item.Symbol] = models.TickerQuote{
			Symbol:      item.Symbol,
			MarkPrice:   mark,
			Turnover24h: turnover,
		}
	}
	return nil
}

func (r *Reader) loadFundingBatch(ctx context.Context, log *logger.Entry, symbols []string, into map[string]models.FundingQuote) error {
	result, err := fetch.Do(ctx, log, r.retry, func(ctx context.Context) (fundingResult, error) {
		return r.fundingBatch(ctx, symbols)
	})
	if err != nil {
		return err
	}

	for _, item := range result.List {
		// History is newest first; the first entry per symbol wins.
		if _, ok := into[item.Symbol]; ok {
			continue
		}
		// A missing or non-numeric rate means the contract has no
		// tradable funding history. It must stay absent, not rank as 0.
		rate, err := strconv.ParseFloat(item.FundingRate, 64)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(item.FundingRateTimestamp, 10, 64)
		if err != nil {
			ts = 0
		}
		into[item.Symbol] = models.FundingQuote{
			Symbol:      item.Symbol,
			Rate:        rate,
			TimestampMs: ts,
		}
	}
	return nil
}

func (r *Reader) tickersBatch(ctx context.Context, symbols []string) (tickersResult, error) {
	params := map[string]interface{}{
		"category": r.config.Source.Bybit.Category,
		"symbol":   strings.Join(symbols, ","),
	}

	var res tickersResult
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return res, err
	}
	if err := decodeResult(resp, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Reader) fundingBatch(ctx context.Context, symbols []string) (fundingResult, error) {
	params := map[string]interface{}{
		"category": r.config.Source.Bybit.Category,
		"symbol":   strings.Join(symbols, ","),
	}

	var res fundingResult
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
	if err != nil {
		return res, err
	}
	if err := decodeResult(resp, &res); err != nil {
		return res, err
	}
	return res, nil
}
