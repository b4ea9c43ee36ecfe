package bybit

import (
	"context"
	"fmt"

	"fundingflow/fetch"
	"fundingflow/logger"
	"fundingflow/models"
)

// FetchInstruments returns the complete catalog of instruments for the
// configured category, following the pagination cursor to completion.
// A truncated catalog would silently bias the ranking, so any page
// failure aborts the whole load.
func (r *Reader) FetchInstruments(ctx context.Context) ([]models.Instrument, error) {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"operation": "fetch_instruments",
		"category":  r.config.Source.Bybit.Category,
	})

	var out []models.Instrument
	cursor := ""
	pages := 0
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		cur := cursor
		result, err := fetch.Do(ctx, log, r.retry, func(ctx context.Context) (instrumentsResult, error) {
			return r.instrumentsPage(ctx, cur)
		})
		if err != nil {
			return nil, fmt.Errorf("instruments page %d: %w", pages+1, err)
		}
		pages++

		for _, item := range result.List {
			out = append(out, models.Instrument{
				Symbol:   item.Symbol,
				BaseCoin: item.BaseCoin,
				Status:   item.Status,
			})
		}
		log.WithFields(logger.Fields{
			"page":        pages,
			"instruments": len(out),
		}).Debug("instrument page loaded")

		if result.NextPageCursor == "" {
			break
		}
		cursor = result.NextPageCursor
	}

	log.WithFields(logger.Fields{
		"pages":       pages,
		"instruments": len(out),
	}).Info("instrument catalog loaded")

	return out, nil
}

func (r *Reader) instrumentsPage(ctx context.Context, cursor string) (instrumentsResult, error) {
	params := map[string]interface{}{
		"category": r.config.Source.Bybit.Category,
		"limit":    r.config.Source.Bybit.PageLimit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	var res instrumentsResult
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return res, err
	}
	if err := decodeResult(resp, &res); err != nil {
		return res, err
	}
	return res, nil
}
