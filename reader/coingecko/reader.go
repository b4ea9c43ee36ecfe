package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/fetch"
	"fundingflow/logger"
	"fundingflow/models"

	"golang.org/x/time/rate"
)

// Reader resolves base-asset tickers to market capitalization figures via
// the CoinGecko public API. The provider enforces a much stricter call
// budget than the exchange, so batches are paced by a dedicated limiter.
type Reader struct {
	config     *appconfig.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retry      fetch.Policy
	log        *logger.Log
}

// NewReader creates a market-cap resolver for the configured endpoint.
func NewReader(cfg *appconfig.Config) *Reader {
	httpClient := &http.Client{
		Transport: fetch.WithUserAgent(cfg.Reader.UserAgent, nil),
		Timeout:   cfg.Reader.Timeout,
	}

	interval := cfg.Source.Coingecko.BatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Reader{
		config:     cfg,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.Source.Coingecko.URL, "/"),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		retry: fetch.Policy{
			MaxAttempts:    cfg.Reader.Retry.MaxAttempts,
			RateLimitBase:  cfg.Reader.Retry.RateLimitBaseDelay,
			TransientDelay: cfg.Reader.Retry.TransientDelay,
			Classify:       classifyProviderError,
		},
		log: logger.GetLogger(),
	}
}

func classifyProviderError(err error) fetch.Class {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return fetch.ClassRateLimited
		}
		return fetch.ClassFatal
	}
	return fetch.ClassTransient
}

// ResolveMarketCaps returns a best-effort mapping from lowercase ticker
// to market-cap record for the requested tickers. Tickers that cannot be
// resolved, and assets whose batch fails, are simply absent: callers must
// treat absence as "capitalization unknown", never as zero.
func (r *Reader) ResolveMarketCaps(ctx context.Context, tickers []string) (map[string]models.MarketCapRecord, error) {
	log := r.log.WithComponent("coingecko_reader").WithFields(logger.Fields{
		"operation": "resolve_market_caps",
		"tickers":   len(tickers),
	})

	index, err := r.coinIndex(ctx, log, tickers)
	if err != nil {
		return nil, fmt.Errorf("coin directory: %w", err)
	}

	ids := make([]string, 0, len(index))
	seen := make(map[string]struct{}, len(index))
	for _, id := range index {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic batch composition

	out := make(map[string]models.MarketCapRecord, len(ids))
	batchSize := r.config.Source.Coingecko.BatchSize
	batches := (len(ids) + batchSize - 1) / batchSize
	failed := 0

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		blog := log.WithFields(logger.Fields{
			"batch":   i/batchSize + 1,
			"batches": batches,
		})

		items, err := fetch.Do(ctx, blog, r.retry, func(ctx context.Context) ([]marketItem, error) {
			return r.marketsBatch(ctx, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			blog.WithError(err).Warn("market data batch failed, assets skipped")
			continue
		}

		for _, item := range items {
			ticker := strings.ToLower(item.Symbol)
			var capUSD float64
			if item.MarketCap != nil {
				capUSD = *item.MarketCap
			}
			out[ticker] = models.MarketCapRecord{
				Ticker:       ticker,
				Name:         item.Name,
				MarketCapUSD: capUSD,
			}
		}
		blog.Debug("market data batch processed")
	}

	log.WithFields(logger.Fields{
		"resolved":       len(out),
		"failed_batches": failed,
	}).Info("market capitalization data loaded")

	return out, nil
}

// coinIndex fetches the full symbol directory once and builds a lowercase
// ticker to identifier index restricted to the requested tickers. Several
// provider identifiers can share a ticker; the first directory entry wins.
func (r *Reader) coinIndex(ctx context.Context, log *logger.Entry, tickers []string) (map[string]string, error) {
	requested := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		requested[strings.ToLower(t)] = struct{}{}
	}

	directory, err := fetch.Do(ctx, log, r.retry, func(ctx context.Context) ([]coinListItem, error) {
		var list []coinListItem
		if err := r.getJSON(ctx, "/coins/list", nil, &list); err != nil {
			return nil, err
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}

	index := make(map[string]string, len(requested))
	for _, coin := range directory {
		ticker := strings.ToLower(coin.Symbol)
		if _, want := requested[ticker]; !want {
			continue
		}
		if _, ok := index[ticker]; ok {
			continue
		}
		index[ticker] = coin.ID
	}

	log.WithFields(logger.Fields{
		"directory_size": len(directory),
		"resolved_ids":   len(index),
	}).Info("coin directory indexed")

	return index, nil
}

func (r *Reader) marketsBatch(ctx context.Context, ids []string) ([]marketItem, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("ids", strings.Join(ids, ","))
	query.Set("per_page", strconv.Itoa(len(ids)))
	query.Set("page", "1")

	var items []marketItem
	if err := r.getJSON(ctx, "/coins/markets", query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Reader) getJSON(ctx context.Context, path string, query url.Values, v interface{}) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &fetch.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

type coinListItem struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type marketItem struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	// market_cap is null when the provider has no figure; null and 0 both
	// mean unknown downstream, never a zero valuation.
	MarketCap *float64 `json:"market_cap"`
}
