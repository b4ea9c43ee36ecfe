package bybit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	appconfig "fundingflow/config"
	"fundingflow/fetch"
	"fundingflow/logger"

	bybitapi "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"
)

// Reader fetches instrument, funding and ticker data from the Bybit v5
// market endpoints. All calls are paced by a shared limiter and retried
// under the configured policy.
type Reader struct {
	config  *appconfig.Config
	client  *bybitapi.Client
	limiter *rate.Limiter
	retry   fetch.Policy
	log     *logger.Log
}

// NewReader creates a market reader for the configured Bybit endpoint.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Reader.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Reader.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Reader.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}
	httpClient := &http.Client{
		Transport: fetch.WithUserAgent(cfg.Reader.UserAgent, transport),
		Timeout:   cfg.Reader.Timeout,
	}

	base := cfg.Source.Bybit.URL
	if parsed, err := url.Parse(cfg.Source.Bybit.URL); err == nil && parsed.Host != "" {
		base = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}
	client := bybitapi.NewBybitHttpClient("", "", bybitapi.WithBaseURL(base))
	client.HTTPClient = httpClient

	rps := cfg.Source.Bybit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Source.Bybit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	r := &Reader{
		config:  cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry: fetch.Policy{
			MaxAttempts:    cfg.Reader.Retry.MaxAttempts,
			RateLimitBase:  cfg.Reader.Retry.RateLimitBaseDelay,
			TransientDelay: cfg.Reader.Retry.TransientDelay,
			Classify:       classifyExchangeError,
		},
		log: log,
	}

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"timeout": cfg.Reader.Timeout,
	}).Info("bybit market reader initialized")

	return r
}

// classifyExchangeError maps exchange failures onto the retry classes.
// Bybit signals throttling with retCode 10006/10016/10018, or a plain
// HTTP 429 at the edge. Other application errors are not worth retrying.
func classifyExchangeError(err error) fetch.Class {
	var apiErr *fetch.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 10006, 10016, 10018:
			return fetch.ClassRateLimited
		}
		return fetch.ClassFatal
	}
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return fetch.ClassRateLimited
		}
		return fetch.ClassFatal
	}
	return fetch.ClassTransient
}

// decodeResult re-marshals the untyped SDK result into a typed structure.
func decodeResult(resp *bybitapi.ServerResponse, v interface{}) error {
	if resp.RetCode != 0 {
		return &fetch.APIError{Code: resp.RetCode, Message: resp.RetMsg}
	}
	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
