package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/fetch"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func minimalConfig() *appconfig.Config {
	cfg := appconfig.DefaultConfig()
	cfg.Reader.Retry.MaxAttempts = 1
	cfg.Reader.Retry.RateLimitBaseDelay = time.Millisecond
	cfg.Reader.Retry.TransientDelay = time.Millisecond
	cfg.Source.Bybit.RequestsPerSecond = 10000
	cfg.Source.Bybit.BurstSize = 100
	return &cfg
}

func newTestReader(cfg *appconfig.Config, rt roundTripFunc) *Reader {
	r := NewReader(cfg)
	r.client.HTTPClient = &http.Client{Transport: rt}
	return r
}

func jsonResponse(t *testing.T, result interface{}) *http.Response {
	t.Helper()
	return envelopeResponse(t, 0, "OK", result)
}

func envelopeResponse(t *testing.T, retCode int, retMsg string, result interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"retCode":    retCode,
		"retMsg":     retMsg,
		"result":     result,
		"retExtInfo": map[string]interface{}{},
		"time":       time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func instrumentPage(n int, prefix, cursor string) map[string]interface{} {
	list := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, map[string]interface{}{
			"symbol":    fmt.Sprintf("%s%dUSDT", prefix, i),
			"baseCoin":  fmt.Sprintf("%s%d", prefix, i),
			"quoteCoin": "USDT",
			"status":    "Trading",
		})
	}
	return map[string]interface{}{
		"category":       "linear",
		"nextPageCursor": cursor,
		"list":           list,
	}
}

func TestFetchInstrumentsFollowsPagination(t *testing.T) {
	pages := []map[string]interface{}{
		instrumentPage(1000, "A", "cursor-2"),
		instrumentPage(1000, "B", "cursor-3"),
		instrumentPage(400, "C", ""),
	}
	requests := 0

	r := newTestReader(minimalConfig(), func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.URL.Path, "/v5/market/instruments-info") {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		cursor := req.URL.Query().Get("cursor")
		switch requests {
		case 0:
			if cursor != "" {
				t.Fatalf("first page must have no cursor, got %q", cursor)
			}
		case 1:
			if cursor != "cursor-2" {
				t.Fatalf("second page cursor = %q", cursor)
			}
		case 2:
			if cursor != "cursor-3" {
				t.Fatalf("third page cursor = %q", cursor)
			}
		default:
			t.Fatalf("unexpected extra request %d", requests+1)
		}
		page := pages[requests]
		requests++
		return jsonResponse(t, page), nil
	})

	instruments, err := r.FetchInstruments(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests != 3 {
		t.Fatalf("expected 3 page fetches, got %d", requests)
	}
	if len(instruments) != 2400 {
		t.Fatalf("expected 2400 instruments, got %d", len(instruments))
	}
}

func TestFetchInstrumentsAbortsOnPageFailure(t *testing.T) {
	requests := 0
	r := newTestReader(minimalConfig(), func(req *http.Request) (*http.Response, error) {
		requests++
		if requests == 1 {
			return jsonResponse(t, instrumentPage(10, "A", "cursor-2")), nil
		}
		return envelopeResponse(t, 10001, "params error", map[string]interface{}{}), nil
	})

	_, err := r.FetchInstruments(context.Background())
	if err == nil {
		t.Fatal("expected error when a later page fails")
	}
	if !strings.Contains(err.Error(), "instruments page 2") {
		t.Fatalf("error must name the failing page: %v", err)
	}
}

func TestFetchFundingAndTickersBatching(t *testing.T) {
	cfg := minimalConfig()
	cfg.Source.Bybit.BatchSize = 10

	symbols := make([]string, 25)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%dUSDT", i)
	}

	tickerRequests := 0
	fundingRequests := 0

	r := newTestReader(cfg, func(req *http.Request) (*http.Response, error) {
		batch := strings.Split(req.URL.Query().Get("symbol"), ",")
		if len(batch) > 10 {
			t.Fatalf("batch exceeds limit: %d symbols", len(batch))
		}
		switch {
		case strings.Contains(req.URL.Path, "/v5/market/tickers"):
			tickerRequests++
			list := make([]map[string]interface{}, 0, len(batch))
			for _, s := range batch {
				list = append(list, map[string]interface{}{
					"symbol":      s,
					"markPrice":   "1.5",
					"turnover24h": "1000000",
				})
			}
			return jsonResponse(t, map[string]interface{}{"list": list}), nil
		case strings.Contains(req.URL.Path, "/v5/market/funding/history"):
			fundingRequests++
			list := make([]map[string]interface{}, 0, len(batch))
			for _, s := range batch {
				list = append(list, map[string]interface{}{
					"symbol":               s,
					"fundingRate":          "0.0001",
					"fundingRateTimestamp": "1700000000000",
				})
			}
			return jsonResponse(t, map[string]interface{}{"list": list}), nil
		default:
			t.Fatalf("unexpected path: %s", req.URL.Path)
			return nil, nil
		}
	})

	funding, tickers, err := r.FetchFundingAndTickers(context.Background(), symbols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tickerRequests != 3 || fundingRequests != 3 {
		t.Fatalf("expected 3 requests per endpoint, got %d and %d", tickerRequests, fundingRequests)
	}
	if len(funding) != 25 || len(tickers) != 25 {
		t.Fatalf("expected 25 quotes each, got %d funding, %d tickers", len(funding), len(tickers))
	}
	q := funding["S7USDT"]
	if q.Rate != 0.0001 || q.TimestampMs != 1700000000000 {
		t.Fatalf("unexpected funding quote: %+v", q)
	}
	tk := tickers["S7USDT"]
	if tk.MarkPrice != 1.5 || tk.Turnover24h != 1000000 {
		t.Fatalf("unexpected ticker quote: %+v", tk)
	}
}

func TestFetchFundingNewestEntryWinsAndBlankRateStaysAbsent(t *testing.T) {
	r := newTestReader(minimalConfig(), func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.Contains(req.URL.Path, "/v5/market/tickers"):
			return jsonResponse(t, map[string]interface{}{"list": []map[string]interface{}{}}), nil
		case strings.Contains(req.URL.Path, "/v5/market/funding/history"):
			list := []map[string]interface{}{
				// Newest first: the first AAAUSDT row wins.
				{"symbol": "AAAUSDT", "fundingRate": "-0.0015", "fundingRateTimestamp": "1700000200000"},
				{"symbol": "AAAUSDT", "fundingRate": "0.0099", "fundingRateTimestamp": "1700000100000"},
				// No tradable history: must stay absent, never rank as 0.
				{"symbol": "NEWUSDT", "fundingRate": "", "fundingRateTimestamp": ""},
			}
			return jsonResponse(t, map[string]interface{}{"list": list}), nil
		default:
			t.Fatalf("unexpected path: %s", req.URL.Path)
			return nil, nil
		}
	})

	funding, _, err := r.FetchFundingAndTickers(context.Background(), []string{"AAAUSDT", "NEWUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, ok := funding["AAAUSDT"]
	if !ok || q.Rate != -0.0015 {
		t.Fatalf("expected newest rate -0.0015, got %+v (ok=%v)", q, ok)
	}
	if _, ok := funding["NEWUSDT"]; ok {
		t.Fatal("blank funding rate must not produce a quote")
	}
}

func TestFetchFundingAndTickersToleratesBatchFailure(t *testing.T) {
	cfg := minimalConfig()
	cfg.Source.Bybit.BatchSize = 1

	r := newTestReader(cfg, func(req *http.Request) (*http.Response, error) {
		symbol := req.URL.Query().Get("symbol")
		if symbol == "BADUSDT" {
			return envelopeResponse(t, 10001, "params error", map[string]interface{}{}), nil
		}
		switch {
		case strings.Contains(req.URL.Path, "/v5/market/tickers"):
			list := []map[string]interface{}{
				{"symbol": symbol, "markPrice": "2.0", "turnover24h": "500"},
			}
			return jsonResponse(t, map[string]interface{}{"list": list}), nil
		default:
			list := []map[string]interface{}{
				{"symbol": symbol, "fundingRate": "0.0002", "fundingRateTimestamp": "1700000000000"},
			}
			return jsonResponse(t, map[string]interface{}{"list": list}), nil
		}
	})

	funding, tickers, err := r.FetchFundingAndTickers(context.Background(), []string{"GOODUSDT", "BADUSDT", "ALSOUSDT"})
	if err != nil {
		t.Fatalf("batch failure must not abort: %v", err)
	}
	if len(funding) != 2 || len(tickers) != 2 {
		t.Fatalf("expected 2 surviving symbols, got %d funding, %d tickers", len(funding), len(tickers))
	}
	if _, ok := funding["BADUSDT"]; ok {
		t.Fatal("failed batch must contribute nothing")
	}
}

func TestClassifyExchangeError(t *testing.T) {
	cases := []struct {
		err  error
		want fetch.Class
	}{
		{&fetch.APIError{Code: 10006}, fetch.ClassRateLimited},
		{&fetch.APIError{Code: 10016}, fetch.ClassRateLimited},
		{&fetch.APIError{Code: 10018}, fetch.ClassRateLimited},
		{&fetch.APIError{Code: 10001}, fetch.ClassFatal},
		{&fetch.StatusError{StatusCode: 429}, fetch.ClassRateLimited},
		{&fetch.StatusError{StatusCode: 500}, fetch.ClassFatal},
		{fmt.Errorf("dial tcp: connection refused"), fetch.ClassTransient},
	}
	for _, c := range cases {
		if got := classifyExchangeError(c.err); got != c.want {
			t.Errorf("classifyExchangeError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
