// Package binance provides the market-data client for the exchange's public
// futures REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"volsignals-bot/internal/models"
)

const (
	klinesPath    = "/fapi/v1/klines"
	ticker24hPath = "/fapi/v1/ticker/24hr"

	// maxKlinesPerRequest is the API's per-request limit.
	maxKlinesPerRequest = 1000
)

// Client provides access to the exchange's market-data endpoints.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	pagePause      time.Duration
}

// ClientConfig holds transport tuning for the client.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	PagePause           time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// NewClient creates a market-data client for baseURL.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.PagePause <= 0 {
		cfg.PagePause = 200 * time.Millisecond
	}
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		pagePause:      cfg.PagePause,
	}
}

// GetKlines fetches up to limit most recent candles for symbol at the given
// interval. A non-zero endTime bounds the page to candles at or before it.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if endTime > 0 {
		q.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	resp, err := c.doRequest(ctx, c.baseURL+klinesPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	var candles []models.Candle
	if err := json.NewDecoder(resp.Body).Decode(&candles); err != nil {
		return nil, fmt.Errorf("failed to decode klines for %s: %w", symbol, err)
	}
	return candles, nil
}

// GetRecentKlines fetches the last count candles by walking backwards in
// pages of at most 1000, pausing between requests to respect API rate
// limits. Partial results are returned if a page comes back empty.
func (c *Client) GetRecentKlines(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error) {
	var candles []models.Candle
	var endTime int64
	remaining := count

	for remaining > 0 {
		limit := remaining
		if limit > maxKlinesPerRequest {
			limit = maxKlinesPerRequest
		}
		batch, err := c.GetKlines(ctx, symbol, interval, limit, endTime)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		// The API returns oldest-first; prepend the page.
		candles = append(batch, candles...)
		endTime = batch[0].OpenTime - 1
		remaining -= len(batch)

		if remaining > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pagePause):
			}
		}
	}

	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

// ticker24h is the subset of the 24h ticker payload the ranking needs.
type ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

// GetTopSymbols returns the count USDT-quoted symbols with the highest 24h
// quote volume, in descending order.
func (c *Client) GetTopSymbols(ctx context.Context, count int) ([]string, error) {
	resp, err := c.doRequest(ctx, c.baseURL+ticker24hPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch 24h tickers: %w", err)
	}
	defer resp.Body.Close()

	var tickers []ticker24h
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, fmt.Errorf("failed to decode 24h tickers: %w", err)
	}

	type ranked struct {
		symbol string
		volume float64
	}
	var usdt []ranked
	for _, tk := range tickers {
		if !strings.HasSuffix(tk.Symbol, "USDT") {
			continue
		}
		volume, err := strconv.ParseFloat(tk.QuoteVolume, 64)
		if err != nil {
			continue
		}
		usdt = append(usdt, ranked{symbol: tk.Symbol, volume: volume})
	}
	sort.Slice(usdt, func(i, j int) bool { return usdt[i].volume > usdt[j].volume })

	if len(usdt) > count {
		usdt = usdt[:count]
	}
	symbols := make([]string, len(usdt))
	for i, r := range usdt {
		symbols[i] = r.symbol
	}
	return symbols, nil
}

// doRequest performs a GET with linear-backoff retry on network errors and
// server-side failures.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
