package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/httputil"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// Quote is a current price observation for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	AsOf      time.Time `json:"as_of"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PriceClient fetches quotes from the market-data provider. All price
// lookups go through this client.
type PriceClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	maxRetries int
}

// NewPriceClient creates a price client from config.
func NewPriceClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *PriceClient {
	return &PriceClient{
		httpClient: httpClient,
		logger:     log,
		baseURL:    cfg.Feeds.PriceBaseURL,
		apiKey:     cfg.Feeds.PriceAPIKey,
		maxRetries: cfg.Feeds.MaxRetries,
	}
}

type quotePayload struct {
	Symbol        string `json:"01. symbol"`
	Price         string `json:"05. price"`
	LatestTrading string `json:"07. latest trading day"`
}

type quoteEnvelope struct {
	GlobalQuote quotePayload `json:"Global Quote"`
}

// GetQuote fetches the latest quote for a symbol, retrying transient
// failures with exponential backoff.
func (c *PriceClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var quote *Quote
	err := Retry(ctx, c.logger, "price quote", c.maxRetries, func(ctx context.Context) error {
		q, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (c *PriceClient) fetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Get(ctx, fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope quoteEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if envelope.GlobalQuote.Symbol == "" {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}

	var price float64
	if _, err := fmt.Sscanf(envelope.GlobalQuote.Price, "%f", &price); err != nil {
		return nil, fmt.Errorf("invalid price %q for %s: %w", envelope.GlobalQuote.Price, symbol, err)
	}

	asOf := time.Now().UTC()
	if d, err := time.Parse("2006-01-02", envelope.GlobalQuote.LatestTrading); err == nil {
		asOf = d
	}

	return &Quote{
		Symbol:    envelope.GlobalQuote.Symbol,
		Price:     price,
		Currency:  "USD",
		AsOf:      asOf,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// GetQuotes fetches quotes for multiple symbols sequentially, skipping
// symbols that fail. Used by the precompute warm-cache batch; partial
// results are acceptable there.
func (c *PriceClient) GetQuotes(ctx context.Context, symbols []string) (map[string]*Quote, error) {
	quotes := make(map[string]*Quote, len(symbols))
	for _, s := range symbols {
		q, err := c.GetQuote(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return quotes, ctx.Err()
			}
			c.logger.WithError(err).WithField("symbol", s).Warn("Skipping symbol after quote failure")
			continue
		}
		quotes[s] = q
	}
	return quotes, nil
}
