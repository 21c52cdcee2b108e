package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/httputil"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// FxRate is one currency-pair conversion rate.
type FxRate struct {
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Rate      float64   `json:"rate"`
	AsOf      time.Time `json:"as_of"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FxClient fetches conversion rates for multi-currency holdings.
type FxClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	maxRetries int
}

// NewFxClient creates an FX client from config.
func NewFxClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *FxClient {
	return &FxClient{
		httpClient: httpClient,
		logger:     log,
		baseURL:    cfg.Feeds.FxBaseURL,
		maxRetries: cfg.Feeds.MaxRetries,
	}
}

type fxEnvelope struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// GetRate fetches the conversion rate from one currency to another.
// Identical currencies short-circuit to 1.0 without a network call.
func (c *FxClient) GetRate(ctx context.Context, from, to string) (*FxRate, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return &FxRate{Base: from, Quote: to, Rate: 1.0, AsOf: time.Now().UTC(), FetchedAt: time.Now().UTC()}, nil
	}

	var rate *FxRate
	err := Retry(ctx, c.logger, "fx rate", c.maxRetries, func(ctx context.Context) error {
		r, err := c.fetchRate(ctx, from, to)
		if err != nil {
			return err
		}
		rate = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (c *FxClient) fetchRate(ctx context.Context, from, to string) (*FxRate, error) {
	resp, err := c.httpClient.Get(ctx, fmt.Sprintf("%s/latest?base=%s&symbols=%s", c.baseURL, from, to))
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

	var envelope fxEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse FX response: %w", err)
	}

	r, ok := envelope.Rates[to]
	if !ok {
		return nil, fmt.Errorf("no rate for %s/%s in response", from, to)
	}

	asOf := time.Now().UTC()
	if d, err := time.Parse("2006-01-02", envelope.Date); err == nil {
		asOf = d
	}

	return &FxRate{
		Base:      from,
		Quote:     to,
		Rate:      r,
		AsOf:      asOf,
		FetchedAt: time.Now().UTC(),
	}, nil
}
