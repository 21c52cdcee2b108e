package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/httputil"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// EarningsEvent is one scheduled earnings announcement.
type EarningsEvent struct {
	Symbol       string    `json:"symbol"`
	AnnounceDate time.Time `json:"announce_date"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// EarningsClient scrapes the earnings calendar page. Used by the pipeline
// to exclude names announcing inside the blackout window.
type EarningsClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	maxRetries int
}

// NewEarningsClient creates an earnings calendar client from config.
func NewEarningsClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *EarningsClient {
	return &EarningsClient{
		httpClient: httpClient,
		logger:     log,
		baseURL:    cfg.Feeds.EarningsBaseURL,
		maxRetries: cfg.Feeds.MaxRetries,
	}
}

// UpcomingEarnings fetches announcements scheduled between now and the
// horizon, keyed by symbol.
func (c *EarningsClient) UpcomingEarnings(ctx context.Context, horizon time.Duration) (map[string]EarningsEvent, error) {
	var events map[string]EarningsEvent
	err := Retry(ctx, c.logger, "earnings calendar", c.maxRetries, func(ctx context.Context) error {
		e, err := c.fetchCalendar(ctx)
		if err != nil {
			return err
		}
		events = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(horizon)
	for sym, ev := range events {
		if ev.AnnounceDate.After(cutoff) {
			delete(events, sym)
		}
	}

	c.logger.WithField("count", len(events)).Debug("Fetched upcoming earnings")
	return events, nil
}

// NextEarnings returns the next announcement date within the horizon for
// each of the requested symbols that has one.
func (c *EarningsClient) NextEarnings(ctx context.Context, symbols []string, horizon time.Duration) (map[string]time.Time, error) {
	events, err := c.UpcomingEarnings(ctx, horizon)
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time)
	for _, sym := range symbols {
		if ev, ok := events[sym]; ok {
			out[sym] = ev.AnnounceDate
		}
	}
	return out, nil
}

func (c *EarningsClient) fetchCalendar(ctx context.Context) (map[string]EarningsEvent, error) {
	resp, err := c.httpClient.Get(ctx, fmt.Sprintf("%s/calendar/earnings", c.baseURL))
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

	return c.parseCalendarHTML(string(body))
}

var symbolCellRe = regexp.MustCompile(`^[A-Z0-9\.\-]{1,10}$`)

// parseCalendarHTML extracts (symbol, date) rows from the calendar table.
// Rows with an unparseable symbol or date are skipped, not fatal.
func (c *EarningsClient) parseCalendarHTML(html string) (map[string]EarningsEvent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar HTML: %w", err)
	}

	events := make(map[string]EarningsEvent)
	now := time.Now().UTC()

	doc.Find("table.earnings-calendar tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		symbol := strings.TrimSpace(cells.Eq(0).Text())
		if !symbolCellRe.MatchString(symbol) {
			return
		}

		dateText := strings.TrimSpace(cells.Eq(1).Text())
		announceDate, err := time.Parse("2006-01-02", dateText)
		if err != nil {
			return
		}

		// keep the earliest upcoming date per symbol
		if existing, ok := events[symbol]; ok && existing.AnnounceDate.Before(announceDate) {
			return
		}
		events[symbol] = EarningsEvent{
			Symbol:       symbol,
			AnnounceDate: announceDate,
			FetchedAt:    now,
		}
	})

	return events, nil
}
