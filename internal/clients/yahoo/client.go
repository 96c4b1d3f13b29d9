// Package yahoo provides a client for the Yahoo Finance chart API,
// reached through an ordered chain of pass-through relays.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/models"
)

const (
	DefaultBaseURL        = "https://query1.finance.yahoo.com"
	DefaultAttemptTimeout = 4 * time.Second
	DefaultRateLimit      = 10 // requests per second
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	// null and anything else decode to zero rather than failing the row
	*f = 0
	return nil
}

// Client implements the QuoteClient interface
type Client struct {
	baseURL        string
	relays         []string
	httpClient     *http.Client
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	logger         *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the vendor base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRelays sets the ordered pass-through relay prefixes. Each relay
// is a URL prefix the encoded target URL is appended to.
func WithRelays(relays []string) ClientOption {
	return func(c *Client) {
		c.relays = relays
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithAttemptTimeout sets the per-relay-attempt timeout
func WithAttemptTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.attemptTimeout = timeout
	}
}

// NewClient creates a new Yahoo chart client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{},
		attemptTimeout: DefaultAttemptTimeout,
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:         common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RelayError reports that every relay attempt failed for one request.
type RelayError struct {
	Symbol   string
	Attempts int
	LastErr  error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("all %d relay attempts failed for %s: %v", e.Attempts, e.Symbol, e.LastErr)
}

func (e *RelayError) Unwrap() error {
	return e.LastErr
}

// get performs a rate-limited GET through the relay chain and decodes
// the chart response. Each relay gets one attempt with a short timeout;
// the direct vendor URL is the final attempt. No retries beyond the
// chain — callers own retry cadence.
func (c *Client) get(ctx context.Context, symbol, path string, params url.Values) (*chartResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	attempts := make([]string, 0, len(c.relays)+1)
	for _, relay := range c.relays {
		attempts = append(attempts, relay+url.QueryEscape(target))
	}
	attempts = append(attempts, target)

	var lastErr error
	for i, attemptURL := range attempts {
		result, err := c.fetchOne(ctx, attemptURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.logger.Debug().
			Str("symbol", symbol).
			Int("attempt", i+1).
			Err(err).
			Msg("Relay attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &RelayError{Symbol: symbol, Attempts: len(attempts), LastErr: lastErr}
}

func (c *Client) fetchOne(ctx context.Context, attemptURL string) (*chartResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, attemptURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "portfolio-pro/"+common.GetVersion())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(raw.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty chart result")
	}

	return &raw.Chart.Result[0], nil
}

// chartResponse mirrors the vendor's v8 chart schema. Fields routinely
// go missing or null, so everything decodes leniently.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  any           `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string      `json:"symbol"`
		MarketState        string      `json:"marketState"`
		RegularMarketPrice flexFloat64 `json:"regularMarketPrice"`
		RegularMarketOpen  flexFloat64 `json:"regularMarketOpen"`
		PostMarketPrice    flexFloat64 `json:"postMarketPrice"`
		PreMarketPrice     flexFloat64 `json:"preMarketPrice"`
		ChartPreviousClose flexFloat64 `json:"chartPreviousClose"`
		PreviousClose      flexFloat64 `json:"previousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open  []*float64 `json:"open"`
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// marketState maps the vendor's session tag onto the internal one.
func marketState(s string) models.MarketState {
	switch strings.ToUpper(s) {
	case "REGULAR":
		return models.MarketStateOpen
	case "PRE", "POST", "PREPRE", "POSTPOST":
		return models.MarketStateExtended
	case "CLOSED":
		return models.MarketStateClosed
	default:
		return models.MarketStateUnknown
	}
}

// GetQuote retrieves the live quote for one vendor-format symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.VendorQuote, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "1d")

	result, err := c.get(ctx, symbol, "/v8/finance/chart/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}

	quote := &models.VendorQuote{
		Symbol:          symbol,
		RegularPrice:    float64(result.Meta.RegularMarketPrice),
		PostMarketPrice: float64(result.Meta.PostMarketPrice),
		PreMarketPrice:  float64(result.Meta.PreMarketPrice),
		SessionOpen:     float64(result.Meta.RegularMarketOpen),
		State:           marketState(result.Meta.MarketState),
	}

	// Either previous-close field may be populated; prefer the explicit one.
	quote.PreviousClose = float64(result.Meta.PreviousClose)
	if quote.PreviousClose == 0 {
		quote.PreviousClose = float64(result.Meta.ChartPreviousClose)
	}

	return quote, nil
}

// historyRange maps a trailing day count onto the vendor's range tokens.
func historyRange(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 92:
		return "3mo"
	case days <= 366:
		return "1y"
	default:
		return "2y"
	}
}

// GetDailyHistory retrieves trailing daily bars for one vendor-format
// symbol, oldest first. Bars with a null or non-positive close are
// dropped rather than surfaced as gap sentinels.
func (c *Client) GetDailyHistory(ctx context.Context, symbol string, days int) ([]models.VendorBar, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", historyRange(days))

	result, err := c.get(ctx, symbol, "/v8/finance/chart/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}

	quote := result.Indicators.Quote[0]
	bars := make([]models.VendorBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil || *quote.Close[i] <= 0 {
			continue
		}
		bar := models.VendorBar{
			Timestamp: time.Unix(ts, 0),
			Close:     *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil && *quote.Open[i] > 0 {
			bar.Open = *quote.Open[i]
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// Ensure Client implements QuoteClient
var _ interfaces.QuoteClient = (*Client)(nil)
