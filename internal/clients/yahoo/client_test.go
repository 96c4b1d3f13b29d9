package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/big0725/portfolio-pro/internal/models"
)

func chartJSON(symbol, state string, price interface{}, previousClose float64) string {
	payload := map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []map[string]interface{}{
				{
					"meta": map[string]interface{}{
						"symbol":             symbol,
						"marketState":        state,
						"regularMarketPrice": price,
						"regularMarketOpen":  100.0,
						"previousClose":      previousClose,
						"chartPreviousClose": 90.0,
					},
				},
			},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestGetQuote_ParsesMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/AAPL") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartJSON("AAPL", "REGULAR", 198.5, 195.0)))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	quote, err := client.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}

	if quote.RegularPrice != 198.5 {
		t.Errorf("RegularPrice = %v, want 198.5", quote.RegularPrice)
	}
	if quote.State != models.MarketStateOpen {
		t.Errorf("State = %v, want open", quote.State)
	}
	// Explicit previousClose wins over chartPreviousClose
	if quote.PreviousClose != 195.0 {
		t.Errorf("PreviousClose = %v, want 195.0", quote.PreviousClose)
	}
	if quote.SessionOpen != 100.0 {
		t.Errorf("SessionOpen = %v, want 100.0", quote.SessionOpen)
	}
}

func TestGetQuote_StringPriceTolerated(t *testing.T) {
	// Some relays re-serialize numbers as strings
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartJSON("BTC-USD", "REGULAR", "110000.25", 0)))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	quote, err := client.GetQuote(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}

	if quote.RegularPrice != 110000.25 {
		t.Errorf("RegularPrice = %v, want 110000.25", quote.RegularPrice)
	}
	// Falls back to chartPreviousClose when previousClose is absent
	if quote.PreviousClose != 90.0 {
		t.Errorf("PreviousClose = %v, want 90.0", quote.PreviousClose)
	}
}

func TestGetQuote_RelayTriedBeforeDirect(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("direct endpoint should not be reached when the relay succeeds")
	}))
	defer direct.Close()

	var relayTarget string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayTarget = r.URL.Query().Get("u")
		w.Write([]byte(chartJSON("AAPL", "CLOSED", 198.5, 195.0)))
	}))
	defer relay.Close()

	client := NewClient(
		WithBaseURL(direct.URL),
		WithRelays([]string{relay.URL + "/?u="}),
	)

	quote, err := client.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}
	if quote.State != models.MarketStateClosed {
		t.Errorf("State = %v, want closed", quote.State)
	}

	// The relay receives the full encoded vendor URL
	if !strings.HasPrefix(relayTarget, direct.URL) {
		t.Errorf("relay target = %q, want prefix %q", relayTarget, direct.URL)
	}
	if !strings.Contains(relayTarget, "/v8/finance/chart/AAPL") {
		t.Errorf("relay target %q missing chart path", relayTarget)
	}
}

func TestGetQuote_FallsThroughFailedRelay(t *testing.T) {
	relayHits := 0
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayHits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer relay.Close()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartJSON("AAPL", "REGULAR", 198.5, 195.0)))
	}))
	defer direct.Close()

	client := NewClient(
		WithBaseURL(direct.URL),
		WithRelays([]string{relay.URL + "/?u="}),
	)

	quote, err := client.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote returned error: %v", err)
	}
	if relayHits != 1 {
		t.Errorf("relay hits = %d, want 1", relayHits)
	}
	if quote.RegularPrice != 198.5 {
		t.Errorf("RegularPrice = %v, want 198.5", quote.RegularPrice)
	}
}

func TestGetQuote_AllAttemptsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(
		WithBaseURL(srv.URL),
		WithRelays([]string{srv.URL + "/?u="}),
	)

	_, err := client.GetQuote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error when every attempt fails")
	}

	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("error %v is not a RelayError", err)
	}
	if relayErr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 (relay + direct)", relayErr.Attempts)
	}
}

func TestGetDailyHistory_DropsNullCloses(t *testing.T) {
	day := int64(86400)
	base := time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC).Unix()
	payload := map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []map[string]interface{}{
				{
					"meta":      map[string]interface{}{"symbol": "AAPL"},
					"timestamp": []int64{base, base + day, base + 2*day},
					"indicators": map[string]interface{}{
						"quote": []map[string]interface{}{
							{
								"open":  []interface{}{190.0, nil, 194.0},
								"close": []interface{}{192.0, nil, 196.0},
							},
						},
					},
				},
			},
		},
	}
	body, _ := json.Marshal(payload)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("range"); got != "1y" {
			t.Errorf("range = %q, want 1y", got)
		}
		w.Write(body)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	bars, err := client.GetDailyHistory(context.Background(), "AAPL", 365)
	if err != nil {
		t.Fatalf("GetDailyHistory returned error: %v", err)
	}

	if len(bars) != 2 {
		t.Fatalf("expected 2 bars (null close dropped), got %d", len(bars))
	}
	if bars[0].Close != 192.0 || bars[1].Close != 196.0 {
		t.Errorf("closes = %v, %v, want 192.0, 196.0", bars[0].Close, bars[1].Close)
	}
	if bars[1].Open != 194.0 {
		t.Errorf("open = %v, want 194.0", bars[1].Open)
	}
}

func TestHistoryRange(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{3, "5d"},
		{14, "1mo"},
		{90, "3mo"},
		{365, "1y"},
		{500, "2y"},
	}
	for _, tt := range tests {
		if got := historyRange(tt.days); got != tt.want {
			t.Errorf("historyRange(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestMarketState(t *testing.T) {
	tests := []struct {
		vendor string
		want   models.MarketState
	}{
		{"REGULAR", models.MarketStateOpen},
		{"PRE", models.MarketStateExtended},
		{"POST", models.MarketStateExtended},
		{"CLOSED", models.MarketStateClosed},
		{"", models.MarketStateUnknown},
		{"SOMETHING", models.MarketStateUnknown},
	}
	for _, tt := range tests {
		if got := marketState(tt.vendor); got != tt.want {
			t.Errorf("marketState(%q) = %v, want %v", tt.vendor, got, tt.want)
		}
	}
}

func TestFlexFloat64(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`198.5`, 198.5},
		{`"198.5"`, 198.5},
		{`"N/A"`, 0},
		{`""`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var f flexFloat64
		if err := json.Unmarshal([]byte(tt.raw), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if float64(f) != tt.want {
			t.Errorf("flexFloat64(%s) = %v, want %v", tt.raw, float64(f), tt.want)
		}
	}
}

// Guard against the relay prefix accidentally double-escaping.
func TestRelayURLEncoding(t *testing.T) {
	target := "https://example.com/v8/finance/chart/BTC-USD?interval=1d&range=1d"
	escaped := url.QueryEscape(target)
	if strings.Contains(escaped, "&") {
		t.Errorf("escaped target still contains raw ampersand: %s", escaped)
	}
}
