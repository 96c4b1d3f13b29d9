package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/models"
)

type mockQuoteClient struct {
	quotes  map[string]*models.VendorQuote
	history map[string][]models.VendorBar
	err     error
}

func (m *mockQuoteClient) GetQuote(_ context.Context, symbol string) (*models.VendorQuote, error) {
	if quote, ok := m.quotes[symbol]; ok {
		return quote, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	return nil, errors.New("no quote")
}

func (m *mockQuoteClient) GetDailyHistory(_ context.Context, symbol string, _ int) ([]models.VendorBar, error) {
	if bars, ok := m.history[symbol]; ok {
		return bars, nil
	}
	return nil, errors.New("no history")
}

func newTestService(client *mockQuoteClient) *Service {
	svc := NewService(client, common.NewSilentLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC) }
	return svc
}

func TestToVendorSymbol(t *testing.T) {
	assert.Equal(t, "BTC-USD", ToVendorSymbol("btc"))
	assert.Equal(t, "ETH-USD", ToVendorSymbol(" ETH "))
	assert.Equal(t, "AAPL", ToVendorSymbol("aapl"))
	// Only allow-listed tickers get the crypto suffix.
	assert.Equal(t, "SHIB", ToVendorSymbol("SHIB"))
}

func TestFromVendorSymbol(t *testing.T) {
	assert.Equal(t, "BTC", FromVendorSymbol("BTC-USD"))
	assert.Equal(t, "AAPL", FromVendorSymbol("aapl"))
}

func TestRefreshPricePrecedence(t *testing.T) {
	client := &mockQuoteClient{
		quotes: map[string]*models.VendorQuote{
			"AAPL": {Symbol: "AAPL", RegularPrice: 230, SessionOpen: 228, State: models.MarketStateOpen},
			"MSFT": {Symbol: "MSFT", PostMarketPrice: 512, PreviousClose: 508, State: models.MarketStateExtended},
		},
		history: map[string][]models.VendorBar{},
	}

	snapshot, _, err := newTestService(client).Refresh(context.Background(), []string{"AAPL", "MSFT"}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 230, snapshot.Current["AAPL"], 1e-9)
	assert.InDelta(t, 228, snapshot.Reference["AAPL"], 1e-9)
	assert.InDelta(t, 512, snapshot.Current["MSFT"], 1e-9)
	assert.InDelta(t, 508, snapshot.Reference["MSFT"], 1e-9)
	assert.Equal(t, models.MarketStateOpen, snapshot.States["AAPL"])
}

func TestRefreshFallsBackToHistoryClose(t *testing.T) {
	client := &mockQuoteClient{
		quotes: map[string]*models.VendorQuote{},
		history: map[string][]models.VendorBar{
			"BTC-USD": {
				{Timestamp: time.Date(2026, 8, 26, 0, 0, 0, 0, time.Local), Open: 108000, Close: 109000},
				{Timestamp: time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local), Open: 109500, Close: 110000},
			},
		},
	}

	snapshot, rows, err := newTestService(client).Refresh(context.Background(), []string{"BTC"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.InDelta(t, 110000, snapshot.Current["BTC"], 1e-9)
	// Reference prefers the most recent open over the close.
	assert.InDelta(t, 109500, snapshot.Reference["BTC"], 1e-9)
	assert.Equal(t, "2026-08-26", rows[0].Date)
	assert.Equal(t, "2026-08-27", rows[1].Date)
}

func TestRefreshFallsBackToCostBasis(t *testing.T) {
	client := &mockQuoteClient{err: errors.New("vendor down")}
	client.quotes = map[string]*models.VendorQuote{
		"AAPL": {Symbol: "AAPL", RegularPrice: 230},
	}

	snapshot, _, err := newTestService(client).Refresh(
		context.Background(),
		[]string{"AAPL", "DELISTED"},
		map[string]float64{"DELISTED": 42.5},
	)
	require.NoError(t, err)

	assert.InDelta(t, 42.5, snapshot.Current["DELISTED"], 1e-9)
	assert.InDelta(t, 42.5, snapshot.Reference["DELISTED"], 1e-9)
}

func TestRefreshAllQuotesFailed(t *testing.T) {
	client := &mockQuoteClient{err: errors.New("vendor down")}

	_, _, err := newTestService(client).Refresh(context.Background(), []string{"AAPL", "MSFT"}, nil)
	assert.ErrorIs(t, err, models.ErrMarketDataUnavailable)
}

func TestRefreshMergesHistoryAcrossSymbols(t *testing.T) {
	day := time.Date(2026, 8, 27, 10, 0, 0, 0, time.Local)
	client := &mockQuoteClient{
		quotes: map[string]*models.VendorQuote{
			"AAPL": {Symbol: "AAPL", RegularPrice: 230},
		},
		history: map[string][]models.VendorBar{
			"AAPL":    {{Timestamp: day, Open: 228, Close: 229}},
			"BTC-USD": {{Timestamp: day, Open: 109000, Close: 110000}},
		},
	}

	_, rows, err := newTestService(client).Refresh(context.Background(), []string{"AAPL", "BTC"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.InDelta(t, 229, rows[0].Closes["AAPL"], 1e-9)
	assert.InDelta(t, 110000, rows[0].Closes["BTC"], 1e-9)
	assert.InDelta(t, 228, rows[0].Opens["AAPL"], 1e-9)
}

func TestRefreshNoSymbols(t *testing.T) {
	snapshot, rows, err := newTestService(&mockQuoteClient{}).Refresh(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Current)
	assert.Empty(t, rows)
}

func TestRefreshDeduplicatesSymbols(t *testing.T) {
	client := &mockQuoteClient{
		quotes: map[string]*models.VendorQuote{
			"AAPL": {Symbol: "AAPL", RegularPrice: 230},
		},
	}

	snapshot, _, err := newTestService(client).Refresh(context.Background(), []string{"aapl", "AAPL", " "}, nil)
	require.NoError(t, err)
	assert.Len(t, snapshot.Current, 1)
}
