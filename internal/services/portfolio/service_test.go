package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/big0725/portfolio-pro/internal/common"
	"github.com/big0725/portfolio-pro/internal/interfaces"
	"github.com/big0725/portfolio-pro/internal/models"
)

// --- in-memory storage ---

var _ interfaces.StorageManager = (*mockStorage)(nil)

type mockStorage struct {
	portfolio *mockPortfolioStore
	files     *mockFileStore
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		portfolio: &mockPortfolioStore{
			scopes:    make(map[string]*models.Scope),
			txs:       make(map[string][]models.Transaction),
			snapshots: make(map[string][]models.ValueSnapshot),
			insights:  make(map[string]*models.Insight),
		},
		files: &mockFileStore{data: make(map[string][]byte)},
	}
}

func (m *mockStorage) PortfolioStore() interfaces.PortfolioStore { return m.portfolio }
func (m *mockStorage) InternalStore() interfaces.InternalStore   { return &mockInternalStore{} }
func (m *mockStorage) FileStore() interfaces.FileStore           { return m.files }
func (m *mockStorage) Close() error                              { return nil }

type mockPortfolioStore struct {
	scopes     map[string]*models.Scope
	txs        map[string][]models.Transaction
	snapshots  map[string][]models.ValueSnapshot
	insights   map[string]*models.Insight
	getSnapErr error
	replaceErr error
}

func (m *mockPortfolioStore) EnsureScope(_ context.Context, name string) (*models.Scope, error) {
	if scope, ok := m.scopes[name]; ok {
		return scope, nil
	}
	scope := &models.Scope{Name: name, CreatedAt: time.Now()}
	m.scopes[name] = scope
	return scope, nil
}

func (m *mockPortfolioStore) GetScope(_ context.Context, name string) (*models.Scope, error) {
	if scope, ok := m.scopes[name]; ok {
		return scope, nil
	}
	return nil, models.ErrScopeNotFound
}

func (m *mockPortfolioStore) ListScopes(context.Context) ([]models.Scope, error) {
	out := make([]models.Scope, 0, len(m.scopes))
	for _, scope := range m.scopes {
		out = append(out, *scope)
	}
	return out, nil
}

func (m *mockPortfolioStore) DeleteScope(_ context.Context, name string) error {
	delete(m.scopes, name)
	delete(m.txs, name)
	delete(m.snapshots, name)
	delete(m.insights, name)
	return nil
}

func (m *mockPortfolioStore) AppendTransaction(_ context.Context, scope string, tx *models.Transaction) error {
	m.txs[scope] = append(m.txs[scope], *tx)
	return nil
}

func (m *mockPortfolioStore) DeleteTransaction(_ context.Context, scope, id string) error {
	out := m.txs[scope][:0]
	for _, tx := range m.txs[scope] {
		if tx.ID != id {
			out = append(out, tx)
		}
	}
	m.txs[scope] = out
	return nil
}

func (m *mockPortfolioStore) ListTransactions(_ context.Context, scope string) ([]models.Transaction, error) {
	return m.txs[scope], nil
}

func (m *mockPortfolioStore) GetSnapshots(_ context.Context, scope string) ([]models.ValueSnapshot, error) {
	if m.getSnapErr != nil {
		return nil, m.getSnapErr
	}
	return m.snapshots[scope], nil
}

func (m *mockPortfolioStore) ReplaceSnapshots(_ context.Context, scope string, snaps []models.ValueSnapshot) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.snapshots[scope] = snaps
	return nil
}

func (m *mockPortfolioStore) GetInsight(_ context.Context, scope string) (*models.Insight, error) {
	return m.insights[scope], nil
}

func (m *mockPortfolioStore) SaveInsight(_ context.Context, scope string, insight *models.Insight) error {
	m.insights[scope] = insight
	return nil
}

func (m *mockPortfolioStore) Close() error { return nil }

type mockInternalStore struct{}

func (m *mockInternalStore) GetSystemKV(context.Context, string) (string, error) { return "", nil }
func (m *mockInternalStore) SetSystemKV(context.Context, string, string) error   { return nil }
func (m *mockInternalStore) Close() error                                        { return nil }

type mockFileStore struct {
	data map[string][]byte
}

func (m *mockFileStore) SaveFile(_ context.Context, category, key string, data []byte, _ string) error {
	m.data[category+"/"+key] = data
	return nil
}

func (m *mockFileStore) GetFile(_ context.Context, category, key string) ([]byte, string, error) {
	data, ok := m.data[category+"/"+key]
	if !ok {
		return nil, "", errors.New("file not found: " + category + "/" + key)
	}
	return data, "image/png", nil
}

func (m *mockFileStore) DeleteFile(_ context.Context, category, key string) error {
	delete(m.data, category+"/"+key)
	return nil
}

func (m *mockFileStore) HasFile(_ context.Context, category, key string) (bool, error) {
	_, ok := m.data[category+"/"+key]
	return ok, nil
}

// --- vendor mocks ---

type mockMarket struct {
	quotes *models.QuoteSnapshot
	rows   []models.HistoryRow
	err    error
}

func (m *mockMarket) Refresh(context.Context, []string, map[string]float64) (*models.QuoteSnapshot, []models.HistoryRow, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.quotes, m.rows, nil
}

type mockInsight struct {
	calls int
	err   error
}

func (m *mockInsight) Get(context.Context, string, map[string]models.Holding, bool) (*models.Insight, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.Insight{Date: "2026-08-28", Buffett: &models.PersonaAdvice{Advice: "Hold."}}, nil
}

// --- fixtures ---

// 2026-08-28 is a Friday.
var testNow = time.Date(2026, 8, 28, 15, 0, 0, 0, time.Local)

func newTestService(storage *mockStorage, market *mockMarket, insight *mockInsight) *Service {
	svc := NewService(storage, market, insight, common.NewSilentLogger())
	svc.now = func() time.Time { return testNow }
	return svc
}

func adminCtx() context.Context {
	return common.WithIdentity(context.Background(), &common.Identity{Email: "admin@example.com", IsPrivileged: true})
}

func viewerCtx() context.Context {
	return common.WithIdentity(context.Background(), &common.Identity{Email: "viewer@example.com"})
}

func marketFixture() *mockMarket {
	quotes := models.NewQuoteSnapshot(testNow)
	quotes.Current["AAPL"] = 200
	quotes.Reference["AAPL"] = 195
	return &mockMarket{
		quotes: quotes,
		rows: []models.HistoryRow{
			{Date: "2026-08-26", Closes: map[string]float64{"AAPL": 190}},
			{Date: "2026-08-27", Closes: map[string]float64{"AAPL": 198}},
		},
	}
}

func seedBuy(t *testing.T, svc *Service, scope string, qty, price float64) {
	t.Helper()
	_, err := svc.AddTransaction(adminCtx(), scope, &models.Transaction{
		Symbol:    "AAPL",
		Quantity:  qty,
		UnitPrice: price,
		Kind:      models.TransactionBuy,
	})
	require.NoError(t, err)
}

// --- tests ---

func TestAddTransactionAssignsIDAndNormalizes(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, marketFixture(), &mockInsight{})

	tx, err := svc.AddTransaction(adminCtx(), "primary", &models.Transaction{
		Symbol:    " aapl ",
		Quantity:  10,
		UnitPrice: 150,
		Kind:      models.TransactionBuy,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "AAPL", tx.Symbol)
	assert.Equal(t, testNow, tx.RecordedAt)
	require.Len(t, storage.portfolio.txs["primary"], 1)
}

func TestAddTransactionRequiresPrivilege(t *testing.T) {
	svc := newTestService(newMockStorage(), marketFixture(), &mockInsight{})

	_, err := svc.AddTransaction(viewerCtx(), "primary", &models.Transaction{
		Symbol:    "AAPL",
		Quantity:  1,
		UnitPrice: 150,
		Kind:      models.TransactionBuy,
	})
	assert.ErrorIs(t, err, models.ErrNotPrivileged)
}

func TestAddTransactionRejectsInvalid(t *testing.T) {
	svc := newTestService(newMockStorage(), marketFixture(), &mockInsight{})

	_, err := svc.AddTransaction(adminCtx(), "primary", &models.Transaction{
		Symbol:    "AAPL",
		Quantity:  -1,
		UnitPrice: 150,
		Kind:      models.TransactionBuy,
	})
	assert.Error(t, err)
}

func TestGetHoldings(t *testing.T) {
	svc := newTestService(newMockStorage(), marketFixture(), &mockInsight{})
	seedBuy(t, svc, "primary", 10, 150)

	holdings, err := svc.GetHoldings(context.Background(), "primary")
	require.NoError(t, err)
	require.Contains(t, holdings, "AAPL")
	assert.InDelta(t, 10, holdings["AAPL"].NetQuantity, 1e-9)
}

func TestRefreshWritesSnapshotUnderAdmin(t *testing.T) {
	storage := newMockStorage()
	insight := &mockInsight{}
	svc := newTestService(storage, marketFixture(), insight)
	seedBuy(t, svc, "primary", 10, 150)

	result, err := svc.Refresh(adminCtx(), "primary")
	require.NoError(t, err)

	assert.InDelta(t, 2000, result.Stats.TotalValue, 1e-9)
	assert.Equal(t, models.SyncStatusSynced, result.SyncStatus)
	assert.Equal(t, 1, insight.calls)

	stored := storage.portfolio.snapshots["primary"]
	require.NotEmpty(t, stored)
	last := stored[len(stored)-1]
	assert.Equal(t, "2026-08-28", last.Date)
	assert.InDelta(t, 2000, last.Value, 1e-9)
}

func TestRefreshViewerNeverWrites(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, marketFixture(), &mockInsight{})
	seedBuy(t, svc, "primary", 10, 150)

	result, err := svc.Refresh(viewerCtx(), "primary")
	require.NoError(t, err)

	assert.InDelta(t, 2000, result.Stats.TotalValue, 1e-9)
	assert.Empty(t, storage.portfolio.snapshots["primary"])
}

func TestRefreshMarketFailureDegrades(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, &mockMarket{err: models.ErrMarketDataUnavailable}, &mockInsight{})
	seedBuy(t, svc, "primary", 10, 150)

	result, err := svc.Refresh(adminCtx(), "primary")
	require.NoError(t, err)

	// Valued at cost basis when nothing fresher exists.
	assert.InDelta(t, 1500, result.Stats.TotalValue, 1e-9)
	assert.Contains(t, result.Warnings, models.ErrMarketDataUnavailable.Error())
}

func TestRefreshPersistFailureFlipsSyncStatus(t *testing.T) {
	storage := newMockStorage()
	storage.portfolio.replaceErr = errors.New("connection reset")
	svc := newTestService(storage, marketFixture(), &mockInsight{})
	seedBuy(t, svc, "primary", 10, 150)

	result, err := svc.Refresh(adminCtx(), "primary")
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusError, result.SyncStatus)
	// Local state is still computed and served.
	assert.NotEmpty(t, result.Series)
}

func TestRefreshSnapshotReadFailurePreservesStored(t *testing.T) {
	storage := newMockStorage()
	recorded := []models.ValueSnapshot{
		{Date: "2026-05-12", Value: 1200},
		{Date: "2026-06-15", Value: 1400},
		{Date: "2026-07-20", Value: 1700},
	}
	storage.portfolio.snapshots["primary"] = recorded
	storage.portfolio.getSnapErr = errors.New("connection reset")
	svc := newTestService(storage, marketFixture(), &mockInsight{})
	seedBuy(t, svc, "primary", 10, 150)

	result, err := svc.Refresh(adminCtx(), "primary")
	require.NoError(t, err)

	// An unreadable list must never be rebuilt and written back: the
	// recorded history stays untouched and the cycle reports the error.
	assert.Equal(t, recorded, storage.portfolio.snapshots["primary"])
	assert.Equal(t, models.SyncStatusError, result.SyncStatus)
	assert.Contains(t, result.Warnings, models.ErrPersistenceFailed.Error())
	assert.InDelta(t, 2000, result.Stats.TotalValue, 1e-9)
}

func TestRefreshInsightFailureIsSoft(t *testing.T) {
	svc := newTestService(newMockStorage(), marketFixture(), &mockInsight{err: models.ErrInsightGenerationFailed})
	seedBuy(t, svc, "primary", 10, 150)

	result, err := svc.Refresh(adminCtx(), "primary")
	require.NoError(t, err)
	assert.Contains(t, result.Warnings, models.ErrInsightGenerationFailed.Error())
}

func TestGetOverviewDoesNotWrite(t *testing.T) {
	storage := newMockStorage()
	insight := &mockInsight{}
	svc := newTestService(storage, marketFixture(), insight)
	seedBuy(t, svc, "primary", 10, 150)

	_, err := svc.GetOverview(adminCtx(), "primary")
	require.NoError(t, err)

	assert.Empty(t, storage.portfolio.snapshots["primary"])
	assert.Zero(t, insight.calls)
}

func TestGetSeriesAppliesWindow(t *testing.T) {
	storage := newMockStorage()
	for day := 10; day <= 21; day++ {
		if ts := time.Date(2026, 8, day, 0, 0, 0, 0, time.Local); ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			continue
		}
		storage.portfolio.snapshots["primary"] = append(storage.portfolio.snapshots["primary"],
			models.ValueSnapshot{Date: time.Date(2026, 8, day, 0, 0, 0, 0, time.Local).Format(common.DateLayout), Value: float64(day * 100)})
	}
	svc := newTestService(storage, &mockMarket{quotes: models.NewQuoteSnapshot(testNow)}, &mockInsight{})

	series, err := svc.GetSeries(context.Background(), "primary", models.Window7D)
	require.NoError(t, err)
	assert.Len(t, series, 7)
}

func TestResetSnapshots(t *testing.T) {
	storage := newMockStorage()
	storage.portfolio.snapshots["primary"] = []models.ValueSnapshot{{Date: "2026-08-27", Value: 1000}}
	storage.files.data["charts/primary"] = []byte("stale chart")
	svc := newTestService(storage, marketFixture(), &mockInsight{})

	require.ErrorIs(t, svc.ResetSnapshots(viewerCtx(), "primary"), models.ErrNotPrivileged)
	require.NoError(t, svc.ResetSnapshots(adminCtx(), "primary"))
	assert.Empty(t, storage.portfolio.snapshots["primary"])
	assert.NotContains(t, storage.files.data, "charts/primary")
}

func TestGetChartRendersAndCaches(t *testing.T) {
	storage := newMockStorage()
	storage.portfolio.snapshots["primary"] = []models.ValueSnapshot{
		{Date: "2026-08-26", Value: 1900},
		{Date: "2026-08-27", Value: 1980},
	}
	svc := newTestService(storage, &mockMarket{quotes: models.NewQuoteSnapshot(testNow)}, &mockInsight{})

	png, err := svc.GetChart(context.Background(), "primary", models.WindowAll)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	cached, ok := storage.files.data["charts/primary"]
	require.True(t, ok)
	assert.Equal(t, png, cached)
}

func TestGetChartServesCachedFullWindow(t *testing.T) {
	storage := newMockStorage()
	cached := []byte("previously rendered png")
	storage.files.data["charts/primary"] = cached
	storage.portfolio.snapshots["primary"] = []models.ValueSnapshot{
		{Date: "2026-08-26", Value: 1900},
		{Date: "2026-08-27", Value: 1980},
	}
	svc := newTestService(storage, &mockMarket{quotes: models.NewQuoteSnapshot(testNow)}, &mockInsight{})

	png, err := svc.GetChart(context.Background(), "primary", models.WindowAll)
	require.NoError(t, err)
	assert.Equal(t, cached, png)

	// Windowed requests render fresh and leave the cache alone.
	windowed, err := svc.GetChart(context.Background(), "primary", models.Window7D)
	require.NoError(t, err)
	assert.NotEqual(t, cached, windowed)
	assert.Equal(t, cached, storage.files.data["charts/primary"])
}

func TestScopeLifecycle(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, marketFixture(), &mockInsight{})

	scopes, err := svc.ListScopes(context.Background())
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, models.DefaultScope, scopes[0].Name)

	created, err := svc.CreateScope(adminCtx(), "Retirement")
	require.NoError(t, err)
	assert.Equal(t, "retirement", created.Name)

	_, err = svc.CreateScope(adminCtx(), "bad name!")
	assert.Error(t, err)

	assert.ErrorIs(t, svc.DeleteScope(adminCtx(), models.DefaultScope), models.ErrScopeProtected)
	storage.files.data["charts/retirement"] = []byte("chart")
	require.NoError(t, svc.DeleteScope(adminCtx(), "retirement"))
	assert.NotContains(t, storage.files.data, "charts/retirement")
	assert.ErrorIs(t, svc.DeleteScope(adminCtx(), "retirement"), models.ErrScopeNotFound)
}

func TestGetInsightPassesHoldings(t *testing.T) {
	storage := newMockStorage()
	insight := &mockInsight{}
	svc := newTestService(storage, &mockMarket{}, insight)
	seedBuy(t, svc, "primary", 10, 150)

	ins, err := svc.GetInsight(viewerCtx(), "primary", false)
	require.NoError(t, err)
	require.NotNil(t, ins)
	assert.Equal(t, 1, insight.calls)
	assert.Equal(t, "Hold.", ins.Buffett.Advice)
}

func TestRenderSeriesChartTooFewPoints(t *testing.T) {
	_, err := RenderSeriesChart("primary", []models.SeriesPoint{{FullDate: "2026-08-27", Value: 100}})
	assert.Error(t, err)
}
