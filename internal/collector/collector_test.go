package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/model"
	"github.com/sells-group/marketflow-cli/internal/reconcile"
)

func newTestCache(t *testing.T) *cache.Service {
	t.Helper()
	store := cache.NewStore(cache.StoreOptions{})
	t.Cleanup(func() { _ = store.Close() })
	return cache.NewService(cache.NewMemoryCache(32), store)
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const cleanTrendCSV = `date,buy_value,sell_value,venue
2026-08-24,2000000000,1000000000,TSE
2026-08-25,2000000000,1000000000,TSE
2026-08-26,2000000000,1000000000,TSE
2026-08-27,2000000000,1000000000,TSE
2026-08-28,2000000000,1000000000,TSE
`

func newTrendCollector(t *testing.T, dataDir string, sources ...reconcile.Source) *TrendCollector {
	t.Helper()
	engine := reconcile.NewEngine(reconcile.DefaultConfig(), sources)
	return NewTrendCollector(newTestCache(t), engine, dataDir, 5)
}

func TestTrend_ComputesAndCaches(t *testing.T) {
	dataDir := t.TempDir()
	writeFixture(t, trendPath(dataDir, "7203"), cleanTrendCSV)
	c := newTrendCollector(t, dataDir)

	first, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000_000), first.NetTotal)
	assert.Equal(t, "2026-08-28", first.LatestDate)
	require.NotNil(t, first.Provenance)
	assert.Equal(t, reconcile.PrimarySourceName, first.Provenance.SelectedSource)

	// Second read is a cache hit: same request id comes back.
	second, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.NoError(t, err)
	assert.Equal(t, first.Provenance.RequestID, second.Provenance.RequestID)
}

func TestTrend_FileChangeInvalidates(t *testing.T) {
	dataDir := t.TempDir()
	path := trendPath(dataDir, "7203")
	writeFixture(t, path, cleanTrendCSV)
	c := newTrendCollector(t, dataDir)

	first, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.NoError(t, err)

	// Rewrite with an extra byte so the size component of the
	// signature changes even on coarse mtime filesystems.
	writeFixture(t, path, cleanTrendCSV+"\n")

	second, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Provenance.RequestID, second.Provenance.RequestID,
		"a changed drop file must force recomputation")
}

func TestTrend_WindowTrimsToTrailingDays(t *testing.T) {
	dataDir := t.TempDir()
	var csv = "date,buy_value,sell_value\n"
	for _, d := range []string{"21", "22", "23", "24", "25", "26", "27", "28"} {
		csv += "2026-08-" + d + ",1000000000,0\n"
	}
	writeFixture(t, trendPath(dataDir, "7203"), csv)
	c := newTrendCollector(t, dataDir)

	trend, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.NoError(t, err)
	require.Len(t, trend.Days, 5)
	assert.Equal(t, "2026-08-24", trend.Days[0].Date)
}

func TestTrend_HistoricalDateEndsWindow(t *testing.T) {
	dataDir := t.TempDir()
	writeFixture(t, trendPath(dataDir, "7203"), cleanTrendCSV)
	c := newTrendCollector(t, dataDir)

	trend, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203", Date: "2026-08-26"})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-26", trend.LatestDate)
	require.Len(t, trend.Days, 3)
}

type stubSource struct {
	name    string
	payload *model.TrendSummary
}

func (s *stubSource) Name() string             { return s.name }
func (s *stubSource) SupportsHistorical() bool { return true }
func (s *stubSource) FetchTrend(ctx context.Context, ticker, date string) (*model.TrendSummary, error) {
	return s.payload, nil
}

func TestTrend_MissingFileFallsBackToSecondary(t *testing.T) {
	sec := &model.TrendSummary{Ticker: "7203", Days: []model.DayFlow{
		{Date: "2026-08-28", BuyValue: 100},
	}}
	sec.Finalize()

	c := newTrendCollector(t, t.TempDir(), &stubSource{name: "exchange_api", payload: sec})

	trend, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.NoError(t, err)
	assert.Equal(t, "exchange_api", trend.Provenance.SelectedSource)
	assert.Contains(t, trend.Provenance.AnomalyFlags, string(reconcile.FlagMissingPrimary))
}

func TestTrend_NoSourcesAtAll(t *testing.T) {
	c := newTrendCollector(t, t.TempDir())
	_, err := c.Trend(context.Background(), TrendRequest{Ticker: "7203"})
	require.Error(t, err)
}

const gainersCSV = `ticker,name,close,change_pct,turnover
6758,Sony,13200,3.8,9000000000
7203,Toyota,2850.5,4.2,12000000000
9984,SoftBank,7800,1.1,5000000000
`

func TestGainers_RanksAndTruncates(t *testing.T) {
	dataDir := t.TempDir()
	writeFixture(t, gainersPath(dataDir, "2026-08-28"), gainersCSV)
	c := NewGainersCollector(newTestCache(t), nil, dataDir)

	table, err := c.Gainers(context.Background(), GainersRequest{Date: "2026-08-28", Top: 2})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "7203", table.Rows[0].Ticker, "highest change_pct ranks first")
	assert.Equal(t, "6758", table.Rows[1].Ticker)
}

func TestGainers_FlowEnrichment(t *testing.T) {
	dataDir := t.TempDir()
	writeFixture(t, gainersPath(dataDir, "2026-08-28"), gainersCSV)
	// Only Toyota has a trend drop; the others stay unenriched.
	writeFixture(t, trendPath(dataDir, "7203"), cleanTrendCSV)

	trends := newTrendCollector(t, dataDir)
	c := NewGainersCollector(newTestCache(t), trends, dataDir)

	table, err := c.Gainers(context.Background(), GainersRequest{Date: "2026-08-28", WithFlows: true})
	require.NoError(t, err)

	byTicker := map[string]model.GainerRow{}
	for _, row := range table.Rows {
		byTicker[row.Ticker] = row
	}
	require.NotNil(t, byTicker["7203"].NetFlow)
	assert.Equal(t, int64(5_000_000_000), *byTicker["7203"].NetFlow)
	assert.Nil(t, byTicker["6758"].NetFlow, "tickers without data are left unenriched, not failed")
}

func TestGainers_MissingDrop(t *testing.T) {
	c := NewGainersCollector(newTestCache(t), nil, t.TempDir())
	_, err := c.Gainers(context.Background(), GainersRequest{Date: "2026-08-28"})
	require.Error(t, err)
}

const candlesCSV = `date,open,high,low,close,volume
2026-08-25,98,102,97,100,900
2026-08-26,100,110,95,105,1000
2026-08-27,105,108,101,102,800
`

func TestChart_WindowAndCache(t *testing.T) {
	dataDir := t.TempDir()
	writeFixture(t, candlesPath(dataDir, "7203"), candlesCSV)
	c := NewChartCollector(newTestCache(t), dataDir)

	snap, err := c.Chart(context.Background(), "7203", 2)
	require.NoError(t, err)
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, "2026-08-26", snap.Candles[0].Date)

	full, err := c.Chart(context.Background(), "7203", 0)
	require.NoError(t, err)
	assert.Len(t, full.Candles, 3, "windowing must not truncate the cached copy")
}
