package collector

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/model"
)

// ChartCollector serves OHLCV candle windows for rendering.
type ChartCollector struct {
	cache   *cache.Service
	dataDir string
}

// NewChartCollector creates a chart collector.
func NewChartCollector(svc *cache.Service, dataDir string) *ChartCollector {
	return &ChartCollector{cache: svc, dataDir: dataDir}
}

// Chart returns the trailing candle window for a ticker. days <= 0
// serves the whole file.
func (c *ChartCollector) Chart(ctx context.Context, ticker string, days int) (*model.ChartSnapshot, error) {
	key := cache.Key{Path: candlesPath(c.dataDir, ticker), Kind: cache.KindJSON}

	payload, sig, hit, err := c.cache.Load(ctx, key)
	if err == nil && hit {
		if cached, decErr := model.DecodeChart(payload); decErr == nil {
			return window(cached, days), nil
		}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "chart: no candle file for %s", ticker)
	}

	f, err := os.Open(key.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "chart: open candle file for %s", ticker)
	}
	defer f.Close() //nolint:errcheck

	candles, err := fetch.ParseCandlesCSV(f)
	if err != nil {
		return nil, err
	}

	snap := &model.ChartSnapshot{Ticker: ticker, Candles: candles}
	if encoded, encErr := model.EncodeChart(snap); encErr == nil {
		c.cache.Save(ctx, key, sig, encoded)
	}
	return window(snap, days), nil
}

// window trims to the trailing days without mutating the cached copy.
func window(snap *model.ChartSnapshot, days int) *model.ChartSnapshot {
	if days <= 0 || len(snap.Candles) <= days {
		return snap
	}
	trimmed := *snap
	trimmed.Candles = snap.Candles[len(snap.Candles)-days:]
	return &trimmed
}
