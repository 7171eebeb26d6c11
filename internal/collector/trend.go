package collector

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/model"
	"github.com/sells-group/marketflow-cli/internal/reconcile"
	"github.com/sells-group/marketflow-cli/internal/signature"
)

// trendProjection is the column subset the trend payload derives from.
// The nightly drops carry more columns than we read; keying the cache by
// projection lets other readers of the same file cache independently.
var trendProjection = []string{"date", "buy_value", "sell_value"}

// TrendCollector serves the N-day investor-trend window for a ticker.
type TrendCollector struct {
	cache   *cache.Service
	engine  *reconcile.Engine
	dataDir string
	window  int
}

// NewTrendCollector creates a trend collector. window is the number of
// trailing days served.
func NewTrendCollector(svc *cache.Service, engine *reconcile.Engine, dataDir string, window int) *TrendCollector {
	if window <= 0 {
		window = reconcile.DefaultConfig().WindowDays
	}
	return &TrendCollector{cache: svc, engine: engine, dataDir: dataDir, window: window}
}

// TrendRequest identifies one trend lookup.
type TrendRequest struct {
	Ticker string
	Date   string // empty = latest window
	// CrossCheck forces a secondary consult even for a clean primary.
	CrossCheck bool
}

// Trend returns the trend window for a ticker, reconciled across
// sources. Cache problems degrade to recomputation, never to an error;
// an error means no source could produce data at all.
func (c *TrendCollector) Trend(ctx context.Context, req TrendRequest) (*model.TrendSummary, error) {
	key := cache.Key{
		Path:       trendPath(c.dataDir, req.Ticker),
		Kind:       cache.KindCSV,
		Projection: trendProjection,
	}

	// Only the latest window is cached; a historical date changes the
	// derived payload without changing the file, so it bypasses the
	// cache entirely.
	cacheable := req.Date == ""

	var payload []byte
	var sig signature.FileSignature
	var hit bool
	var err error
	if cacheable {
		payload, sig, hit, err = c.cache.Load(ctx, key)
	}
	if err == nil && hit {
		cached, decErr := model.DecodeTrend(payload)
		if decErr == nil {
			return cached, nil
		}
		// Stale schema or corrupt row: treat as a miss.
		zap.L().Debug("trend: cached payload unusable, recomputing",
			zap.String("ticker", req.Ticker),
			zap.Error(decErr),
		)
	}
	if err != nil {
		// Missing or unreadable primary file: caching is off for this
		// request and reconciliation starts from a nil primary.
		zap.L().Debug("trend: primary file unavailable",
			zap.String("path", key.Path),
			zap.Error(err),
		)
	}

	primary := c.readPrimary(key.Path, req)

	res := c.engine.Reconcile(ctx, reconcile.Request{
		Ticker:     req.Ticker,
		Date:       req.Date,
		Now:        time.Now(),
		CrossCheck: req.CrossCheck,
	}, primary)
	if res.Payload == nil {
		return nil, eris.Errorf("trend: no usable source for ticker %s", req.Ticker)
	}

	out := res.Payload
	out.Provenance = res.Provenance()

	if cacheable {
		if encoded, encErr := model.EncodeTrend(out); encErr == nil {
			c.cache.Save(ctx, key, sig, encoded)
		} else {
			zap.L().Warn("trend: encode for cache failed", zap.Error(encErr))
		}
	}

	return out, nil
}

// readPrimary parses the local drop into a trend window. Any failure
// yields nil: the primary is then "missing" and reconciliation takes
// over.
func (c *TrendCollector) readPrimary(path string, req TrendRequest) *model.TrendSummary {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close() //nolint:errcheck

	flows, err := fetch.ParseTrendCSV(f)
	if err != nil {
		zap.L().Warn("trend: primary drop unparseable",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}

	// A historical request serves the window ending on that date.
	if req.Date != "" {
		trimmed := flows[:0]
		for _, d := range flows {
			if d.Date <= req.Date {
				trimmed = append(trimmed, d)
			}
		}
		flows = trimmed
	}
	if len(flows) == 0 {
		return nil
	}
	if len(flows) > c.window {
		flows = flows[len(flows)-c.window:]
	}

	t := &model.TrendSummary{Ticker: req.Ticker, Days: flows}
	t.Finalize()
	return t
}
