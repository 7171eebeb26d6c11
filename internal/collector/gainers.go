package collector

import (
	"context"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/model"
)

// enrichConcurrency bounds the parallel per-ticker trend lookups used to
// attach net flows to the gainers table.
const enrichConcurrency = 4

// GainersCollector serves the ranked top-gainers table for a trading
// day.
type GainersCollector struct {
	cache   *cache.Service
	trends  *TrendCollector
	dataDir string
}

// NewGainersCollector creates a gainers collector. trends may be nil if
// flow enrichment is never requested.
func NewGainersCollector(svc *cache.Service, trends *TrendCollector, dataDir string) *GainersCollector {
	return &GainersCollector{cache: svc, trends: trends, dataDir: dataDir}
}

// GainersRequest identifies one gainers lookup.
type GainersRequest struct {
	Date string
	Top  int // 0 = all rows
	// WithFlows attaches each gainer's net trend flow, fetched
	// concurrently through the trend collector (and its cache).
	WithFlows bool
}

// Gainers returns the ranked table for the requested day. The base
// table is cached against the drop file; flow enrichment runs per
// request on top of it.
func (c *GainersCollector) Gainers(ctx context.Context, req GainersRequest) (*model.GainersTable, error) {
	table, err := c.baseTable(ctx, req.Date)
	if err != nil {
		return nil, err
	}

	if req.Top > 0 && len(table.Rows) > req.Top {
		table.Rows = table.Rows[:req.Top]
	}

	if req.WithFlows && c.trends != nil {
		c.enrich(ctx, table)
	}

	return table, nil
}

func (c *GainersCollector) baseTable(ctx context.Context, date string) (*model.GainersTable, error) {
	key := cache.Key{Path: gainersPath(c.dataDir, date), Kind: cache.KindJSON}

	payload, sig, hit, err := c.cache.Load(ctx, key)
	if err == nil && hit {
		if cached, decErr := model.DecodeGainers(payload); decErr == nil {
			return cached, nil
		}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gainers: no drop for %s", date)
	}

	f, err := os.Open(key.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "gainers: open drop for %s", date)
	}
	defer f.Close() //nolint:errcheck

	rows, err := fetch.ParseGainersCSV(f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ChangePct > rows[j].ChangePct })

	table := &model.GainersTable{Date: date, Rows: rows}
	if encoded, encErr := model.EncodeGainers(table); encErr == nil {
		c.cache.Save(ctx, key, sig, encoded)
	}
	return table, nil
}

// enrich attaches net flows. Per-row failures leave NetFlow nil rather
// than failing the table.
func (c *GainersCollector) enrich(ctx context.Context, table *model.GainersTable) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for i := range table.Rows {
		g.Go(func() error {
			row := &table.Rows[i]
			trend, err := c.trends.Trend(ctx, TrendRequest{Ticker: row.Ticker})
			if err != nil {
				zap.L().Debug("gainers: flow enrichment failed",
					zap.String("ticker", row.Ticker),
					zap.Error(err),
				)
				return nil
			}
			net := trend.NetTotal
			row.NetFlow = &net
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
}
