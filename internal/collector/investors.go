package collector

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/model"
)

// InvestorsCollector serves the weekly market-wide investor-type
// breakdown parsed from the exchange's XLSX workbook.
type InvestorsCollector struct {
	cache   *cache.Service
	dataDir string
}

// NewInvestorsCollector creates an investors collector.
func NewInvestorsCollector(svc *cache.Service, dataDir string) *InvestorsCollector {
	return &InvestorsCollector{cache: svc, dataDir: dataDir}
}

// Investors returns the breakdown for the given week ("latest" by
// convention when the sync job downloads under that name).
func (c *InvestorsCollector) Investors(ctx context.Context, week string) (*model.InvestorBreakdown, error) {
	if week == "" {
		week = "latest"
	}
	key := cache.Key{Path: investorsPath(c.dataDir, week), Kind: cache.KindJSON}

	payload, sig, hit, err := c.cache.Load(ctx, key)
	if err == nil && hit {
		if cached, decErr := model.DecodeInvestors(payload); decErr == nil {
			return cached, nil
		}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "investors: no workbook for week %s", week)
	}

	bd, err := fetch.ParseFlowWorkbook(key.Path, fetch.WorkbookOptions{})
	if err != nil {
		return nil, err
	}

	if encoded, encErr := model.EncodeInvestors(bd); encErr == nil {
		c.cache.Save(ctx, key, sig, encoded)
	}
	return bd, nil
}
