package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/model"
)

// VendorName is the provenance name of the commercial quote vendor.
const VendorName = "vendor_api"

// VendorSource queries the commercial vendor's flow endpoint. The
// vendor only exposes the current window, so historical requests are
// refused and the cascade skips it for them.
type VendorSource struct {
	fetcher *fetch.HTTPFetcher
	baseURL string
	apiKey  string
}

// NewVendorSource creates a vendor source rooted at baseURL.
func NewVendorSource(fetcher *fetch.HTTPFetcher, baseURL, apiKey string) *VendorSource {
	return &VendorSource{fetcher: fetcher, baseURL: baseURL, apiKey: apiKey}
}

func (s *VendorSource) Name() string             { return VendorName }
func (s *VendorSource) SupportsHistorical() bool { return false }

// The vendor's wire format differs from ours: short field names and a
// symbol field instead of ticker.
type vendorFlow struct {
	D string `json:"d"`
	B int64  `json:"b"`
	S int64  `json:"s"`
}

type vendorTrendResponse struct {
	Symbol string       `json:"symbol"`
	Flows  []vendorFlow `json:"flows"`
}

func (s *VendorSource) FetchTrend(ctx context.Context, ticker, date string) (*model.TrendSummary, error) {
	if date != "" {
		return nil, eris.New("vendor_api: historical dates not supported")
	}

	endpoint := fmt.Sprintf("%s/flows?symbol=%s&apikey=%s",
		s.baseURL, url.QueryEscape(ticker), url.QueryEscape(s.apiKey))

	var resp vendorTrendResponse
	if err := s.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, eris.Wrap(err, "vendor_api: fetch flows")
	}
	if len(resp.Flows) == 0 {
		return nil, eris.Errorf("vendor_api: no data for symbol %s", ticker)
	}

	t := &model.TrendSummary{Ticker: ticker}
	for _, f := range resp.Flows {
		t.Days = append(t.Days, model.DayFlow{
			Date:      f.D,
			BuyValue:  f.B,
			SellValue: f.S,
		})
	}
	t.Finalize()
	return t, nil
}
