// Package source implements the live secondary data sources consulted
// when the file-backed primary looks anomalous.
package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/model"
)

// ExchangeName is the provenance name of the exchange trend API.
const ExchangeName = "exchange_api"

// ExchangeSource queries the exchange's official trend endpoint. It can
// serve any past trading day, so it ranks first in the cascade.
type ExchangeSource struct {
	fetcher *fetch.HTTPFetcher
	baseURL string
}

// NewExchangeSource creates an exchange source rooted at baseURL.
func NewExchangeSource(fetcher *fetch.HTTPFetcher, baseURL string) *ExchangeSource {
	return &ExchangeSource{fetcher: fetcher, baseURL: baseURL}
}

func (s *ExchangeSource) Name() string             { return ExchangeName }
func (s *ExchangeSource) SupportsHistorical() bool { return true }

type exchangeDay struct {
	Date      string `json:"date"`
	BuyValue  int64  `json:"buy_value"`
	SellValue int64  `json:"sell_value"`
}

type exchangeTrendResponse struct {
	Ticker string        `json:"ticker"`
	Days   []exchangeDay `json:"days"`
}

// FetchTrend fetches the trend window for a ticker. An empty date means
// the latest window.
func (s *ExchangeSource) FetchTrend(ctx context.Context, ticker, date string) (*model.TrendSummary, error) {
	endpoint := fmt.Sprintf("%s/v1/trends/%s", s.baseURL, url.PathEscape(ticker))
	if date != "" {
		endpoint += "?date=" + url.QueryEscape(date)
	}

	var resp exchangeTrendResponse
	if err := s.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, eris.Wrap(err, "exchange_api: fetch trend")
	}
	if len(resp.Days) == 0 {
		return nil, eris.Errorf("exchange_api: no data for ticker %s", ticker)
	}

	t := &model.TrendSummary{Ticker: ticker}
	for _, d := range resp.Days {
		t.Days = append(t.Days, model.DayFlow{
			Date:      d.Date,
			BuyValue:  d.BuyValue,
			SellValue: d.SellValue,
		})
	}
	t.Finalize()
	return t, nil
}
