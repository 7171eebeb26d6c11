// Package model defines the typed, versioned payload schemas that cross
// the cache serialization boundary.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Schema versions per payload kind. Bump when a field changes meaning;
// decoding a payload with an unknown version is a cache miss, never an
// error surfaced to the caller.
const (
	TrendSchemaVersion     = 1
	GainersSchemaVersion   = 1
	ChartSchemaVersion     = 1
	InvestorsSchemaVersion = 1
)

// ErrSchemaVersion indicates a cached payload was written by a different
// schema version and must be recomputed.
var ErrSchemaVersion = eris.New("model: unsupported payload schema version")

// DayFlow is one day of investor-trend detail for a ticker. Values are
// in yen; NetValue = BuyValue - SellValue.
type DayFlow struct {
	Date      string `json:"date"` // YYYY-MM-DD
	BuyValue  int64  `json:"buy_value"`
	SellValue int64  `json:"sell_value"`
	NetValue  int64  `json:"net_value"`
}

// TrendSummary is the N-day investor-trend aggregate for a ticker.
type TrendSummary struct {
	SchemaVersion int         `json:"schema_version"`
	Ticker        string      `json:"ticker"`
	Days          []DayFlow   `json:"days"`
	BuyTotal      int64       `json:"buy_total"`
	SellTotal     int64       `json:"sell_total"`
	NetTotal      int64       `json:"net_total"`
	LatestDate    string      `json:"latest_date"`
	Provenance    *Provenance `json:"provenance,omitempty"`
}

// Finalize recomputes totals and LatestDate from Days. Days are expected
// in ascending date order.
func (t *TrendSummary) Finalize() {
	t.SchemaVersion = TrendSchemaVersion
	t.BuyTotal, t.SellTotal, t.NetTotal = 0, 0, 0
	t.LatestDate = ""
	for i := range t.Days {
		d := &t.Days[i]
		d.NetValue = d.BuyValue - d.SellValue
		t.BuyTotal += d.BuyValue
		t.SellTotal += d.SellValue
		t.NetTotal += d.NetValue
		if d.Date > t.LatestDate {
			t.LatestDate = d.Date
		}
	}
}

// GainerRow is one row of the daily top-gainers table.
type GainerRow struct {
	Ticker    string  `json:"ticker"`
	Name      string  `json:"name"`
	Close     float64 `json:"close"`
	ChangePct float64 `json:"change_pct"`
	Turnover  int64   `json:"turnover"`
	NetFlow   *int64  `json:"net_flow,omitempty"` // filled in by the gainers collector
}

// GainersTable is the ranked top-gainers snapshot for a trading day.
type GainersTable struct {
	SchemaVersion int         `json:"schema_version"`
	Date          string      `json:"date"`
	Rows          []GainerRow `json:"rows"`
	Provenance    *Provenance `json:"provenance,omitempty"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// ChartSnapshot is the candle window used to render a ticker chart.
type ChartSnapshot struct {
	SchemaVersion int         `json:"schema_version"`
	Ticker        string      `json:"ticker"`
	Candles       []Candle    `json:"candles"`
	Provenance    *Provenance `json:"provenance,omitempty"`
}

// InvestorTypeFlow is one investor-category row from the weekly
// investor-type workbook (proprietary, foreign, individual, ...).
type InvestorTypeFlow struct {
	Category  string `json:"category"`
	BuyValue  int64  `json:"buy_value"`
	SellValue int64  `json:"sell_value"`
	NetValue  int64  `json:"net_value"`
}

// InvestorBreakdown is the weekly market-wide investor-type breakdown.
type InvestorBreakdown struct {
	SchemaVersion int                `json:"schema_version"`
	WeekEnding    string             `json:"week_ending"`
	Rows          []InvestorTypeFlow `json:"rows"`
	Provenance    *Provenance        `json:"provenance,omitempty"`
}

// Provenance records how a payload was produced: which source won, what
// anomalies were seen, and which sources were consulted. Persisting it
// with the payload lets repeat reads skip re-detection.
type Provenance struct {
	RequestID        string    `json:"request_id"`
	SelectedSource   string    `json:"selected_source"`
	AnomalyFlags     []string  `json:"anomaly_flags,omitempty"`
	ConsultedSources []string  `json:"consulted_sources,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// EncodeTrend serializes a TrendSummary for the persistence boundary.
func EncodeTrend(t *TrendSummary) ([]byte, error) {
	t.SchemaVersion = TrendSchemaVersion
	b, err := json.Marshal(t)
	return b, eris.Wrap(err, "model: encode trend")
}

// DecodeTrend deserializes a cached TrendSummary, rejecting unknown
// schema versions with ErrSchemaVersion.
func DecodeTrend(data []byte) (*TrendSummary, error) {
	var t TrendSummary
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "model: decode trend")
	}
	if t.SchemaVersion != TrendSchemaVersion {
		return nil, eris.Wrapf(ErrSchemaVersion, "trend version %d", t.SchemaVersion)
	}
	return &t, nil
}

// EncodeGainers serializes a GainersTable.
func EncodeGainers(g *GainersTable) ([]byte, error) {
	g.SchemaVersion = GainersSchemaVersion
	b, err := json.Marshal(g)
	return b, eris.Wrap(err, "model: encode gainers")
}

// DecodeGainers deserializes a cached GainersTable.
func DecodeGainers(data []byte) (*GainersTable, error) {
	var g GainersTable
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "model: decode gainers")
	}
	if g.SchemaVersion != GainersSchemaVersion {
		return nil, eris.Wrapf(ErrSchemaVersion, "gainers version %d", g.SchemaVersion)
	}
	return &g, nil
}

// EncodeChart serializes a ChartSnapshot.
func EncodeChart(c *ChartSnapshot) ([]byte, error) {
	c.SchemaVersion = ChartSchemaVersion
	b, err := json.Marshal(c)
	return b, eris.Wrap(err, "model: encode chart")
}

// DecodeChart deserializes a cached ChartSnapshot.
func DecodeChart(data []byte) (*ChartSnapshot, error) {
	var c ChartSnapshot
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "model: decode chart")
	}
	if c.SchemaVersion != ChartSchemaVersion {
		return nil, eris.Wrapf(ErrSchemaVersion, "chart version %d", c.SchemaVersion)
	}
	return &c, nil
}

// EncodeInvestors serializes an InvestorBreakdown.
func EncodeInvestors(b *InvestorBreakdown) ([]byte, error) {
	b.SchemaVersion = InvestorsSchemaVersion
	data, err := json.Marshal(b)
	return data, eris.Wrap(err, "model: encode investors")
}

// DecodeInvestors deserializes a cached InvestorBreakdown.
func DecodeInvestors(data []byte) (*InvestorBreakdown, error) {
	var b InvestorBreakdown
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrap(err, "model: decode investors")
	}
	if b.SchemaVersion != InvestorsSchemaVersion {
		return nil, eris.Wrapf(ErrSchemaVersion, "investors version %d", b.SchemaVersion)
	}
	return &b, nil
}
