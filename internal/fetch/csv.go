package fetch

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"

	"github.com/sells-group/marketflow-cli/internal/model"
)

// NormalizeNumber folds full-width digits to ASCII and strips the
// thousands separators and currency marks the exchange drops carry.
// The JPX convention writes negatives with a leading triangle.
func NormalizeNumber(s string) string {
	s = width.Fold.String(strings.TrimSpace(s))
	s = strings.NewReplacer(",", "", "円", "", "¥", "", " ", "").Replace(s)
	if rest, ok := strings.CutPrefix(s, "▲"); ok {
		return "-" + rest
	}
	if rest, ok := strings.CutPrefix(s, "△"); ok {
		return "-" + rest
	}
	return s
}

func parseYen(s string) (int64, error) {
	n := NormalizeNumber(s)
	if n == "" || n == "-" {
		return 0, nil
	}
	v, err := strconv.ParseInt(n, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse yen value %q", s)
	}
	return v, nil
}

func parsePrice(s string) (float64, error) {
	n := NormalizeNumber(s)
	if n == "" || n == "-" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse price %q", s)
	}
	return v, nil
}

// headerIndex maps canonical column names to positions, folding width
// and case so hand-edited drops still parse.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(width.Fold.String(strings.TrimSpace(h)))
		idx[key] = i
	}
	return idx
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

func readAll(r io.Reader) (header []string, rows [][]string, err error) {
	reader := newCSVReader(r)
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, nil, eris.Wrap(readErr, "csv: read row")
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	if header == nil {
		return nil, nil, eris.New("csv: empty file")
	}
	return header, rows, nil
}

func requireColumns(idx map[string]int, names ...string) error {
	for _, name := range names {
		if _, ok := idx[name]; !ok {
			return eris.Errorf("csv: missing column %q", name)
		}
	}
	return nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// ParseTrendCSV parses a daily investor-flow drop. Expected columns:
// date, buy_value, sell_value. Rows come back in ascending date order
// regardless of file order.
func ParseTrendCSV(r io.Reader) ([]model.DayFlow, error) {
	header, rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	idx := headerIndex(header)
	if err := requireColumns(idx, "date", "buy_value", "sell_value"); err != nil {
		return nil, err
	}

	flows := make([]model.DayFlow, 0, len(rows))
	for _, row := range rows {
		buy, err := parseYen(field(row, idx["buy_value"]))
		if err != nil {
			return nil, err
		}
		sell, err := parseYen(field(row, idx["sell_value"]))
		if err != nil {
			return nil, err
		}
		flows = append(flows, model.DayFlow{
			Date:      width.Fold.String(strings.TrimSpace(field(row, idx["date"]))),
			BuyValue:  buy,
			SellValue: sell,
		})
	}

	sort.Slice(flows, func(i, j int) bool { return flows[i].Date < flows[j].Date })
	return flows, nil
}

// ParseGainersCSV parses a daily top-gainers drop. Expected columns:
// ticker, name, close, change_pct, turnover.
func ParseGainersCSV(r io.Reader) ([]model.GainerRow, error) {
	header, rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	idx := headerIndex(header)
	if err := requireColumns(idx, "ticker", "close", "change_pct"); err != nil {
		return nil, err
	}

	out := make([]model.GainerRow, 0, len(rows))
	for _, row := range rows {
		closePrice, err := parsePrice(field(row, idx["close"]))
		if err != nil {
			return nil, err
		}
		changePct, err := parsePrice(field(row, idx["change_pct"]))
		if err != nil {
			return nil, err
		}
		var turnover int64
		if ti, ok := idx["turnover"]; ok {
			if turnover, err = parseYen(field(row, ti)); err != nil {
				return nil, err
			}
		}
		gr := model.GainerRow{
			Ticker:    width.Fold.String(strings.TrimSpace(field(row, idx["ticker"]))),
			Close:     closePrice,
			ChangePct: changePct,
			Turnover:  turnover,
		}
		if ni, ok := idx["name"]; ok {
			gr.Name = strings.TrimSpace(field(row, ni))
		}
		out = append(out, gr)
	}
	return out, nil
}

// ParseCandlesCSV parses an OHLCV drop. Expected columns: date, open,
// high, low, close, volume. Rows come back in ascending date order.
func ParseCandlesCSV(r io.Reader) ([]model.Candle, error) {
	header, rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	idx := headerIndex(header)
	if err := requireColumns(idx, "date", "open", "high", "low", "close", "volume"); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		var c model.Candle
		c.Date = width.Fold.String(strings.TrimSpace(field(row, idx["date"])))
		if c.Open, err = parsePrice(field(row, idx["open"])); err != nil {
			return nil, err
		}
		if c.High, err = parsePrice(field(row, idx["high"])); err != nil {
			return nil, err
		}
		if c.Low, err = parsePrice(field(row, idx["low"])); err != nil {
			return nil, err
		}
		if c.Close, err = parsePrice(field(row, idx["close"])); err != nil {
			return nil, err
		}
		if c.Volume, err = parseYen(field(row, idx["volume"])); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date < candles[j].Date })
	return candles, nil
}

// ReadColumns reads only the named columns from a CSV file, in the
// order requested. Used for projection-keyed cache entries where two
// callers of the same file want different column subsets.
func ReadColumns(r io.Reader, cols []string) ([][]string, error) {
	header, rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	idx := headerIndex(header)

	positions := make([]int, len(cols))
	for i, col := range cols {
		pos, ok := idx[strings.ToLower(col)]
		if !ok {
			return nil, eris.Errorf("csv: missing column %q", col)
		}
		positions[i] = pos
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		selected := make([]string, len(positions))
		for i, pos := range positions {
			selected[i] = field(row, pos)
		}
		out = append(out, selected)
	}
	return out, nil
}
