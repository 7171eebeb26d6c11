// Package collector implements the read-side operations: each collector
// resolves a source file, consults the tiered cache, recomputes on a
// miss, and writes the result back through.
package collector

import (
	"fmt"
	"path/filepath"
)

// Layout of the local data directory populated by sync:
//
//	<dataDir>/trends/trend_<ticker>.csv
//	<dataDir>/gainers/gainers_<date>.csv
//	<dataDir>/charts/candles_<ticker>.csv
//	<dataDir>/investors/investor_types_<week>.xlsx
func trendPath(dataDir, ticker string) string {
	return filepath.Join(dataDir, "trends", fmt.Sprintf("trend_%s.csv", ticker))
}

func gainersPath(dataDir, date string) string {
	return filepath.Join(dataDir, "gainers", fmt.Sprintf("gainers_%s.csv", date))
}

func candlesPath(dataDir, ticker string) string {
	return filepath.Join(dataDir, "charts", fmt.Sprintf("candles_%s.csv", ticker))
}

func investorsPath(dataDir, week string) string {
	return filepath.Join(dataDir, "investors", fmt.Sprintf("investor_types_%s.xlsx", week))
}
