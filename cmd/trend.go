package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketflow-cli/internal/collector"
	"github.com/sells-group/marketflow-cli/internal/model"
)

var (
	trendDate       string
	trendCrossCheck bool
	trendJSON       bool
)

var trendCmd = &cobra.Command{
	Use:   "trend <ticker>",
	Short: "Show the investor-trend window for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		trend, err := env.Trends.Trend(cmd.Context(), collector.TrendRequest{
			Ticker:     args[0],
			Date:       trendDate,
			CrossCheck: trendCrossCheck,
		})
		if err != nil {
			return err
		}

		if trendJSON {
			return json.NewEncoder(os.Stdout).Encode(trend)
		}
		printTrend(trend)
		return nil
	},
}

func printTrend(t *model.TrendSummary) {
	fmt.Printf("Ticker %s  (latest %s)\n", t.Ticker, t.LatestDate)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tBUY\tSELL\tNET")
	for _, d := range t.Days {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Date, yen(d.BuyValue), yen(d.SellValue), yen(d.NetValue))
	}
	fmt.Fprintf(w, "total\t%s\t%s\t%s\n", yen(t.BuyTotal), yen(t.SellTotal), yen(t.NetTotal))
	_ = w.Flush()

	if p := t.Provenance; p != nil {
		fmt.Printf("source: %s", p.SelectedSource)
		if len(p.AnomalyFlags) > 0 {
			fmt.Printf("  flags: %s", strings.Join(p.AnomalyFlags, ","))
		}
		fmt.Println()
	}
}

// yen renders a signed amount with thousands separators.
func yen(v int64) string {
	s := fmt.Sprintf("%d", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func init() {
	trendCmd.Flags().StringVar(&trendDate, "date", "", "end the window on this trading day (YYYY-MM-DD)")
	trendCmd.Flags().BoolVar(&trendCrossCheck, "cross-check", false, "consult a secondary source even when the primary looks clean")
	trendCmd.Flags().BoolVar(&trendJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(trendCmd)
}
