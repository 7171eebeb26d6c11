package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketflow-cli/internal/collector"
)

var (
	gainersDate  string
	gainersTop   int
	gainersFlows bool
	gainersJSON  bool
)

var gainersCmd = &cobra.Command{
	Use:   "gainers",
	Short: "Show the ranked top-gainers table for a trading day",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		date := gainersDate
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}

		table, err := env.Gainers.Gainers(cmd.Context(), collector.GainersRequest{
			Date:      date,
			Top:       gainersTop,
			WithFlows: gainersFlows,
		})
		if err != nil {
			return err
		}

		if gainersJSON {
			return json.NewEncoder(os.Stdout).Encode(table)
		}

		fmt.Printf("Top gainers %s\n", table.Date)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TICKER\tNAME\tCLOSE\tCHG%\tTURNOVER\tNET FLOW")
		for _, row := range table.Rows {
			flow := "-"
			if row.NetFlow != nil {
				flow = yen(*row.NetFlow)
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f\t%+.2f\t%s\t%s\n",
				row.Ticker, row.Name, row.Close, row.ChangePct, yen(row.Turnover), flow)
		}
		return w.Flush()
	},
}

func init() {
	gainersCmd.Flags().StringVar(&gainersDate, "date", "", "trading day (YYYY-MM-DD, default today)")
	gainersCmd.Flags().IntVar(&gainersTop, "top", 20, "number of rows (0 = all)")
	gainersCmd.Flags().BoolVar(&gainersFlows, "flows", false, "attach each gainer's net trend flow")
	gainersCmd.Flags().BoolVar(&gainersJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(gainersCmd)
}
