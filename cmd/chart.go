package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketflow-cli/internal/model"
)

var (
	chartDays int
	chartJSON bool
)

var chartCmd = &cobra.Command{
	Use:   "chart <ticker>",
	Short: "Show the OHLCV candle window for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Charts.Chart(cmd.Context(), args[0], chartDays)
		if err != nil {
			return err
		}

		if chartJSON {
			return json.NewEncoder(os.Stdout).Encode(snap)
		}
		printChart(snap)
		return nil
	},
}

func printChart(snap *model.ChartSnapshot) {
	fmt.Printf("Ticker %s\n", snap.Ticker)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
	for _, c := range snap.Candles {
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t%s\n",
			c.Date, c.Open, c.High, c.Low, c.Close, yen(c.Volume))
	}
	_ = w.Flush()
}

func init() {
	chartCmd.Flags().IntVar(&chartDays, "days", 30, "trailing days to show (0 = all)")
	chartCmd.Flags().BoolVar(&chartJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(chartCmd)
}
