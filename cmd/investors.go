package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	investorsWeek string
	investorsJSON bool
)

var investorsCmd = &cobra.Command{
	Use:   "investors",
	Short: "Show the weekly market-wide investor-type breakdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		bd, err := env.Investors.Investors(cmd.Context(), investorsWeek)
		if err != nil {
			return err
		}

		if investorsJSON {
			return json.NewEncoder(os.Stdout).Encode(bd)
		}

		fmt.Printf("Week ending %s\n", bd.WeekEnding)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tBUY\tSELL\tNET")
		for _, row := range bd.Rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				row.Category, yen(row.BuyValue), yen(row.SellValue), yen(row.NetValue))
		}
		return w.Flush()
	},
}

func init() {
	investorsCmd.Flags().StringVar(&investorsWeek, "week", "", "week-ending date (default latest)")
	investorsCmd.Flags().BoolVar(&investorsJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(investorsCmd)
}
