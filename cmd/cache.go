package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the payload cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache hit rates and per-namespace row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		// Namespace databases open lazily on first read; open the
		// known ones so the row counts below have something to report.
		warmKnownNamespaces(cmd.Context(), env)

		snap := env.Monitor.Snapshot()
		fmt.Printf("memory: %d entries, %d hits / %d misses\n",
			snap.Cache.MemoryEntries, snap.Cache.MemoryHits, snap.Cache.MemoryMisses)
		fmt.Printf("store:  %d hits / %d misses, %d schema inits\n",
			snap.Cache.Store.Hits, snap.Cache.Store.Misses, snap.Cache.Store.SchemaInits)

		counts := env.Cache.Store().RowCounts(cmd.Context())
		if len(counts) == 0 {
			fmt.Println("no cache databases open")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAMESPACE\tTABLE\tROWS")
		for dir, tables := range counts {
			for table, n := range tables {
				fmt.Fprintf(w, "%s\t%s\t%d\n", dir, table, n)
			}
		}
		return w.Flush()
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Trim every open cache database to its row budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		warmKnownNamespaces(cmd.Context(), env)
		env.Cache.Store().Prune(cmd.Context())
		fmt.Println("pruned")
		return nil
	},
}

func warmKnownNamespaces(ctx context.Context, env *appEnv) {
	for _, sub := range []string{"trends", "gainers", "charts", "investors"} {
		dir := filepath.Join(cfg.DataDir, sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		_ = env.Cache.Store().EnsureSchema(ctx, dir)
	}
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
