package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/collector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve trend, gainers, chart, and investor data over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, env.Monitor.Snapshot())
		})

		mux.HandleFunc("GET /v1/trend/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			trend, err := env.Trends.Trend(r.Context(), collector.TrendRequest{
				Ticker:     r.PathValue("ticker"),
				Date:       r.URL.Query().Get("date"),
				CrossCheck: r.URL.Query().Get("cross_check") == "true",
			})
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, trend)
		})

		mux.HandleFunc("GET /v1/gainers", func(w http.ResponseWriter, r *http.Request) {
			date := r.URL.Query().Get("date")
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			top, _ := strconv.Atoi(r.URL.Query().Get("top"))
			table, err := env.Gainers.Gainers(r.Context(), collector.GainersRequest{
				Date:      date,
				Top:       top,
				WithFlows: r.URL.Query().Get("flows") == "true",
			})
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, table)
		})

		mux.HandleFunc("GET /v1/chart/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			days, _ := strconv.Atoi(r.URL.Query().Get("days"))
			snap, err := env.Charts.Chart(r.Context(), r.PathValue("ticker"), days)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		mux.HandleFunc("GET /v1/investors", func(w http.ResponseWriter, r *http.Request) {
			bd, err := env.Investors.Investors(r.Context(), r.URL.Query().Get("week"))
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, bd)
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("serving", zap.Int("port", cfg.Server.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		zap.L().Info("shut down cleanly")
		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
