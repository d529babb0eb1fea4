package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-pulse/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard snapshots over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})
		r.Get("/api/metrics", serveSnapshot(st, store.KindMetrics, "metrics.json"))
		r.Get("/api/calls", serveSnapshot(st, store.KindCalls, "bulk-call-analysis.json"))
		r.Get("/api/duration", serveSnapshot(st, store.KindDuration, "call-duration-insights.json"))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go shutdownOnDone(ctx, srv)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownOnDone drains the server once the signal context is canceled.
// A fresh timeout context lets in-flight requests finish; the canceled
// signal context would abort them immediately.
func shutdownOnDone(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server shutdown", zap.Error(err))
	}
}

// serveSnapshot serves the latest persisted snapshot of a kind, falling
// back to the JSON file the matching command wrote under the data dir.
func serveSnapshot(st store.Store, kind, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		row, err := st.GetSnapshot(req.Context(), kind)
		if err != nil {
			zap.L().Error("snapshot read failed", zap.String("kind", kind), zap.Error(err))
			http.Error(w, `{"error":"snapshot read failed"}`, http.StatusInternalServerError)
			return
		}
		var payload []byte
		if row != nil {
			payload = row.Payload
		} else {
			dir := cfg.Data.Dir
			if dir == "" {
				dir = "data"
			}
			payload, err = os.ReadFile(filepath.Join(dir, fileName))
			if err != nil {
				http.Error(w, `{"error":"snapshot not available"}`, http.StatusNotFound)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
