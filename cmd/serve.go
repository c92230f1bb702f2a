package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scholar-sites/sitesync/internal/profilesync"
	"github.com/scholar-sites/sitesync/internal/resolver"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator server and background sync scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stopSignals()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sched := newScheduler(st)
		res := newResolver(st)

		sched.Start(cfg.Sync.IntervalHours)
		defer sched.Stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(sched, res),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// newRouter builds the operator HTTP surface: sync log reads, sync
// triggers, and a resolver debug endpoint.
func newRouter(sched *profilesync.Scheduler, res *resolver.Resolver) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/sync/log", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, sched.Log().Entries())
		})

		r.Post("/sync/run", func(w http.ResponseWriter, _ *http.Request) {
			go func() {
				sum, err := sched.RunScheduledSync(context.Background())
				if err != nil {
					zap.L().Error("triggered sync failed", zap.Error(err))
					return
				}
				zap.L().Info("triggered sync complete",
					zap.Int("synced", sum.Synced),
					zap.Int("skipped", sum.Skipped),
					zap.Int("errors", sum.Errors),
				)
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Post("/sync/tenants/{tenantID}", func(w http.ResponseWriter, req *http.Request) {
			tenantID := chi.URLParam(req, "tenantID")
			go func() {
				if err := sched.ForceSyncTenant(context.Background(), tenantID); err != nil {
					zap.L().Error("forced sync failed",
						zap.String("tenant_id", tenantID),
						zap.Error(err),
					)
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"tenant": tenantID,
			})
		})

		r.Get("/resolve", func(w http.ResponseWriter, req *http.Request) {
			host := req.URL.Query().Get("host")
			if host == "" {
				http.Error(w, `{"error":"host is required"}`, http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, res.Resolve(req.Context(), host))
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
