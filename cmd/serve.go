package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/model"
	"github.com/ownerfi/dealflow/internal/pipeline"
)

// matchScanLimit caps how many active properties one match request scans.
const matchScanLimit = 2000

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for run triggers and history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(ctx, env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newServeMux builds the API router. Run triggers execute asynchronously
// under runCtx so an in-flight run survives the request but not a shutdown.
func newServeMux(runCtx context.Context, env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/run", func(w http.ResponseWriter, req *http.Request) {
		if env.Locks.Held(pipeline.LockName) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "skipped", "reason": "run already in progress"})
			return
		}

		go func() {
			sum := env.Pipeline.Run(runCtx)
			zap.L().Info("webhook run finished",
				zap.String("run_id", sum.RunID),
				zap.String("status", string(sum.Status)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/api/match", func(w http.ResponseWriter, req *http.Request) {
		city := req.URL.Query().Get("city")
		state := req.URL.Query().Get("state")
		if city == "" || state == "" {
			http.Error(w, `{"error":"city and state are required"}`, http.StatusBadRequest)
			return
		}

		radius := 35.0
		if s := req.URL.Query().Get("radius"); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f <= 0 {
				http.Error(w, `{"error":"invalid radius"}`, http.StatusBadRequest)
				return
			}
			radius = f
		}

		props, err := env.Store.ListActive(req.Context(), matchScanLimit)
		if err != nil {
			zap.L().Error("match scan failed", zap.Error(err))
			http.Error(w, `{"error":"match scan failed"}`, http.StatusInternalServerError)
			return
		}

		filter := env.Matcher.Filter(city, state, radius)
		matched := make([]model.Property, 0)
		for i := range props {
			l := props[i].Listing
			// True distance when the listing has coordinates; city-name
			// membership only as the coordinate-free fallback.
			var ok bool
			if l.HasCoordinates() {
				ok = filter.MatchesPoint(l.Latitude, l.Longitude)
			} else {
				ok = filter.MatchesCity(l.City)
			}
			if ok {
				matched = append(matched, props[i])
			}
		}

		writeJSON(w, http.StatusOK, matched)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 20
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
				return
			}
			limit = n
		}

		runs, err := env.Store.ListRuns(req.Context(), limit)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			http.Error(w, `{"error":"list runs failed"}`, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
