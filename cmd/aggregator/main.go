// procurepulse-aggregator-service
//
// Polls heterogeneous procurement platforms (RSS feeds, JSON APIs, HTML
// portals) on a recurring schedule, normalizes postings into the canonical
// opportunities table, deduplicates by identity key, and upserts
// idempotently. Exposes /health, /status, and an on-demand POST /run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"procurepulse/aggregator-service/internal/adapter"
	"procurepulse/aggregator-service/internal/config"
	"procurepulse/aggregator-service/internal/db"
	"procurepulse/aggregator-service/internal/normalize"
	"procurepulse/aggregator-service/internal/orchestrator"
	"procurepulse/aggregator-service/internal/scheduler"
	"procurepulse/aggregator-service/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	_ = godotenv.Load() // best effort; real deployments use the environment

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[aggregator] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[aggregator] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[aggregator] PostgreSQL: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("[aggregator] Schema: %v", err)
	}
	log.Println("[aggregator] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[aggregator] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[aggregator] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[aggregator] Redis connected ✓")

	// ── Pipeline ─────────────────────────────────────────────────────────────
	normalizer := normalize.New(cfg.Keywords, cfg.ClassificationCodes, cfg.States)
	sink := store.New(pool)
	filter := adapter.NewFilter(cfg.States)
	adapters := adapter.All(cfg.SAMAPIKey)

	runner := orchestrator.New(
		adapters, normalizer, sink, filter,
		adapter.DefaultPriority(),
		cfg.ParallelFetch,
		time.Duration(cfg.RunTimeoutMinutes)*time.Minute,
	)

	interval := time.Duration(cfg.ScrapeIntervalHours) * time.Hour
	status := orchestrator.NewStatus(rdb, interval)
	if err := status.Init(ctx); err != nil {
		log.Fatalf("[aggregator] Status init: %v", err)
	}

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(runner, status, cfg.ScrapeIntervalHours)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[aggregator] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/status", statusHandler(status))
	mux.HandleFunc("/run", runHandler(runner, status))

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// /run blocks until the report is ready, so the write deadline
		// must outlive the run-level bound.
		WriteTimeout: writeTimeoutFor(time.Duration(cfg.RunTimeoutMinutes) * time.Minute),
	}

	go func() {
		log.Printf("[aggregator] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[aggregator] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[aggregator] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[aggregator] Shutdown error: %v", err)
	}
	log.Println("[aggregator] Stopped.")
}

// writeTimeoutFor pads the run-level bound so a synchronous /run response
// is never cut off mid-run. A disabled bound (0) still gets a sane floor.
func writeTimeoutFor(runTimeout time.Duration) time.Duration {
	if runTimeout <= 0 {
		return 2 * time.Minute
	}
	return runTimeout + time.Minute
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "aggregator-service",
		"version": version,
	})
}

// statusHandler reports last/next run without triggering anything.
func statusHandler(status *orchestrator.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		st, err := status.Get(r.Context())
		if err != nil {
			log.Printf("[aggregator] status read error: %v", err)
			jsonError(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// runHandler triggers an on-demand run and returns the run report. It uses
// the same execution path as the cron trigger.
func runHandler(runner *orchestrator.Runner, status *orchestrator.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		log.Println("[aggregator] On-demand run triggered")
		report := runner.Run(r.Context())

		if err := status.Refresh(r.Context(), &report); err != nil {
			log.Printf("[aggregator] status refresh error: %v", err)
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[aggregator] response encode error: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
