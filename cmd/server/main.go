/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Build the structured logger
  3. Initialize SQLite store and seed default policies on first boot
  4. Create the leave service, scheduler, and API handler
  5. Start the HTTP server and the scheduler
  6. On SIGINT/SIGTERM: drain requests, stop the scheduler, close the DB

CONFIGURATION:
  Flags override environment variables; environment variables may come
  from a local .env file.

    -port / PORT            HTTP server port        (default: 8080)
    -db / DATABASE_PATH     SQLite database path    (default: leave.db)
    -tick / SCHEDULER_TICK  Scheduler tick interval (default: 1h)
    -dev                    Development logger (human-readable output)

EXAMPLES:
  # Run with file database
  ./server -db=./data/leave.db

  # Run with in-memory database and a fast scheduler tick
  ./server -db=":memory:" -tick=1m

SEE ALSO:
  - api/server.go: Router configuration
  - scheduler/runner.go: Background job execution
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/attendly/leave-engine/api"
	"github.com/attendly/leave-engine/leave"
	"github.com/attendly/leave-engine/notify"
	"github.com/attendly/leave-engine/scheduler"
	"github.com/attendly/leave-engine/store/sqlite"
)

func main() {
	_ = godotenv.Load() // optional, flags win

	var (
		port   = flag.String("port", envOr("PORT", "8080"), "HTTP server port")
		dbPath = flag.String("db", envOr("DATABASE_PATH", "leave.db"), "SQLite database path (use :memory: for in-memory)")
		tick   = flag.Duration("tick", envDurationOr("SCHEDULER_TICK", time.Hour), "scheduler tick interval")
		dev    = flag.Bool("dev", false, "development logger output")
	)
	flag.Parse()

	log, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()
	log.Info("store ready", zap.String("path", *dbPath))

	clock := leave.SystemClock()
	if err := seedPolicies(context.Background(), store, clock); err != nil {
		log.Fatal("failed to seed policies", zap.Error(err))
	}

	dispatcher := notify.NewLogDispatcher(log)
	svc := leave.NewService(store, clock, dispatcher, log)

	runner := scheduler.NewRunner(store, clock, log, *tick,
		scheduler.NewAccrualJob(store, dispatcher, log),
		scheduler.NewAutoTransitionJob(svc, log),
	)
	runner.Start()
	defer runner.Stop()

	handler := api.NewHandler(svc, store, runner, log)
	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}

// seedPolicies installs the default policy set on a fresh database. A
// database that already carries any policy row is left untouched.
func seedPolicies(ctx context.Context, store *sqlite.Store, clock leave.Clock) error {
	existing, err := store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, p := range leave.DefaultPolicies(leave.StartOfYear(clock.Today().Year())) {
		p.ID = uuid.NewString()
		if err := store.SavePolicy(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
