package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"gymhub/internal/adapters/blob"
	web "gymhub/internal/adapters/http"
	"gymhub/internal/adapters/metrics"
	"gymhub/internal/adapters/ratelimit"
	"gymhub/internal/adapters/realtime"
	"gymhub/internal/adapters/storage"
	accountStore "gymhub/internal/adapters/storage/account"
	broadcastStore "gymhub/internal/adapters/storage/broadcast"
	messageStore "gymhub/internal/adapters/storage/message"
	"gymhub/internal/application/orchestrators"
	"gymhub/internal/config"
	"gymhub/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logCloser := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	// WAL mode, foreign keys and busy timeout
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.MigrateDB(db, cfg.DBPath); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	timedDB := storage.NewTimedDB(db, metrics.Recorder{}, time.Duration(cfg.SlowQueryMs)*time.Millisecond)

	blobs, err := blob.NewDiskStore(cfg.AudioDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatalf("failed to open audio store: %v", err)
	}

	acctStore := accountStore.NewSQLiteStore(timedDB)
	bcastStore := broadcastStore.NewSQLiteStore(timedDB)
	stores := web.Stores{
		AccountStore:   acctStore,
		MessageStore:   messageStore.NewSQLiteStore(timedDB),
		BroadcastStore: bcastStore,
		Blobs:          blobs,
	}

	if cfg.AdminPassword != "" {
		seedDeps := orchestrators.CreateAccountDeps{AccountStore: acctStore}
		if err := orchestrators.ExecuteSeedAdmin(context.Background(), seedDeps, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("failed to seed admin: %v", err)
		}
	} else {
		slog.Warn("startup_event", "event", "admin_seed_skipped", "reason", "GYMHUB_ADMIN_PASSWORD not set")
	}

	hub := realtime.NewHub(realtime.HubOptions{})

	// Expired broadcasts are swept after the retention window
	sweeper := orchestrators.NewBroadcastSweeper(orchestrators.SweepBroadcastsDeps{
		BroadcastStore: bcastStore,
		Blobs:          blobs,
		Retention:      cfg.BroadcastRetention,
		Now:            time.Now,
	})
	sweeper.OnSwept = func(n int) { metrics.BroadcastsSwept.Add(float64(n)) }
	stopCh := make(chan struct{})
	sweeperDone := orchestrators.StartBackgroundWorker("broadcast_sweeper", sweeper, cfg.SweepInterval, stopCh)

	csrfKey := []byte(cfg.CSRFKey)
	if len(csrfKey) != 32 {
		// Development only: Validate rejects this in production.
		csrfKey = make([]byte, 32)
		if _, err := rand.Read(csrfKey); err != nil {
			log.Fatalf("failed to generate CSRF key: %v", err)
		}
		slog.Warn("startup_event", "event", "csrf_key_generated", "reason", "GYMHUB_CSRF_KEY not set")
	}

	var messageLimiter orchestrators.Limiter
	if cfg.MessageLimitEnabled() {
		messageLimiter = ratelimit.PerMinute(cfg.MessagesPerMinute)
	}

	handler := web.NewMux(web.Options{
		CSRFKey:            csrfKey,
		SecureCookies:      cfg.IsProduction(),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		SlowRequestMs:      cfg.SlowRequestMs,
	}, web.Deps{
		Stores:         stores,
		Hub:            hub,
		MessageLimiter: messageLimiter,
		DB:             db,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("startup_event", "event", "listening", "version", version, "addr", cfg.Addr, "env", cfg.Env, "schema", storage.LatestSchemaVersion())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server_failed", "error", err.Error())
		}
	case <-ctx.Done():
		slog.Info("shutdown_event", "event", "signal_received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown_failed", "error", err.Error())
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	close(stopCh)
	<-sweeperDone
	slog.Info("shutdown_event", "event", "stopped")
}
