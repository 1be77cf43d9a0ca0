// Command api runs the staffgate HTTP service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"staffgate.org/internal/apps"
	"staffgate.org/internal/auth"
	"staffgate.org/internal/directory"
	"staffgate.org/internal/httpapi"
	"staffgate.org/internal/notify"
	"staffgate.org/internal/obs"
	"staffgate.org/internal/ratelimit"
	"staffgate.org/internal/token"
)

var (
	version = "dev"
	commit  = "none"
)

type config struct {
	listenAddr    string
	authDSN       string
	staffDSN      string
	appsFile      string
	privateKey    string
	webhookURL    string
	loginAttempts int
	loginWindow   time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		listenAddr:    envOr("STAFFGATE_LISTEN_ADDR", ":8080"),
		authDSN:       os.Getenv("STAFFGATE_DB_DSN"),
		staffDSN:      os.Getenv("STAFFGATE_STAFF_DB_DSN"),
		appsFile:      envOr("STAFFGATE_APPS_FILE", "apps.yaml"),
		privateKey:    os.Getenv("STAFFGATE_PRIVATE_KEY_FILE"),
		webhookURL:    os.Getenv("STAFFGATE_WEBHOOK_URL"),
		loginAttempts: 10,
		loginWindow:   5 * time.Minute,
	}
	if cfg.authDSN == "" {
		return cfg, errors.New("STAFFGATE_DB_DSN is required")
	}
	if cfg.staffDSN == "" {
		return cfg, errors.New("STAFFGATE_STAFF_DB_DSN is required")
	}
	if cfg.privateKey == "" {
		return cfg, errors.New("STAFFGATE_PRIVATE_KEY_FILE is required")
	}
	if v := os.Getenv("STAFFGATE_LOGIN_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid STAFFGATE_LOGIN_ATTEMPTS: %q", v)
		}
		cfg.loginAttempts = n
	}
	if v := os.Getenv("STAFFGATE_LOGIN_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid STAFFGATE_LOGIN_WINDOW: %q", v)
		}
		cfg.loginWindow = d
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := run(); err != nil {
		obs.LogError("fatal", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	authDB, err := openDB(cfg.authDSN)
	if err != nil {
		return fmt.Errorf("auth db: %w", err)
	}
	defer authDB.Close()

	staffDB, err := openDB(cfg.staffDSN)
	if err != nil {
		return fmt.Errorf("staff db: %w", err)
	}
	defer staffDB.Close()

	key, err := token.LoadPrivateKey(cfg.privateKey)
	if err != nil {
		return err
	}
	tokens, err := token.NewService(token.WithKeyPair(key))
	if err != nil {
		return err
	}

	registry, err := apps.NewFile(cfg.appsFile)
	if err != nil {
		return fmt.Errorf("app registry: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.webhookURL != "" {
		notifier = notify.NewWebhook(cfg.webhookURL)
	}

	svc := auth.NewService(
		auth.NewPostgresStore(authDB),
		directory.NewSQL(staffDB, 0),
		registry,
		tokens,
		auth.WithLimiter(ratelimit.New(cfg.loginAttempts, cfg.loginWindow)),
		auth.WithNotifier(notifier),
	)

	api := httpapi.New(svc, tokens,
		httpapi.WithBuildInfo(version, commit),
		httpapi.WithReadiness(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := authDB.PingContext(ctx); err != nil {
				return err
			}
			return staffDB.PingContext(ctx)
		}),
	)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go housekeeping(rootCtx, svc)

	errCh := make(chan error, 1)
	go func() {
		obs.LogRequest(map[string]any{
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
			"level":   "info",
			"msg":     "listening",
			"addr":    cfg.listenAddr,
			"version": version,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// housekeeping periodically reclaims expired codes and registration tokens.
func housekeeping(ctx context.Context, svc *auth.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			codes, tokens, err := svc.CleanupExpired(ctx)
			if err != nil {
				obs.LogError("housekeeping failed", map[string]any{"error": err.Error()})
				continue
			}
			if codes > 0 || tokens > 0 {
				obs.LogRequest(map[string]any{
					"ts":     time.Now().UTC().Format(time.RFC3339Nano),
					"level":  "info",
					"msg":    "housekeeping",
					"codes":  codes,
					"tokens": tokens,
				})
			}
		}
	}
}
