/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fee ledger dashboard server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and the environment, parse command-line flags
  2. Configure logging
  3. Open the row store (driver x layout)
  4. Build the Reconciler and the API handler with its optional services
  5. Configure HTTP router, start the reminder scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Local demo against memory
  ADMIN_PASSWORD=demo ./server

  # SQLite file, split layout
  STORE_DRIVER=sqlite STORE_LAYOUT=split ./server -db="./data/ledger.db"

  # Remote row service
  STORE_DRIVER=http IDENTITY_SCHEME=derived ROWS_API_URL=https://host/rows ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - ledger/reconciler.go: Write path
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/api"
	"github.com/dnyanpeeth/fee-ledger/backup"
	"github.com/dnyanpeeth/fee-ledger/config"
	"github.com/dnyanpeeth/fee-ledger/ledger"
	"github.com/dnyanpeeth/fee-ledger/notify"
	"github.com/dnyanpeeth/fee-ledger/rowstore"
	"github.com/dnyanpeeth/fee-ledger/rowstore/memory"
	"github.com/dnyanpeeth/fee-ledger/session"
	"github.com/dnyanpeeth/fee-ledger/store/httprows"
	"github.com/dnyanpeeth/fee-ledger/store/redisstore"
	"github.com/dnyanpeeth/fee-ledger/store/sqlite"
	"github.com/dnyanpeeth/fee-ledger/store/xlsx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.SQLitePath = *port, *dbPath

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}
	logger := newLogger(cfg)

	// Initialize store
	sheets, err := openSheets(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open row store")
	}
	defer sheets.Close()

	layout, _ := ledger.ParseLayout(cfg.StoreLayout)
	rec, err := ledger.NewReconciler(ledger.Config{
		Students: sheets.students,
		Payments: sheets.payments,
		Layout:   layout,
		Scheme:   cfg.IdentityScheme,
		Logger:   logger.WithField("component", "ledger"),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build reconciler")
	}

	// Initialize handler
	handler := api.NewHandler(rec, logger)
	handler.Notifier = notify.New(cfg.Fast2SMSAPIKey, logger.WithField("component", "sms"))
	handler.CronSecret = cfg.CronSecret

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}
	handler.Sessions = session.NewIssuer(secret, cfg.SessionMaxAge)
	if cfg.AdminPassword != "" {
		creds, err := session.NewCredentials(cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			logger.WithError(err).Fatal("Failed to set up admin login")
		}
		handler.Credentials = creds
	} else {
		logger.Warn("ADMIN_PASSWORD not set; login is disabled")
	}

	if cfg.S3Bucket != "" {
		uploader, err := backup.NewFromEnv(context.Background(), cfg.AWSRegion, cfg.S3Bucket, logger.WithField("component", "backup"))
		if err != nil {
			logger.WithError(err).Warn("Backups disabled: failed to load AWS config")
		} else {
			handler.Backups = uploader
		}
	}

	// Create router
	opts := api.RouterOptions{CORSOrigins: cfg.CORSOrigins}
	if cfg.StoreDriver != config.DriverHTTP && cfg.RowsAPIToken != "" {
		opts.Rows = &api.RowsHandler{
			Sheets:       sheets.byName,
			DefaultSheet: cfg.StudentSheet,
			Log:          logger.WithField("component", "rows"),
		}
		opts.RowsToken = cfg.RowsAPIToken
	}
	router := api.NewRouter(handler, opts)

	scheduler := api.NewReminderScheduler(handler, cfg.ReminderSchedule)
	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start reminder scheduler")
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.StoreDriver,
			"layout": layout,
			"scheme": rec.Scheme(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("log_level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// =============================================================================
// STORE WIRING
// =============================================================================

// storeSheets is the opened store: the adapters the Reconciler uses, the
// same adapters by sheet name for the /rows surface, and what to close.
type storeSheets struct {
	students rowstore.Adapter
	payments rowstore.Adapter
	byName   map[string]rowstore.Adapter
	closer   io.Closer
}

func (s *storeSheets) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func openSheets(ctx context.Context, cfg *config.Config) (*storeSheets, error) {
	names := []string{cfg.StudentSheet}
	if cfg.StoreLayout == string(ledger.LayoutSplit) {
		names = append(names, cfg.PaymentSheet)
	}

	out := &storeSheets{byName: make(map[string]rowstore.Adapter, len(names))}
	var open func(name string) (rowstore.Adapter, error)

	switch cfg.StoreDriver {
	case config.DriverMemory:
		open = func(name string) (rowstore.Adapter, error) { return memory.New(name), nil }
	case config.DriverSQLite:
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		out.closer = db
		open = func(name string) (rowstore.Adapter, error) { return db.Sheet(name), nil }
	case config.DriverRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		out.closer = client
		open = func(name string) (rowstore.Adapter, error) {
			return redisstore.New(client, cfg.RedisPrefix, name), nil
		}
	case config.DriverXLSX:
		wb, err := xlsx.Open(cfg.XLSXPath)
		if err != nil {
			return nil, err
		}
		out.closer = wb
		open = func(name string) (rowstore.Adapter, error) { return wb.Sheet(name) }
	case config.DriverHTTP:
		open = func(name string) (rowstore.Adapter, error) {
			c := httprows.New(cfg.RowsAPIURL, name)
			c.Token = cfg.RowsAPIToken
			return c, nil
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	for _, name := range names {
		a, err := open(name)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("open sheet %s: %w", name, err)
		}
		out.byName[name] = a
	}
	out.students = out.byName[cfg.StudentSheet]
	if len(names) > 1 {
		out.payments = out.byName[cfg.PaymentSheet]
	}
	return out, nil
}
