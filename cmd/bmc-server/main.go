package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mslinn/bm-console/pkg/api"
	"github.com/mslinn/bm-console/pkg/config"
	"github.com/mslinn/bm-console/pkg/database"
	"github.com/mslinn/bm-console/pkg/logging"
	"github.com/mslinn/bm-console/pkg/model"
)

var version = "dev" // Set by -ldflags during build

func main() {
	var (
		showVersion bool
		showHelp    bool
		listen      string
		dbPath      string
		logLevel    string
		logFile     string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVarP(&listen, "listen", "l", "", "Address to listen on (overrides config)")
	pflag.StringVar(&dbPath, "db", "", "Database path (overrides config)")
	pflag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	pflag.StringVar(&logFile, "log-file", "", "Rotated JSON log file (overrides config)")

	pflag.Parse()

	if showVersion {
		fmt.Printf("bmc-server version %s\n", version)
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	for key, value := range map[string]string{"listen": listen, "database": dbPath, "log_level": logLevel, "log_file": logFile} {
		if value == "" {
			continue
		}
		if err := cfg.Set(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.ValidateDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&logging.Config{Level: cfg.LogLevel, Filename: cfg.GetLogFile()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Open(cfg.GetDatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting bmc-server",
		zap.String("version", version),
		zap.String("database", cfg.GetDatabasePath()),
		zap.String("listen", cfg.Listen),
	)
	server := api.NewServer(db, logger, version)
	if err := server.ListenAndServe(ctx, cfg.Listen); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func printHelp() {
	fmt.Printf("bmc-server - Serve tests and test runs over REST\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Stores tests, test runs, their properties and run logs in SQLite and\n")
	fmt.Printf("  serves them under %s. Property values are validated and versioned;\n", model.BasePath)
	fmt.Printf("  a write carrying a stale version is refused with 409 Conflict.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc-server [OPTIONS]\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Serve with the configured database\n")
	fmt.Printf("  bmc-server\n\n")

	fmt.Printf("  # Serve a scratch database on another port with debug logs\n")
	fmt.Printf("  bmc-server --db /tmp/bmc.db --listen :9090 --log-level debug\n")
}
