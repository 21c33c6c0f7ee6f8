package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mslinn/bm-console/pkg/config"
)

var version = "dev" // Set by -ldflags during build

var envOverrides = []struct {
	env string
	key string
}{
	{"BMC_DB", "database"},
	{"BMC_SERVER_URL", "server_url"},
	{"BMC_LISTEN", "listen"},
	{"BMC_POLL_INTERVAL", "poll_interval"},
	{"BMC_LOG_LEVEL", "log_level"},
	{"BMC_LOG_FILE", "log_file"},
}

func main() {
	var (
		showVersion bool
		showHelp    bool
		configPath  string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVar(&configPath, "config", "", "Path to config file (default: ~/.bm-console.yaml)")

	pflag.Parse()

	if showVersion {
		fmt.Printf("bmc-config version %s\n", version)
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: subcommand required\n\n")
		printUsage()
		os.Exit(1)
	}

	if configPath != "" {
		os.Setenv("BMC_CONFIG", configPath)
	}

	switch args[0] {
	case "init":
		handleInit(args[1:])
	case "set":
		handleSet(args[1:])
	case "get":
		handleGet(args[1:])
	case "show":
		handleShow()
	case "check":
		handleCheck()
	case "path":
		fmt.Println(config.GetConfigPath())
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func handleInit(args []string) {
	var force bool
	flags := pflag.NewFlagSet("init", pflag.ExitOnError)
	flags.BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	flags.Parse(args)

	configPath := config.GetConfigPath()
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(os.Stderr, "Error: config file already exists at %s\n", configPath)
		fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Created config file at %s\n", configPath)
	fmt.Println("\nDefault configuration:")
	printConfig(cfg)
	fmt.Println("\nEdit the file or use 'bmc-config set' to customize.")
}

func handleSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Error: 'set' requires KEY and VALUE arguments\n\n")
		fmt.Fprintf(os.Stderr, "Usage: bmc-config set KEY VALUE\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", strings.Join(config.Keys, ", "))
		os.Exit(1)
	}
	key, value := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try running 'bmc-config init' first\n")
		os.Exit(1)
	}

	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Save(config.GetConfigPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Set %s = %v\n", key, value)
}

func handleGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: 'get' requires KEY argument\n\n")
		fmt.Fprintf(os.Stderr, "Usage: bmc-config get KEY\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", strings.Join(config.Keys, ", "))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	value, err := cfg.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func handleShow() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration from: %s\n\n", config.GetConfigPath())
	printConfig(cfg)

	fmt.Println("\nEnvironment variable overrides:")
	for _, o := range envOverrides {
		if v := os.Getenv(o.env); v != "" {
			fmt.Printf("  %s=%s (overrides %s)\n", o.env, v, o.key)
		}
	}
}

func handleCheck() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Configuration is valid")
}

func printConfig(cfg *config.Config) {
	for _, key := range config.Keys {
		value, _ := cfg.Get(key)
		if key == "database" {
			value = cfg.GetDatabasePath()
		}
		fmt.Printf("  %-14s %s\n", key+":", value)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bmc-config [OPTIONS] SUBCOMMAND\n\n")
	fmt.Fprintf(os.Stderr, "Manage benchmark console configuration\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  init          Create default config file\n")
	fmt.Fprintf(os.Stderr, "  set KEY VAL   Set configuration value\n")
	fmt.Fprintf(os.Stderr, "  get KEY       Get configuration value\n")
	fmt.Fprintf(os.Stderr, "  show          Show all configuration\n")
	fmt.Fprintf(os.Stderr, "  check         Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  path          Show config file path\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("bmc-config - Manage benchmark console configuration\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Manages configuration for the bmc commands. Configuration is stored in\n")
	fmt.Printf("  ~/.bm-console.yaml by default and can be overridden with environment variables.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc-config [OPTIONS] SUBCOMMAND\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  init          Create default configuration file\n")
	fmt.Printf("  set KEY VAL   Set a configuration value\n")
	fmt.Printf("  get KEY       Get a configuration value\n")
	fmt.Printf("  show          Display all configuration values\n")
	fmt.Printf("  check         Validate all configuration values\n")
	fmt.Printf("  path          Show the config file path\n\n")

	fmt.Printf("CONFIGURATION KEYS:\n")
	fmt.Printf("  database        Path to the server's SQLite database\n")
	fmt.Printf("                  Default: ~/.bm-console/bm-console.db\n\n")
	fmt.Printf("  server_url      URL the CLI tools talk to\n")
	fmt.Printf("                  Default: http://localhost:9080\n\n")
	fmt.Printf("  listen          Address bmc-server listens on\n")
	fmt.Printf("                  Default: :9080\n\n")
	fmt.Printf("  poll_interval   How often 'bmc-run watch' polls\n")
	fmt.Printf("                  Default: 5s\n\n")
	fmt.Printf("  log_level       debug, info, warn or error\n")
	fmt.Printf("                  Default: info\n\n")
	fmt.Printf("  log_file        Rotated JSON log file; empty logs to the console only\n\n")

	fmt.Printf("ENVIRONMENT VARIABLES:\n")
	fmt.Printf("  BMC_CONFIG    Path to config file\n")
	for _, o := range envOverrides {
		fmt.Printf("  %-18s Override %s\n", o.env, o.key)
	}

	fmt.Printf("\nOPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Create default config\n")
	fmt.Printf("  bmc-config init\n\n")

	fmt.Printf("  # Point the CLI at a remote server\n")
	fmt.Printf("  bmc-config set server_url http://bench01:9080\n\n")

	fmt.Printf("  # Poll every second while watching runs\n")
	fmt.Printf("  bmc-config set poll_interval 1s\n\n")

	fmt.Printf("  # View all configuration\n")
	fmt.Printf("  bmc-config show\n")
}
