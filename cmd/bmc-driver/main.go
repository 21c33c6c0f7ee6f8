package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/client"
	"github.com/mslinn/bm-console/pkg/config"
	"github.com/mslinn/bm-console/pkg/logging"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/poller"
	"github.com/mslinn/bm-console/pkg/property"
)

var version = "dev" // Set by -ldflags during build

func main() {
	var (
		showVersion bool
		showHelp    bool
		debug       bool
		serverURL   string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	pflag.StringVarP(&serverURL, "server", "s", "", "Server URL (default from config)")

	// Stop parsing at first non-flag argument (the subcommand)
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if showVersion {
		fmt.Printf("bmc-driver version %s\n", version)
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 || showHelp {
		printHelp()
		os.Exit(0)
	}

	level := "info"
	if debug {
		level = "debug"
	}
	logger, err := logging.NewSugared(&logging.Config{Level: level, NoCaller: true})
	if err != nil {
		fatal("%v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	c := client.New(serverURL)

	switch args[0] {
	case "register":
		handleRegister(c, args[1:], logger)
	case "list":
		handleList(c, args[1:])
	case "defs":
		handleDefs(c, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// handleRegister announces this host as a driver and keeps the
// registration alive until interrupted
func handleRegister(c *client.Client, args []string, logger *zap.SugaredLogger) {
	fs := pflag.NewFlagSet("register", pflag.ExitOnError)
	release := fs.StringP("release", "r", "", "Release served by this driver (required)")
	schema := fs.Int("schema", 0, "Schema version served by this driver")
	definitions := fs.StringP("definitions", "f", "", "Property definition file to register for the release and schema")
	description := fs.String("description", "", "Description of the registered definition")
	ttl := fs.Duration("ttl", time.Minute, "How long the registration lasts without a refresh")
	fs.Parse(args)
	if *release == "" {
		fatal("--release is required")
	}
	if *ttl < 2*time.Second {
		fatal("--ttl must be at least 2s")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *definitions != "" {
		registerDefinitions(ctx, c, *release, *schema, *definitions, *description, logger)
	}

	hostname, _ := os.Hostname()
	d, err := c.RegisterDriver(ctx, &model.DriverRequest{
		Release:  *release,
		Schema:   *schema,
		Hostname: hostname,
		TTL:      int(*ttl / time.Second),
	})
	if err != nil {
		fatal("failed to register driver: %v", err)
	}
	logger.Infow("Driver registered", "id", d.ID, "release", d.Release, "schema", d.Schema, "expires", d.Expires)

	// refresh at half the ttl so one missed beat does not drop the driver
	p := poller.New(*ttl/2, logger)
	<-p.Start(ctx, poller.ConcernDriver, poller.DriverHeartbeat(c, d.ID, *ttl))

	unregisterCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.UnregisterDriver(unregisterCtx, d.ID); err != nil {
		logger.Warnw("Failed to unregister driver", "id", d.ID, "error", err)
		return
	}
	logger.Infow("Driver unregistered", "id", d.ID)
}

// registerDefinitions loads a definition file and registers it. A
// definition already registered for the release and schema is kept.
func registerDefinitions(ctx context.Context, c *client.Client, release string, schema int, path, description string, logger *zap.SugaredLogger) {
	defs, err := property.NewLoader(logger).Load(path)
	if err != nil {
		fatal("%v", err)
	}
	_, err = c.WriteTestDef(ctx, &model.TestDefRequest{
		Release:     release,
		Schema:      schema,
		Description: description,
		Properties:  defs,
	})
	switch {
	case errors.Is(err, apierr.ErrAlreadyExists):
		logger.Infow("Test definition already registered", "release", release, "schema", schema)
	case err != nil:
		fatal("failed to register test definition: %v", err)
	default:
		logger.Infow("Test definition registered", "release", release, "schema", schema, "properties", len(defs))
	}
}

func handleList(c *client.Client, args []string) {
	fs := pflag.NewFlagSet("list", pflag.ExitOnError)
	release := fs.StringP("release", "r", "", "Only drivers of this release")
	schema := fs.Int("schema", -1, "Only drivers of this schema version")
	all := fs.BoolP("all", "a", false, "Include expired registrations")
	fs.Parse(args)

	f := model.DriverFilter{Release: *release, ActiveOnly: !*all}
	if *schema >= 0 {
		f.Schema = schema
	}
	drivers, err := c.ListDrivers(context.Background(), f)
	if err != nil {
		fatal("failed to list drivers: %v", err)
	}
	if len(drivers) == 0 {
		fmt.Println("No drivers registered")
		return
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Release\tSchema\tHost\tAddress\tRegistered\tStatus")
	fmt.Fprintln(w, "-------\t------\t----\t-------\t----------\t------")
	for _, d := range drivers {
		status := "active"
		if !d.Active(now) {
			status = "expired"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			d.Release, d.Schema, d.Hostname, d.IPAddress, d.Registered.Local().Format(time.DateTime), status)
	}
	w.Flush()
}

func handleDefs(c *client.Client, args []string) {
	fs := pflag.NewFlagSet("defs", pflag.ExitOnError)
	all := fs.BoolP("all", "a", false, "Include definitions no driver serves")
	fs.Parse(args)

	defs, err := c.ListTestDefs(context.Background(), !*all, 0, 0)
	if err != nil {
		fatal("failed to list test definitions: %v", err)
	}
	if len(defs) == 0 {
		fmt.Println("No test definitions found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Release\tSchema\tCreated\tDescription")
	fmt.Fprintln(w, "-------\t------\t-------\t-----------")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", def.Release, def.Schema, def.CreatedAt.Local().Format(time.DateTime), def.Description)
	}
	w.Flush()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bmc-driver [OPTIONS] SUBCOMMAND [ARGS]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands: register, list, defs\n")
	fmt.Fprintf(os.Stderr, "Run 'bmc-driver --help' for details.\n")
}

func printHelp() {
	fmt.Printf("bmc-driver - Register benchmark drivers and their test definitions\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc-driver [OPTIONS] SUBCOMMAND [ARGS]\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  register --release R [--schema N] [--definitions FILE] [--ttl 1m]\n")
	fmt.Printf("                                   Register this host and refresh until interrupted\n")
	fmt.Printf("  list [--release R] [--schema N] [--all]\n")
	fmt.Printf("                                   List registered drivers\n")
	fmt.Printf("  defs [--all]                     List test definitions served by a driver\n\n")

	fmt.Printf("A test run can only be scheduled while a driver of the test's release\n")
	fmt.Printf("and schema is registered.\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  bmc-driver register --release 2.1 --schema 3 --definitions load.yaml\n")
	fmt.Printf("  bmc-driver list --all\n")
}
