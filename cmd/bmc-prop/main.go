package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/client"
	"github.com/mslinn/bm-console/pkg/config"
	"github.com/mslinn/bm-console/pkg/editor"
	"github.com/mslinn/bm-console/pkg/logging"
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
		fmt.Printf("bmc-prop version %s\n", version)
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 || showHelp {
		printHelp()
		os.Exit(0)
	}

	level := "warn"
	if debug {
		level = "debug"
	}
	logger, err := logging.NewSugared(&logging.Config{Level: level, NoCaller: true})
	if err != nil {
		fatal("%v", err)
	}
	defer logger.Sync()

	// check works offline
	if args[0] == "check" {
		handleCheck(args[1:], logger)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	c := client.New(serverURL)
	ctx := context.Background()

	switch args[0] {
	case "show":
		handleShow(ctx, c, args[1:], logger)
	case "set":
		handleSet(ctx, c, args[1:], logger)
	case "reset":
		handleReset(ctx, c, args[1:], logger)
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

func requireArgs(fs *pflag.FlagSet, n int, usage string) []string {
	if fs.NArg() < n {
		fmt.Fprintf(os.Stderr, "Error: missing arguments\n")
		fmt.Fprintf(os.Stderr, "Usage: bmc-prop %s\n", usage)
		os.Exit(1)
	}
	return fs.Args()
}

// parseRef splits TEST or TEST.RUN
func parseRef(s string) editor.Ref {
	test, run, _ := strings.Cut(s, ".")
	return editor.Ref{Test: test, Run: run}
}

// openSession loads the properties of ref into an edit session
func openSession(ctx context.Context, c *client.Client, ref editor.Ref, logger *zap.SugaredLogger) *editor.Session {
	if ref.Run == "" {
		test, err := c.GetTest(ctx, ref.Test)
		if err != nil {
			fatal("failed to get test: %v", err)
		}
		return editor.NewSession(ref, test.Properties, c, false, logger)
	}
	run, err := c.GetRun(ctx, ref.Test, ref.Run)
	if err != nil {
		fatal("failed to get test run: %v", err)
	}
	return editor.NewSession(ref, run.Properties, c, run.ReadOnly(), logger)
}

func handleShow(ctx context.Context, c *client.Client, args []string, logger *zap.SugaredLogger) {
	fs := pflag.NewFlagSet("show", pflag.ExitOnError)
	all := fs.BoolP("all", "a", false, "Include hidden properties and list admissible values")
	fs.Parse(args)
	ref := parseRef(requireArgs(fs, 1, "show TEST[.RUN] [--all]")[0])

	s := openSession(ctx, c, ref, logger)
	fmt.Printf("Properties of %s", ref)
	if s.ReadOnly() {
		fmt.Printf(" (read only)")
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, g := range s.Groups() {
		title := g.Name
		if title == "" {
			title = "General"
		}
		fmt.Fprintf(w, "\n[%s]\t\t\t\t\n", title)
		for _, d := range g.Properties {
			if d.Hide && !*all {
				continue
			}
			status := "ok"
			candidate := d.Clone()
			candidate.Value = d.EffectiveValue()
			if r := property.Validate(candidate); r.Fail {
				status = r.Message
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\tv%d\t%s\n", d.DisplayTitle(), valueText(d), d.Origin, d.Version, status)
			if set := property.Admissible(d); *all && set.Kind != property.SetFree {
				fmt.Fprintf(w, "  \tone of: %s\t\t\t\n", strings.Join(set.Values, ", "))
			}
		}
	}
	w.Flush()

	if msgs := s.Attention(); len(msgs) > 0 {
		fmt.Println("\nNeeds attention:")
		for _, msg := range msgs {
			fmt.Printf("  %s\n", msg)
		}
	}
}

func handleSet(ctx context.Context, c *client.Client, args []string, logger *zap.SugaredLogger) {
	fs := pflag.NewFlagSet("set", pflag.ExitOnError)
	asJSON := fs.Bool("json", false, "Parse VALUE as JSON (number, boolean, string or null)")
	fs.Parse(args)
	rest := requireArgs(fs, 3, "set TEST[.RUN] NAME VALUE [--json]")
	ref, name := parseRef(rest[0]), rest[1]

	value := property.StringValue(rest[2])
	if *asJSON {
		if err := json.Unmarshal([]byte(rest[2]), &value); err != nil {
			fatal("invalid JSON value: %v", err)
		}
	}

	s := openSession(ctx, c, ref, logger)
	d, err := s.Property(name)
	if err != nil {
		fatal("%v", err)
	}
	s.Begin(d)
	d.Value = value
	if err := s.Commit(ctx, d); err != nil {
		report(d, err)
	}
	fmt.Printf("✓ %s.%s = %s (version %d)\n", ref, d.Name, valueText(d), d.Version)
}

func handleReset(ctx context.Context, c *client.Client, args []string, logger *zap.SugaredLogger) {
	fs := pflag.NewFlagSet("reset", pflag.ExitOnError)
	fs.Parse(args)
	rest := requireArgs(fs, 2, "reset TEST[.RUN] NAME")
	ref, name := parseRef(rest[0]), rest[1]

	s := openSession(ctx, c, ref, logger)
	d, err := s.Property(name)
	if err != nil {
		fatal("%v", err)
	}
	if err := s.Reset(ctx, d); err != nil {
		report(d, err)
	}
	fmt.Printf("✓ Reset %s.%s to %s (%s)\n", ref, d.Name, valueText(d), d.Origin)
}

func report(d *property.Descriptor, err error) {
	switch {
	case errors.Is(err, apierr.ErrConflict):
		fatal("%s: %s", d.Name, d.ValidationMessage)
	case errors.Is(err, apierr.ErrReadOnly):
		fatal("%v", err)
	}
	var ve *property.ValidationError
	if errors.As(err, &ve) {
		fatal("%s: %s", d.Name, ve.Message)
	}
	fatal("failed to save %s: %v", d.Name, err)
}

// handleCheck validates a definition file without a server
func handleCheck(args []string, logger *zap.SugaredLogger) {
	fs := pflag.NewFlagSet("check", pflag.ExitOnError)
	fs.Parse(args)
	path := requireArgs(fs, 1, "check FILE")[0]

	defs, loadErr := property.NewLoader(logger).Load(path)
	if loadErr != nil && len(defs) == 0 {
		fatal("%v", loadErr)
	}

	failed := loadErr != nil
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", loadErr)
	}
	for _, d := range defs {
		if need, msg := property.NeedsAttention(d); need {
			fmt.Printf("! %s\n", msg)
			continue
		}
		candidate := d.Clone()
		candidate.Value = d.EffectiveValue()
		r := property.Validate(candidate)
		switch {
		case r.ConfigError:
			failed = true
			fmt.Printf("✗ %s: malformed definition: %s\n", d.Name, r.Message)
		case r.Fail:
			failed = true
			fmt.Printf("✗ %s: default %s rejected: %s\n", d.Name, candidate.Value, r.Message)
		default:
			fmt.Printf("✓ %s\n", d.Name)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func valueText(d *property.Descriptor) string {
	if d.Mask {
		return "********"
	}
	v := d.EffectiveValue()
	if !v.IsDefined() || v.IsNull() {
		return "(unset)"
	}
	return v.String()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bmc-prop [OPTIONS] SUBCOMMAND ARGS\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands: show, set, reset, check\n")
	fmt.Fprintf(os.Stderr, "Run 'bmc-prop --help' for details.\n")
}

func printHelp() {
	fmt.Printf("bmc-prop - Show, edit and check properties\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc-prop [OPTIONS] SUBCOMMAND ARGS\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  show TEST[.RUN] [--all]          Show properties by group; --all adds hidden ones and choices\n")
	fmt.Printf("  set TEST[.RUN] NAME VALUE        Validate and save a value\n")
	fmt.Printf("  reset TEST[.RUN] NAME            Restore the default (runs: the test's value)\n")
	fmt.Printf("  check FILE                       Validate a definition file offline\n\n")

	fmt.Printf("Values are saved with the version last read. If someone else saved the\n")
	fmt.Printf("property in between, the save is refused; run 'show' again and retry.\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  bmc-prop set load users 250\n")
	fmt.Printf("  bmc-prop set load.01 mongo.host db1.example.com\n")
	fmt.Printf("  bmc-prop set --json load.01 secure true\n")
	fmt.Printf("  bmc-prop check load.yaml\n")
}
