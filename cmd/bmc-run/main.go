package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/mslinn/bm-console/pkg/client"
	"github.com/mslinn/bm-console/pkg/config"
	"github.com/mslinn/bm-console/pkg/logging"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/names"
	"github.com/mslinn/bm-console/pkg/poller"
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
	pflag.BoolVarP(&debug, "verbose", "v", false, "Enable verbose output (alias for --debug)")
	pflag.StringVarP(&serverURL, "server", "s", "", "Server URL (default from config)")

	// Stop parsing at first non-flag argument (the subcommand)
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if showVersion {
		fmt.Printf("bmc-run version %s\n", version)
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 || showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	c := client.New(serverURL)
	ctx := context.Background()

	switch args[0] {
	case "list":
		handleList(ctx, c, args[1:])
	case "create":
		handleCreate(ctx, c, args[1:])
	case "show":
		handleShow(ctx, c, args[1:])
	case "copy":
		handleCopy(ctx, c, args[1:])
	case "update":
		handleUpdate(ctx, c, args[1:])
	case "delete":
		handleDelete(ctx, c, args[1:])
	case "start":
		handleStart(ctx, c, args[1:])
	case "stop":
		handleStop(ctx, c, args[1:])
	case "progress":
		handleProgress(ctx, c, args[1:])
	case "watch":
		handleWatch(c, cfg, args[1:], debug)
	case "logs":
		handleLogs(ctx, c, args[1:])
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
		fmt.Fprintf(os.Stderr, "Usage: bmc-run %s\n", usage)
		os.Exit(1)
	}
	return fs.Args()
}

func handleList(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("list", pflag.ExitOnError)
	state := fs.String("state", "", "Filter by state: NOT_SCHEDULED, SCHEDULED, STARTED, STOPPED, COMPLETED")
	limit := fs.Int("limit", 20, "Maximum number of runs to display")
	fs.Parse(args)
	test := requireArgs(fs, 1, "list TEST [--state STATE]")[0]

	runs, err := c.ListRuns(ctx, test, model.RunState(strings.ToUpper(*state)))
	if err != nil {
		fatal("failed to list test runs: %v", err)
	}
	if len(runs) > *limit {
		runs = runs[:*limit]
	}
	if len(runs) == 0 {
		fmt.Println("No test runs found")
		return
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Name\tState\tProgress\tOK\tFailed\tScheduled\tDuration\tDescription")
	fmt.Fprintln(w, "----\t-----\t--------\t--\t------\t---------\t--------\t-----------")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%d\t%d\t%s\t%s\t%s\n",
			run.Name,
			run.State,
			run.Progress*100,
			run.ResultsSuccess,
			run.ResultsFail,
			formatTime(run.ScheduledAt),
			formatDuration(run, now),
			truncate(run.Description, 30),
		)
	}
	w.Flush()
}

func handleCreate(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("create", pflag.ExitOnError)
	description := fs.String("description", "", "Run description")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "create TEST NAME [--description TEXT]")

	if err := names.ValidateTestRunName(rest[1]); err != nil {
		fatal("%s", names.Message(err))
	}
	run, err := c.CreateRun(ctx, rest[0], &model.RunRequest{Name: rest[1], Description: *description})
	if err != nil {
		fatal("failed to create test run: %v", err)
	}
	fmt.Printf("✓ Created test run %s.%s\n", run.Test, run.Name)
}

func handleShow(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("show", pflag.ExitOnError)
	fs.Parse(args)
	rest := requireArgs(fs, 2, "show TEST NAME")

	run, err := c.GetRun(ctx, rest[0], rest[1])
	if err != nil {
		fatal("failed to get test run: %v", err)
	}

	fmt.Printf("Test Run: %s.%s\n", run.Test, run.Name)
	fmt.Printf("  ID:          %s\n", run.ID)
	fmt.Printf("  Description: %s\n", run.Description)
	fmt.Printf("  State:       %s\n", run.State)
	fmt.Printf("  Version:     %d\n", run.Version)
	fmt.Printf("  Created:     %s\n", run.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("  Scheduled:   %s\n", formatTime(run.ScheduledAt))
	fmt.Printf("  Started:     %s\n", formatTime(run.StartedAt))
	if run.StoppedAt != nil {
		fmt.Printf("  Stopped:     %s\n", formatTime(run.StoppedAt))
	}
	if run.CompletedAt != nil {
		fmt.Printf("  Completed:   %s\n", formatTime(run.CompletedAt))
	}
	fmt.Printf("  Duration:    %s\n", formatDuration(run, time.Now()))
	fmt.Printf("  Progress:    %.0f%% (%d ok, %d failed)\n", run.Progress*100, run.ResultsSuccess, run.ResultsFail)

	fmt.Printf("\nProperties:\n")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, d := range run.Properties {
		value := d.EffectiveValue().String()
		if d.Mask {
			value = "********"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", d.Name, value, d.Origin)
	}
	w.Flush()
}

func handleCopy(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("copy", pflag.ExitOnError)
	description := fs.String("description", "", "Description of the copy")
	fs.Parse(args)
	rest := requireArgs(fs, 3, "copy TEST SOURCE NAME")

	if err := names.ValidateTestRunName(rest[2]); err != nil {
		fatal("%s", names.Message(err))
	}
	src, err := c.GetRun(ctx, rest[0], rest[1])
	if err != nil {
		fatal("failed to get test run: %v", err)
	}
	run, err := c.CreateRun(ctx, rest[0], &model.RunRequest{Name: rest[2], Description: *description, CopyOf: src.Name, Version: src.Version})
	if err != nil {
		fatal("failed to copy test run: %v", err)
	}
	fmt.Printf("✓ Copied %s.%s to %s.%s\n", src.Test, src.Name, run.Test, run.Name)
}

func handleUpdate(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("update", pflag.ExitOnError)
	rename := fs.String("name", "", "New name")
	description := fs.String("description", "", "New description")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "update TEST NAME [--name NEW] [--description TEXT]")

	run, err := c.GetRun(ctx, rest[0], rest[1])
	if err != nil {
		fatal("failed to get test run: %v", err)
	}
	req := &model.UpdateRequest{Name: run.Name, Description: run.Description, Version: run.Version}
	if fs.Changed("name") {
		req.Name = *rename
	}
	if fs.Changed("description") {
		req.Description = *description
	}
	if err := names.ValidateTestRunName(req.Name); err != nil {
		fatal("%s", names.Message(err))
	}

	updated, err := c.UpdateRun(ctx, rest[0], rest[1], req)
	if err != nil {
		fatal("failed to update test run: %v", err)
	}
	fmt.Printf("✓ Updated test run %s.%s (version %d)\n", updated.Test, updated.Name, updated.Version)
}

func handleDelete(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("delete", pflag.ExitOnError)
	fs.Parse(args)
	rest := requireArgs(fs, 2, "delete TEST NAME")

	if err := c.DeleteRun(ctx, rest[0], rest[1]); err != nil {
		fatal("failed to delete test run: %v", err)
	}
	fmt.Printf("✓ Deleted test run %s.%s\n", rest[0], rest[1])
}

func handleStart(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("start", pflag.ExitOnError)
	at := fs.String("at", "", "Start time (RFC 3339); default now")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "start TEST NAME [--at TIME]")

	var when *time.Time
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fatal("invalid --at time: %v", err)
		}
		when = &t
	}

	run, err := c.GetRun(ctx, rest[0], rest[1])
	if err != nil {
		fatal("failed to get test run: %v", err)
	}
	scheduled, err := c.ScheduleRun(ctx, rest[0], rest[1], run.Version, when)
	if err != nil {
		fatal("failed to schedule test run: %v", err)
	}
	fmt.Printf("✓ Scheduled %s.%s for %s\n", scheduled.Test, scheduled.Name, formatTime(scheduled.ScheduledAt))
}

func handleStop(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("stop", pflag.ExitOnError)
	fs.Parse(args)
	rest := requireArgs(fs, 2, "stop TEST NAME")

	run, err := c.TerminateRun(ctx, rest[0], rest[1])
	if err != nil {
		fatal("failed to stop test run: %v", err)
	}
	fmt.Printf("✓ Test run %s.%s is now %s\n", run.Test, run.Name, run.State)
}

func handleProgress(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("progress", pflag.ExitOnError)
	progress := fs.Float64("progress", 0, "Fraction done, 0 to 1")
	success := fs.Int64("ok", 0, "Successful results so far")
	failed := fs.Int64("failed", 0, "Failed results so far")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "progress TEST NAME --progress F [--ok N] [--failed N]")

	run, err := c.ReportProgress(ctx, rest[0], rest[1], &model.ProgressRequest{Progress: *progress, ResultsSuccess: *success, ResultsFail: *failed})
	if err != nil {
		fatal("failed to report progress: %v", err)
	}
	fmt.Printf("✓ %s.%s %s at %.0f%%\n", run.Test, run.Name, run.State, run.Progress*100)
}

// handleWatch follows a run until it completes or is stopped, tailing its
// log alongside
func handleWatch(c *client.Client, cfg *config.Config, args []string, debug bool) {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	interval := fs.Duration("interval", cfg.PollInterval, "Polling interval")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "watch TEST NAME [--interval 5s]")
	test, name := rest[0], rest[1]

	level := "warn"
	if debug {
		level = "debug"
	}
	logger, err := logging.NewSugared(&logging.Config{Level: level, NoCaller: true})
	if err != nil {
		fatal("%v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := poller.New(*interval, logger)
	defer p.StopAll()

	var since time.Time
	seen := map[int64]bool{}
	p.Start(ctx, poller.ConcernRunLogs, func(ctx context.Context) (bool, error) {
		logs, err := c.ListRunLogs(ctx, test, name, since, 0)
		if err != nil {
			return false, err
		}
		// oldest first
		for i := len(logs) - 1; i >= 0; i-- {
			entry := logs[i]
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			fmt.Printf("  %s %-5s %s\n", entry.LoggedAt.Local().Format(time.TimeOnly), entry.Level, entry.Message)
			since = entry.LoggedAt
		}
		return false, nil
	})

	done := p.Start(ctx, poller.ConcernRunSummary, poller.RunSummary(c, test, name, func(run *model.Run, err error) {
		if err != nil {
			return
		}
		fmt.Printf("%s.%s %-13s %3.0f%%  ok %d  failed %d  %s\n",
			run.Test, run.Name, run.State, run.Progress*100, run.ResultsSuccess, run.ResultsFail, formatDuration(run, time.Now()))
	}))

	<-done
	if ctx.Err() != nil {
		fmt.Println("Stopped watching")
	}
}

func handleLogs(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("logs", pflag.ExitOnError)
	count := fs.IntP("count", "n", 50, "Number of messages to show (0 for all)")
	since := fs.String("since", "", "Only messages logged at or after this RFC 3339 time")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "logs TEST NAME [-n COUNT] [--since TIME]")

	var from time.Time
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fatal("invalid --since time: %v", err)
		}
		from = t
	}

	logs, err := c.ListRunLogs(ctx, rest[0], rest[1], from, *count)
	if err != nil {
		fatal("failed to list run logs: %v", err)
	}
	if len(logs) == 0 {
		fmt.Println("No log messages")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Time\tLevel\tMessage")
	fmt.Fprintln(w, "----\t-----\t-------")
	for i := len(logs) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%s\t%s\t%s\n", logs[i].LoggedAt.Local().Format(time.DateTime), logs[i].Level, logs[i].Message)
	}
	w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatDuration(run *model.Run, now time.Time) string {
	d := run.Duration(now)
	if d == 0 {
		return "-"
	}
	if run.State == model.StateStarted {
		return fmt.Sprintf("%.1fs*", d.Seconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bmc-run [OPTIONS] SUBCOMMAND TEST [NAME] [ARGS]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands: list, create, show, copy, update, delete, start, stop, progress, watch, logs\n")
	fmt.Fprintf(os.Stderr, "Run 'bmc-run --help' for details.\n")
}

func printHelp() {
	fmt.Printf("bmc-run - Manage the test run lifecycle\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc-run [OPTIONS] SUBCOMMAND TEST [NAME] [ARGS]\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  list TEST [--state S]           List the runs of a test\n")
	fmt.Printf("  create TEST NAME                Create a run with the test's property values\n")
	fmt.Printf("  show TEST NAME                  Show a run and its properties\n")
	fmt.Printf("  copy TEST SOURCE NAME           Copy a run with its property values\n")
	fmt.Printf("  update TEST NAME                Rename or redescribe a run\n")
	fmt.Printf("  delete TEST NAME                Delete a run\n")
	fmt.Printf("  start TEST NAME [--at TIME]     Schedule a run; its properties become read only\n")
	fmt.Printf("  stop TEST NAME                  Stop a started run or unschedule a scheduled one\n")
	fmt.Printf("  progress TEST NAME --progress F Report driver progress\n")
	fmt.Printf("  watch TEST NAME                 Follow progress and log until the run ends\n")
	fmt.Printf("  logs TEST NAME [-n COUNT]       Show the run's log\n\n")

	fmt.Printf("STATES:\n")
	fmt.Printf("  NOT_SCHEDULED -> SCHEDULED -> STARTED -> COMPLETED\n")
	fmt.Printf("                                       -> STOPPED\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Schedule a run for a given time and watch it\n")
	fmt.Printf("  bmc-run start load 01 --at 2026-10-16T18:30:00Z\n")
	fmt.Printf("  bmc-run watch load 01 --interval 2s\n")
}
