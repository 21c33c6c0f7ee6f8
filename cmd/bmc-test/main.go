package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/mslinn/bm-console/pkg/client"
	"github.com/mslinn/bm-console/pkg/config"
	"github.com/mslinn/bm-console/pkg/logging"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/names"
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
		fmt.Printf("bmc-test version %s\n", version)
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
	c := client.New(serverURL, client.SetDebug(debug))
	ctx := context.Background()

	switch args[0] {
	case "list":
		handleList(ctx, c, args[1:])
	case "create":
		handleCreate(ctx, c, args[1:], debug)
	case "show":
		handleShow(ctx, c, args[1:])
	case "copy":
		handleCopy(ctx, c, args[1:])
	case "update":
		handleUpdate(ctx, c, args[1:])
	case "delete":
		handleDelete(ctx, c, args[1:])
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
		fmt.Fprintf(os.Stderr, "Usage: bmc-test %s\n", usage)
		os.Exit(1)
	}
	return fs.Args()
}

func handleList(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("list", pflag.ExitOnError)
	prefix := fs.String("prefix", "", "Only list tests whose name starts with this")
	fs.Parse(args)

	tests, err := c.ListTests(ctx, *prefix)
	if err != nil {
		fatal("failed to list tests: %v", err)
	}
	if len(tests) == 0 {
		fmt.Println("No tests found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Name\tRelease\tSchema\tVersion\tModified\tDescription")
	fmt.Fprintln(w, "----\t-------\t------\t-------\t--------\t-----------")
	for _, t := range tests {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			t.Name, t.Release, t.Schema, t.Version,
			t.ModifiedAt.Local().Format(time.DateTime), truncate(t.Description, 40))
	}
	w.Flush()
}

func handleCreate(ctx context.Context, c *client.Client, args []string, debug bool) {
	fs := pflag.NewFlagSet("create", pflag.ExitOnError)
	definitions := fs.StringP("definitions", "f", "", "Property definition file (.yaml, .yml or .properties)")
	description := fs.String("description", "", "Test description")
	release := fs.String("release", "", "Release of the system under test")
	schema := fs.Int("schema", 0, "Definition schema number")
	fs.Parse(args)
	name := requireArgs(fs, 1, "create NAME [--definitions FILE | --release R --schema N]")[0]

	if err := names.ValidateTestName(name); err != nil {
		fatal("%s", names.Message(err))
	}

	req := &model.TestRequest{Name: name, Description: *description, Release: *release, Schema: *schema}
	if *definitions != "" {
		level := "warn"
		if debug {
			level = "debug"
		}
		logger, err := logging.NewSugared(&logging.Config{Level: level, NoCaller: true})
		if err != nil {
			fatal("%v", err)
		}
		defs, err := property.NewLoader(logger).Load(*definitions)
		if err != nil {
			if len(defs) == 0 {
				fatal("%v", err)
			}
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		req.Properties = defs
	}

	test, err := c.CreateTest(ctx, req)
	if err != nil {
		fatal("failed to create test: %v", err)
	}
	fmt.Printf("✓ Created test %s with %d properties\n", test.Name, len(test.Properties))
}

func handleShow(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("show", pflag.ExitOnError)
	fs.Parse(args)
	name := requireArgs(fs, 1, "show NAME")[0]

	test, err := c.GetTest(ctx, name)
	if err != nil {
		fatal("failed to get test: %v", err)
	}

	fmt.Printf("Test: %s\n", test.Name)
	fmt.Printf("  ID:          %s\n", test.ID)
	fmt.Printf("  Description: %s\n", test.Description)
	fmt.Printf("  Release:     %s\n", test.Release)
	fmt.Printf("  Schema:      %d\n", test.Schema)
	fmt.Printf("  Version:     %d\n", test.Version)
	fmt.Printf("  Created:     %s\n", test.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("  Modified:    %s\n", test.ModifiedAt.Local().Format(time.DateTime))

	runs, err := c.ListRuns(ctx, name, "")
	if err != nil {
		fatal("failed to list runs: %v", err)
	}
	counts := map[model.RunState]int{}
	for _, r := range runs {
		counts[r.State]++
	}
	fmt.Printf("  Runs:        %d (%d scheduled, %d started, %d completed)\n",
		len(runs), counts[model.StateScheduled], counts[model.StateStarted], counts[model.StateCompleted])

	fmt.Printf("\nProperties:\n")
	for _, g := range property.GroupProperties(test.Properties) {
		fmt.Printf("  [%s]\n", groupTitle(g))
		for _, d := range g.Properties {
			fmt.Printf("    %-24s %s\n", d.Name, display(d))
		}
	}
}

func handleCopy(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("copy", pflag.ExitOnError)
	description := fs.String("description", "", "Description of the copy")
	fs.Parse(args)
	rest := requireArgs(fs, 2, "copy SOURCE NAME")

	if err := names.ValidateTestName(rest[1]); err != nil {
		fatal("%s", names.Message(err))
	}
	src, err := c.GetTest(ctx, rest[0])
	if err != nil {
		fatal("failed to get test: %v", err)
	}
	test, err := c.CreateTest(ctx, &model.TestRequest{Name: rest[1], Description: *description, CopyOf: src.Name, Version: src.Version})
	if err != nil {
		fatal("failed to copy test: %v", err)
	}
	fmt.Printf("✓ Copied %s to %s\n", src.Name, test.Name)
}

func handleUpdate(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("update", pflag.ExitOnError)
	rename := fs.String("name", "", "New name")
	description := fs.String("description", "", "New description")
	fs.Parse(args)
	name := requireArgs(fs, 1, "update NAME [--name NEW] [--description TEXT]")[0]

	test, err := c.GetTest(ctx, name)
	if err != nil {
		fatal("failed to get test: %v", err)
	}
	req := &model.UpdateRequest{Name: test.Name, Description: test.Description, Version: test.Version}
	if fs.Changed("name") {
		req.Name = *rename
	}
	if fs.Changed("description") {
		req.Description = *description
	}
	if err := names.ValidateTestName(req.Name); err != nil {
		fatal("%s", names.Message(err))
	}

	updated, err := c.UpdateTest(ctx, name, req)
	if err != nil {
		fatal("failed to update test: %v", err)
	}
	fmt.Printf("✓ Updated test %s (version %d)\n", updated.Name, updated.Version)
}

func handleDelete(ctx context.Context, c *client.Client, args []string) {
	fs := pflag.NewFlagSet("delete", pflag.ExitOnError)
	fs.Parse(args)
	name := requireArgs(fs, 1, "delete NAME")[0]

	if err := c.DeleteTest(ctx, name); err != nil {
		fatal("failed to delete test: %v", err)
	}
	fmt.Printf("✓ Deleted test %s and its runs\n", name)
}

func groupTitle(g property.Group) string {
	if g.Name == "" {
		return "General"
	}
	return g.Name
}

func display(d *property.Descriptor) string {
	if d.Mask {
		return "********"
	}
	v := d.EffectiveValue()
	if !v.IsDefined() || v.IsNull() {
		return "(unset)"
	}
	s := v.String()
	if d.Origin != "" {
		s += fmt.Sprintf("  (%s)", d.Origin)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bmc-test [OPTIONS] SUBCOMMAND [ARGS]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands: list, create, show, copy, update, delete\n")
	fmt.Fprintf(os.Stderr, "Run 'bmc-test --help' for details.\n")
}

func printHelp() {
	fmt.Printf("bmc-test - Create, copy and inspect tests\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc-test [OPTIONS] SUBCOMMAND [ARGS]\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  list [--prefix P]                     List tests\n")
	fmt.Printf("  create NAME [--definitions FILE]      Create a test from property definitions\n")
	fmt.Printf("  create NAME --release R --schema N    Create a test from the definition a driver registered\n")
	fmt.Printf("  show NAME                             Show a test and its properties by group\n")
	fmt.Printf("  copy SOURCE NAME                      Copy a test with its property values\n")
	fmt.Printf("  update NAME [--name N] [--description D]\n")
	fmt.Printf("                                        Rename or redescribe a test\n")
	fmt.Printf("  delete NAME                           Delete a test and all of its runs\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nDEFINITION FILES:\n")
	fmt.Printf("  YAML files hold a list of property descriptors:\n")
	fmt.Printf("    - name: users\n")
	fmt.Printf("      group: Load\n")
	fmt.Printf("      type: int\n")
	fmt.Printf("      default: 10\n")
	fmt.Printf("      min: 1\n\n")
	fmt.Printf("  .properties files key every field by project and property, such as\n")
	fmt.Printf("  'common.users.default=10' and 'common.users.type=int'. A property exists\n")
	fmt.Printf("  once some project gives it a default; 'inheritance=common.crud' orders\n")
	fmt.Printf("  the projects, later ones overriding earlier ones.\n")
}
