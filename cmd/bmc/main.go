package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/samber/lo"
)

var version = "dev" // Set by -ldflags during build

type subcommand struct {
	name        string
	description string
}

// Available subcommands
var subcommands = []subcommand{
	{"config", "Manage configuration"},
	{"server", "Serve tests and test runs over REST"},
	{"test", "Create, copy and inspect tests"},
	{"run", "Manage the test run lifecycle"},
	{"prop", "Show, edit and check properties"},
	{"driver", "Register drivers and test definitions"},
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		fmt.Printf("bmc version %s\n", version)
		os.Exit(0)
	}

	if len(os.Args) == 1 || os.Args[1] == "--help" || os.Args[1] == "-h" {
		printHelp()
		os.Exit(0)
	}

	name := os.Args[1]
	if !lo.ContainsBy(subcommands, func(sc subcommand) bool { return sc.name == name }) {
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cmdName := "bmc-" + name
	cmdPath, err := exec.LookPath(cmdName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: command '%s' not found in PATH\n", cmdName)
		fmt.Fprintf(os.Stderr, "Make sure it is installed (try: make install)\n")
		os.Exit(1)
	}

	args := []string{filepath.Base(cmdPath)}
	if len(os.Args) > 2 {
		args = append(args, os.Args[2:]...)
	}

	// execve hands signals straight to the subcommand
	if err := syscall.Exec(cmdPath, args, os.Environ()); err != nil {
		cmd := exec.Command(cmdPath, args[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				os.Exit(exitErr.ExitCode())
			}
			fmt.Fprintf(os.Stderr, "Error executing %s: %v\n", cmdName, err)
			os.Exit(1)
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bmc <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Available commands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", sc.name, sc.description)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'bmc <command> --help' for more information on a command.\n")
}

func printHelp() {
	fmt.Printf("bmc - Benchmark test console\n\n")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Defines benchmark tests and their properties, schedules test runs and\n")
	fmt.Printf("  follows their progress. This command dispatches to the bmc-* tools.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bmc <command> [options]\n\n")

	fmt.Printf("AVAILABLE COMMANDS:\n")
	for _, sc := range subcommands {
		fmt.Printf("  %-8s %s\n", sc.name, sc.description)
	}

	fmt.Printf("\nGLOBAL OPTIONS:\n")
	fmt.Printf("  -h, --help       Show this help message\n")
	fmt.Printf("  -V, --version    Show version\n\n")

	fmt.Printf("GETTING STARTED:\n")
	fmt.Printf("  1. Create a configuration:\n")
	fmt.Printf("       bmc config init\n\n")

	fmt.Printf("  2. Start the server:\n")
	fmt.Printf("       bmc server\n\n")

	fmt.Printf("  3. Create a test from a property definition file:\n")
	fmt.Printf("       bmc test create load --definitions load.yaml\n\n")

	fmt.Printf("  4. Create a run, fill in its properties and start it:\n")
	fmt.Printf("       bmc run create load 01\n")
	fmt.Printf("       bmc prop set load.01 mongo.host db1\n")
	fmt.Printf("       bmc run start load 01\n\n")

	fmt.Printf("  5. Follow its progress:\n")
	fmt.Printf("       bmc run watch load 01\n\n")

	fmt.Printf("For detailed help on any command:\n")
	fmt.Printf("  bmc <command> --help\n")
}
