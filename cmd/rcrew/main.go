// Package main is the entry point for the rcrew CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/cli"
	"github.com/runoshun/research-crew/internal/infra/config"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]

	// The data directory decides which config and store to load,
	// so it is read before cobra parses the flags.
	dataDir, err := config.ResolveDataDir(dataDirFromArgs(args))
	if err != nil {
		return err
	}

	ctx := context.Background()
	container, err := app.New(ctx, dataDir)
	if err != nil {
		return runWithoutContainer(args, err)
	}
	defer func() { _ = container.Close() }()

	rootCmd := cli.NewRootCommand(container, version)
	return rootCmd.ExecuteContext(ctx)
}

// runWithoutContainer handles a broken configuration or an unreachable store.
// Help, version and the config template still work; everything else reports
// the initialization error.
func runWithoutContainer(args []string, initErr error) error {
	if !canRunWithoutStore(args) {
		return fmt.Errorf("failed to initialize: %w", initErr)
	}
	return cli.NewRootCommand(nil, version).Execute()
}

func canRunWithoutStore(args []string) bool {
	if len(args) == 0 {
		return true
	}
	if args[0] == "help" {
		return true
	}
	if len(args) >= 2 && args[0] == "config" && args[1] == "template" {
		return true
	}
	for _, arg := range args {
		if arg == "--version" || arg == "-v" || arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// dataDirFromArgs returns the value of --data-dir, or "" when absent.
func dataDirFromArgs(args []string) string {
	flag := "--" + cli.DataDirFlag
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, flag+"="); ok {
			return v
		}
	}
	return ""
}
