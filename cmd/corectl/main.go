package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"duskrelay/internal/api"
	"duskrelay/internal/config"
	"duskrelay/internal/logging"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command provided")
	}

	cmd := args[0]
	switch cmd {
	case "config":
		return handleConfig(args[1:])
	case "status":
		return handleStatus(ctx, args[1:])
	case "route":
		return handleRoute(ctx, args[1:])
	case "fetch":
		return handleFetch(ctx, args[1:])
	case "vault":
		return handleVault(args[1:])
	case "extractor":
		return handleExtractor(ctx, args[1:])
	case "watch":
		return handleWatch(ctx, args[1:])
	case "version":
		fmt.Println(version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	case "--minimized":
		// A host shell that launches this binary directly (rather than
		// embedding api.Core in its own process) honours --minimized as
		// the very first argument; corectl itself has no window to hide,
		// so this is a no-op kept for CLI-surface parity with spec.md §6.
		return run(ctx, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Println(strings.TrimSpace(`corectl - reference driver for the duskrelay core

Usage:
  corectl <command> [flags]

Commands:
  config print         Print the loaded config as JSON
  status                Show vault and scheduler status
  route --url URL       Classify and probe a URL, print the routing decision
  fetch --url URL       Download a URL through the routed engine, with a live progress bar
  vault setup/unlock/lock/status/add-file/export-file/change-pin/reset
  extractor update       Check the configured release index and print the result (--apply installs it)
  watch                 Run the watchdog loop and print health actions as they fire
  version                Print version
  help                   Show this help

Flags:
  --config PATH     Path to YAML config file (or CORECTL_CONFIG env var; default ~/.config/duskrelay/config.yml)
  --log-level L     Log level: debug|info|warn|error
  --json            JSON log output
  --minimized        Honoured as the very first argument; no-op for this CLI driver
`))
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("CORECTL_CONFIG"); env != "" {
		return env
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, ".config", "duskrelay", "config.yml")
	}
	return ""
}

func loadConfigAndLog(cfgPath, logLevel string, jsonOut bool) (*config.Config, *logging.Logger, error) {
	path := resolveConfigPath(cfgPath)
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("config file not found: %s", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(logLevel, jsonOut)
	return cfg, log, nil
}

func newCoreFromFlags(cfgPath, logLevel string, jsonOut bool) (*api.Core, *logging.Logger, error) {
	cfg, log, err := loadConfigAndLog(cfgPath, logLevel, jsonOut)
	if err != nil {
		return nil, nil, err
	}
	core, err := api.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return core, log, nil
}

func commonFlags(name string) (*flag.FlagSet, *string, *string, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	logLevel := fs.String("log-level", "info", "log level")
	jsonOut := fs.Bool("json", false, "json logs")
	return fs, cfgPath, logLevel, jsonOut
}
