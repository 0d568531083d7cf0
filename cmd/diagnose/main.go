package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/jo-hoe/wheatscan/internal/common"
	"github.com/jo-hoe/wheatscan/internal/connectivity"
	"github.com/jo-hoe/wheatscan/internal/core"
)

const (
	exitOK = iota
	exitFailed
	exitUsage
	exitOffline
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// .env may carry CONFIG_PATH, the default of -config
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "failed to load .env file: %v\n", err)
	}

	flags := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration")
	asJSON := flags.Bool("json", false, "print the result as JSON")
	openSearch := flags.Bool("open", false, "open the web search for the diagnosis")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: diagnose [flags] <image>\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return exitUsage
	}

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFailed
	}
	// keep stdout for the result
	common.ConfigureLogging(stderr, config.LogLevel, config.LogFormat)

	coreService, err := core.NewCoreService(config)
	if err != nil {
		slog.Error("failed to initialize core service", "error", err)
		return exitFailed
	}
	defer func() {
		if err := coreService.Close(); err != nil {
			slog.Error("core service close error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outcome, err := coreService.DiagnoseFile(ctx, flags.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, core.UserMessage(err))
		return exitFailed
	}
	if outcome.Offline {
		fmt.Fprintf(stderr, "%s\n%s\n", connectivity.OfflineTitle, connectivity.OfflineMessage)
		return exitOffline
	}

	if *asJSON {
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(outcome.View); err != nil {
			slog.Error("failed to encode result", "error", err)
			return exitFailed
		}
	} else {
		printView(stdout, outcome)
	}

	if outcome.View.Failed() {
		return exitFailed
	}
	if *openSearch && outcome.View.SearchURL != "" {
		if err := coreService.OpenSearch(ctx, outcome.View.Label); err != nil {
			slog.Warn("failed to open search", "error", err)
		}
	}
	return exitOK
}

func printView(w io.Writer, outcome core.Outcome) {
	view := outcome.View
	if view.Failed() {
		fmt.Fprintln(w, view.Error)
		return
	}
	fmt.Fprintln(w, view.Header)
	fmt.Fprintln(w)
	for _, line := range view.Lines() {
		fmt.Fprintln(w, line)
	}
	if view.SearchURL != "" {
		fmt.Fprintf(w, "\nMore: %s\n", view.SearchURL)
	}
}
