package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)
	app := &cli{cfg: cfg, log: log, out: os.Stdout}

	var err error
	switch os.Args[1] {
	case "sanitize":
		err = app.runSanitize(os.Args[2:])
	case "prompt":
		err = app.runPrompt(os.Args[2:])
	case "validate":
		err = app.runValidate(os.Args[2:])
	case "guard":
		err = app.runGuard(os.Args[2:])
	case "analyze":
		err = app.runAnalyze(os.Args[2:])
	case "import":
		err = app.runImport(os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Finance Insights CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  sanitize  Print the sanitized form of a raw bundle")
	fmt.Fprintln(w, "  prompt    Print the model prompt for a raw bundle")
	fmt.Fprintln(w, "  validate  Validate a model response against its schema")
	fmt.Fprintln(w, "  guard     Apply the response guard to a model response")
	fmt.Fprintln(w, "  analyze   Run a full analysis for a user")
	fmt.Fprintln(w, "  import    Load transactions into the SQLite store")
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nRun 'cli <command> -h' for more information on a command.")
}
