// Command flowcal fits a flow meter calibration from sensor telemetry and
// serves the stored results.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/flowcal/internal/config"
	"github.com/banshee-data/flowcal/internal/db"
	"github.com/banshee-data/flowcal/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := dispatch(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// dispatch runs the subcommand named by args[0] and returns the exit status.
func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "run":
		return cmdRun(ctx, args[1:], stdout, stderr)
	case "serve":
		return cmdServe(ctx, args[1:], stderr)
	case "migrate":
		return cmdMigrate(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "-help", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Usage: flowcal <command> [flags]

Commands:
  run      Fetch telemetry, fit the calibration, store it and plot it
  serve    Serve stored calibrations and readings over HTTP
  migrate  Manage the database schema (up, down, status)
  version  Print version information

Run 'flowcal <command> -h' for the flags of a command.`)
}

// loadConfig returns the config at path, or the defaults when path is empty.
func loadConfig(path string) (*config.CalibrationConfig, error) {
	if path == "" {
		return config.EmptyCalibrationConfig(), nil
	}
	cfg, err := config.LoadCalibrationConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded config from %s", path)
	return cfg, nil
}

// setFlags reports which flags were given explicitly on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func cmdMigrate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a JSON or YAML config file")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	path := cfg.GetDBPath()
	if *dbPath != "" {
		path = *dbPath
	}

	if err := db.RunMigrateCommand(fs.Args(), path, stdout); err != nil {
		log.Printf("migrate: %v", err)
		return 1
	}
	return 0
}
