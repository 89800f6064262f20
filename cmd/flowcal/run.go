package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/flowcal/internal/calibration"
	"github.com/banshee-data/flowcal/internal/config"
	"github.com/banshee-data/flowcal/internal/db"
	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/httputil"
	"github.com/banshee-data/flowcal/internal/logapi"
	"github.com/banshee-data/flowcal/internal/plotting"
	"github.com/banshee-data/flowcal/internal/serialsource"
	"github.com/banshee-data/flowcal/internal/timeutil"
)

// runOptions holds the run flags that are not part of the config file.
type runOptions struct {
	chartPath  string
	serialPort string
	baudRate   int
	maxRecords int
	duration   time.Duration
	noDB       bool
	verbose    bool
}

// calibrator performs one fetch, fit, store and plot cycle.
type calibrator struct {
	cfg    *config.CalibrationConfig
	opts   runOptions
	http   httputil.HTTPClient
	clock  timeutil.Clock
	newID  func() string
	stdout io.Writer

	// openSerial is swapped out in tests.
	openSerial func(path string, o serialsource.PortOptions) (*serialsource.Source, error)
}

func cmdRun(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "Path to a JSON or YAML config file")
		lambda     = fs.Float64("lambda", config.DefaultLambda, "RLS forgetting factor in (0, 1]")
		logURL     = fs.String("url", logapi.DefaultBaseURL, "Log service URL")
		pageSize   = fs.Int("page-size", 60, "Number of log records to fetch")
		dbPath     = fs.String("db", config.DefaultDBPath, "SQLite database path")
		plotPath   = fs.String("plot", config.DefaultPlotPath, "PNG plot output path (empty disables)")
		opts       runOptions
	)
	fs.StringVar(&opts.chartPath, "chart", "", "Optional HTML chart output path")
	fs.StringVar(&opts.serialPort, "serial", "", "Read telemetry from this serial port instead of the log service")
	fs.IntVar(&opts.baudRate, "baud", serialsource.DefaultBaudRate, "Serial baud rate")
	fs.IntVar(&opts.maxRecords, "max-records", 60, "Stop serial collection after this many lines (0 = no limit)")
	fs.DurationVar(&opts.duration, "duration", 0, "Stop serial collection after this long (0 = no limit)")
	fs.BoolVar(&opts.noDB, "no-db", false, "Skip persistence")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log every rejected record")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	// Explicit flags win over the config file.
	set := setFlags(fs)
	if set["lambda"] {
		cfg.Lambda = lambda
	}
	if set["url"] {
		cfg.LogURL = logURL
	}
	if set["page-size"] {
		cfg.PageSize = pageSize
	}
	if set["db"] {
		cfg.DBPath = dbPath
	}
	if set["plot"] {
		cfg.PlotPath = plotPath
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return 1
	}

	c := &calibrator{
		cfg:        cfg,
		opts:       opts,
		http:       &http.Client{Timeout: cfg.GetHTTPTimeout()},
		clock:      timeutil.RealClock{},
		newID:      uuid.NewString,
		stdout:     stdout,
		openSerial: serialsource.Open,
	}
	return c.run(ctx)
}

// run returns the process exit status. An empty result skips persistence
// and plotting and exits 1. A storage failure is logged and does not stop
// the plot.
func (c *calibrator) run(ctx context.Context) int {
	records, err := c.collect(ctx)
	if err != nil {
		log.Printf("failed to collect records: %v", err)
		return 1
	}

	pipeline := calibration.Pipeline{
		Lambda:   c.cfg.GetLambda(),
		Observer: calibration.LogObserver{Verbose: c.opts.verbose},
	}
	res, err := pipeline.Run(ctx, records)
	if errors.Is(err, calibration.ErrNoValidData) {
		log.Printf("%v: nothing to store or plot", err)
		return 1
	}
	if err != nil {
		log.Print(abortMessage(res, err))
		return 1
	}

	fmt.Fprintf(c.stdout, "Final calibration model (λ=%.2f):\n", res.Lambda)
	fmt.Fprintf(c.stdout, "%s\n", res.Equation())
	fmt.Fprintf(c.stdout, "samples=%d rejected=%d skipped_updates=%d\n", len(res.Samples), res.Rejected, res.Skipped)

	if !c.opts.noDB {
		c.persist(ctx, res)
	}

	status := 0
	if path := c.cfg.GetPlotPath(); path != "" {
		if err := plotting.ScatterPNG(path, res.Points(), res.A, res.B); err != nil {
			log.Printf("failed to plot: %v", err)
			status = 1
		} else {
			log.Printf("plot written to %s", path)
		}
	}
	if c.opts.chartPath != "" {
		if err := c.writeChart(res); err != nil {
			log.Printf("failed to write chart: %v", err)
			status = 1
		} else {
			log.Printf("chart written to %s", c.opts.chartPath)
		}
	}
	return status
}

// abortMessage describes a run that stopped early. A partial estimate is
// reported but never stored.
func abortMessage(res *calibration.Result, err error) string {
	if res == nil {
		return fmt.Sprintf("calibration aborted: %v", err)
	}
	return fmt.Sprintf("calibration aborted: %v; partial estimate from %d samples, not stored: %s",
		err, len(res.Samples), res.Equation())
}

// collect reads records from the serial port when one is configured and
// from the log service otherwise. A log service failure yields no records.
func (c *calibrator) collect(ctx context.Context) ([]flowlog.LogRecord, error) {
	if c.opts.serialPort != "" {
		src, err := c.openSerial(c.opts.serialPort, serialsource.PortOptions{BaudRate: c.opts.baudRate})
		if err != nil {
			return nil, err
		}
		defer src.Close()
		src.Clock = c.clock
		src.MaxRecords = c.opts.maxRecords
		src.Duration = c.opts.duration
		log.Printf("reading telemetry from %s", c.opts.serialPort)
		return src.Collect(ctx)
	}

	client := logapi.NewClient(c.cfg.GetLogURL(), c.http)
	return client.FetchOrEmpty(ctx, c.cfg.GetLogParams())
}

func (c *calibrator) persist(ctx context.Context, res *calibration.Result) {
	store, err := db.Connect(ctx, c.cfg.GetDBPath(), c.cfg.GetRetryPolicy(), c.clock)
	if err != nil {
		log.Printf("failed to connect to database: %v", err)
		return
	}
	defer store.Close()

	runID := c.newID()
	stats, err := store.SaveCalibration(ctx, runID, res, c.clock.Now())
	if err != nil {
		log.Printf("failed to store calibration: %v", err)
		return
	}
	log.Printf("stored run %s: %d readings inserted, %d skipped with bad timestamps", runID, stats.Inserted, stats.BadTimestamps)
}

func (c *calibrator) writeChart(res *calibration.Result) error {
	f, err := os.Create(c.opts.chartPath)
	if err != nil {
		return err
	}
	if err := plotting.ScatterHTML(f, res.Points(), res.A, res.B, plotting.ChartOptions{}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
