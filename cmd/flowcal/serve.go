package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/flowcal/internal/api"
	"github.com/banshee-data/flowcal/internal/db"
	"github.com/banshee-data/flowcal/internal/timeutil"
)

func cmdServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "Path to a JSON or YAML config file")
		listen     = fs.String("listen", "", "Listen address (overrides config)")
		dbPath     = fs.String("db", "", "SQLite database path (overrides config)")
		flowUnits  = fs.String("units", "", "Flow units for API responses (overrides config)")
		assetsHost = fs.String("assets-host", "", "Override the echarts asset host")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *flowUnits != "" {
		cfg.Units = flowUnits
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return 1
	}

	store, err := db.Connect(ctx, cfg.GetDBPath(), cfg.GetRetryPolicy(), timeutil.RealClock{})
	if err != nil {
		log.Printf("failed to connect to database: %v", err)
		return 1
	}
	defer store.Close()

	apiServer := api.NewServer(store, cfg.GetUnits())
	apiServer.AssetsHost = *assetsHost
	mux := apiServer.ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		log.Printf("failed to attach admin routes: %v", err)
		return 1
	}

	server := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to start server: %v", err)
			return 1
		}
	case <-ctx.Done():
	}

	log.Print("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Print("HTTP server stopped")
	return 0
}
