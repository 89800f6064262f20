// Package api serves the stored calibration runs and readings over HTTP.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/flowcal/internal/calibration"
	"github.com/banshee-data/flowcal/internal/db"
	"github.com/banshee-data/flowcal/internal/httputil"
	"github.com/banshee-data/flowcal/internal/plotting"
	"github.com/banshee-data/flowcal/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Query limits for the list endpoints.
const (
	DefaultReadingLimit = 500
	MaxReadingLimit     = 10000
	DefaultRunLimit     = 20
	MaxRunLimit         = 1000
)

type Server struct {
	db    *db.DB
	units string

	// AssetsHost overrides the echarts asset location when set.
	AssetsHost string
}

// NewServer returns a server reading from store. Flows are reported in
// flowUnits unless a request asks for others with ?units=.
func NewServer(store *db.DB, flowUnits string) *Server {
	return &Server{
		db:    store,
		units: flowUnits,
	}
}

// requestUnits returns the units for r, writing a 400 and returning
// ok=false when the units parameter is invalid.
func (s *Server) requestUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, "Invalid 'units' parameter. Must be one of: "+units.GetValidUnitsString())
		return "", false
	}
	return u, true
}

// convertReading applies unit conversion to the flow fields of a reading.
// Volumes are left in litres.
func convertReading(rd db.Reading, target string) db.Reading {
	rd.FlowRaw = units.ConvertFlow(rd.FlowRaw, target)
	rd.FlowFilt = units.ConvertFlow(rd.FlowFilt, target)
	rd.CoefA, rd.CoefB = units.ConvertCoefficients(rd.CoefA, rd.CoefB, target)
	return rd
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/calibration", s.showLatestCalibration)
	mux.HandleFunc("/api/calibrations", s.listCalibrations)
	mux.HandleFunc("/api/readings", s.listReadings)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/plot.png", s.showPlot)
	return mux
}

// calibrationResponse is the latest run plus its equation for display.
type calibrationResponse struct {
	db.CalibrationRun
	Units    string `json:"units"`
	Equation string `json:"equation"`
}

func (s *Server) showLatestCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	target, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	run, err := s.db.LatestCalibration()
	if errors.Is(err, db.ErrNoCalibration) {
		httputil.NotFound(w, "no calibration stored")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to load calibration: %v", err))
		return
	}

	run.CoefA, run.CoefB = units.ConvertCoefficients(run.CoefA, run.CoefB, target)
	res := calibration.Result{A: run.CoefA, B: run.CoefB}
	httputil.WriteJSON(w, http.StatusOK, calibrationResponse{
		CalibrationRun: *run,
		Units:          target,
		Equation:       res.Equation(),
	})
}

func (s *Server) listCalibrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, ok := httputil.QueryLimit(r, "limit", DefaultRunLimit, MaxRunLimit)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}

	runs, err := s.db.CalibrationRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list calibrations: %v", err))
		return
	}
	if runs == nil {
		runs = []db.CalibrationRun{}
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, ok := httputil.QueryLimit(r, "limit", DefaultReadingLimit, MaxReadingLimit)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}

	target, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	readings, err := s.db.RecentReadings(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list readings: %v", err))
		return
	}
	if readings == nil {
		readings = []db.Reading{}
	}
	for i := range readings {
		readings[i] = convertReading(readings[i], target)
	}
	httputil.WriteJSON(w, http.StatusOK, readings)
}

// chartData loads the latest run and the recent readings as plot points.
// It writes the error response itself and returns ok=false on failure.
func (s *Server) chartData(w http.ResponseWriter, r *http.Request) (run *db.CalibrationRun, points []calibration.Point, ok bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, nil, false
	}

	limit, ok := httputil.QueryLimit(r, "limit", DefaultReadingLimit, MaxReadingLimit)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return nil, nil, false
	}

	run, err := s.db.LatestCalibration()
	if errors.Is(err, db.ErrNoCalibration) {
		httputil.NotFound(w, "no calibration stored")
		return nil, nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to load calibration: %v", err))
		return nil, nil, false
	}

	readings, err := s.db.RecentReadings(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list readings: %v", err))
		return nil, nil, false
	}
	if len(readings) == 0 {
		httputil.NotFound(w, "no readings stored")
		return nil, nil, false
	}

	points = make([]calibration.Point, len(readings))
	for i, rd := range readings {
		// readings are newest first; plot in arrival order
		points[len(readings)-1-i] = calibration.Point{Freq: rd.FreqFilt, Flow: rd.FlowFilt}
	}
	return run, points, true
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	run, points, ok := s.chartData(w, r)
	if !ok {
		return
	}
	target, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	for i := range points {
		points[i].Flow = units.ConvertFlow(points[i].Flow, target)
	}
	a, b := units.ConvertCoefficients(run.CoefA, run.CoefB, target)

	var buf bytes.Buffer
	err := plotting.ScatterHTML(&buf, points, a, b, plotting.ChartOptions{
		Subtitle:   fmt.Sprintf("run=%s λ=%.3f n=%d", run.RunID, run.Lambda, len(points)),
		YLabel:     fmt.Sprintf("Vazão (%s)", units.Label(target)),
		AssetsHost: s.AssetsHost,
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// showPlot always renders in L/min.
func (s *Server) showPlot(w http.ResponseWriter, r *http.Request) {
	run, points, ok := s.chartData(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := plotting.WritePNG(&buf, points, run.CoefA, run.CoefB); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
