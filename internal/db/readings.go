package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/flowcal/internal/calibration"
	"github.com/banshee-data/flowcal/internal/flowlog"
)

// ErrNoCalibration is returned when no calibration run has been stored.
var ErrNoCalibration = errors.New("no calibration stored")

// Reading is one row of flow_readings.
type Reading struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	flowlog.Sample
	CoefA float64 `json:"coef_a"`
	CoefB float64 `json:"coef_b"`
}

// CalibrationRun is one row of calibration_runs.
type CalibrationRun struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Lambda      float64   `json:"lambda"`
	CoefA       float64   `json:"coef_a"`
	CoefB       float64   `json:"coef_b"`
	SampleCount int       `json:"sample_count"`
	Rejected    int       `json:"rejected"`
	Skipped     int       `json:"skipped"`
}

// SaveStats summarises a SaveCalibration call.
type SaveStats struct {
	Inserted      int
	BadTimestamps int
}

const insertReadingSQL = `INSERT INTO flow_readings (
	created_at, freq_raw, flow_raw, vol_raw, freq_filt, flow_filt, vol_filt, coef_a, coef_b
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertReading stores one sample stamped with the fitted coefficients.
func (db *DB) InsertReading(ts time.Time, s flowlog.Sample, a, b float64) (int64, error) {
	res, err := db.Exec(insertReadingSQL,
		formatTime(ts), s.FreqRaw, s.FlowRaw, s.VolRaw, s.FreqFilt, s.FlowFilt, s.VolFilt, a, b)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	return res.LastInsertId()
}

// SaveCalibration writes the run and one reading per accepted sample in a
// single transaction. Every reading carries the run's final coefficients.
// Samples whose timestamp does not parse are skipped and counted.
func (db *DB) SaveCalibration(ctx context.Context, runID string, res *calibration.Result, createdAt time.Time) (SaveStats, error) {
	var stats SaveStats

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calibration_runs (run_id, created_at, lambda, coef_a, coef_b, sample_count, rejected, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, formatTime(createdAt), res.Lambda, res.A, res.B, len(res.Samples), res.Rejected, res.Skipped,
	); err != nil {
		return stats, fmt.Errorf("failed to insert calibration run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare reading insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range res.Samples {
		ts, err := flowlog.ParseTimestamp(s.CreatedAt)
		if err != nil {
			logf("skipping reading: %v", err)
			stats.BadTimestamps++
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			formatTime(ts), s.FreqRaw, s.FlowRaw, s.VolRaw, s.FreqFilt, s.FlowFilt, s.VolFilt, res.A, res.B,
		); err != nil {
			return SaveStats{}, fmt.Errorf("failed to insert reading: %w", err)
		}
		stats.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return SaveStats{}, fmt.Errorf("failed to commit calibration: %w", err)
	}
	return stats, nil
}

// RecentReadings returns up to limit readings, newest first.
func (db *DB) RecentReadings(limit int) ([]Reading, error) {
	rows, err := db.Query(`SELECT id, created_at, freq_raw, flow_raw, vol_raw, freq_filt, flow_filt, vol_filt, coef_a, coef_b
		FROM flow_readings ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			r  Reading
			ts string
		)
		if err := rows.Scan(&r.ID, &ts, &r.FreqRaw, &r.FlowRaw, &r.VolRaw,
			&r.FreqFilt, &r.FlowFilt, &r.VolFilt, &r.CoefA, &r.CoefB); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("reading %d: %w", r.ID, err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// CalibrationRuns returns up to limit runs, newest first.
func (db *DB) CalibrationRuns(limit int) ([]CalibrationRun, error) {
	rows, err := db.Query(`SELECT run_id, created_at, lambda, coef_a, coef_b, sample_count, rejected, skipped
		FROM calibration_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CalibrationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// LatestCalibration returns the most recent run or ErrNoCalibration.
func (db *DB) LatestCalibration() (*CalibrationRun, error) {
	row := db.QueryRow(`SELECT run_id, created_at, lambda, coef_a, coef_b, sample_count, rejected, skipped
		FROM calibration_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCalibration
	}
	return run, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*CalibrationRun, error) {
	var (
		run CalibrationRun
		ts  string
	)
	if err := s.Scan(&run.RunID, &ts, &run.Lambda, &run.CoefA, &run.CoefB,
		&run.SampleCount, &run.Rejected, &run.Skipped); err != nil {
		return nil, err
	}
	var err error
	if run.CreatedAt, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.RunID, err)
	}
	return &run, nil
}
