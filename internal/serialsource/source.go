// Package serialsource collects telemetry lines straight from the flow
// meter's serial port, as an alternative to the remote log service.
package serialsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/monitoring"
	"github.com/banshee-data/flowcal/internal/timeutil"
)

var logf = monitoring.Tagged("serial")

// Source turns newline-terminated lines read from Port into log records
// stamped with Clock.
type Source struct {
	Port  io.ReadCloser
	Clock timeutil.Clock

	// MaxRecords stops collection after this many lines. Zero means no limit.
	MaxRecords int
	// Duration stops collection after this long. Zero means no limit.
	Duration time.Duration
}

// Open opens the serial port at path.
func Open(path string, opts PortOptions) (*Source, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return NewSource(port, timeutil.RealClock{}), nil
}

// NewSource wraps an already open port.
func NewSource(port io.ReadCloser, clock timeutil.Clock) *Source {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Source{Port: port, Clock: clock}
}

// Close closes the underlying port, which also unblocks a pending read.
func (s *Source) Close() error {
	return s.Port.Close()
}

// Collect reads lines until MaxRecords is reached, Duration elapses on
// Clock, the port reaches EOF or ctx is done. Blank lines are dropped.
// Reaching a limit or EOF is a normal stop; cancellation of ctx returns the
// records read so far together with ctx.Err().
func (s *Source) Collect(ctx context.Context) ([]flowlog.LogRecord, error) {
	// readCtx is cancelled on return so the scanner goroutine never blocks
	// on a send nobody will receive.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var window <-chan time.Time
	if s.Duration > 0 {
		window = s.Clock.After(s.Duration)
	}

	scan := bufio.NewScanner(s.Port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The scanner blocks in Read; it exits once the port is closed or
	// returns EOF, or on its next send after Collect returns.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-readCtx.Done():
				return
			}
		}
		scanErrChan <- scan.Err()
	}()

	var records []flowlog.LogRecord
	for {
		select {
		case <-ctx.Done():
			return records, ctx.Err()

		case <-window:
			logf("collection window of %s elapsed after %d lines", s.Duration, len(records))
			return records, nil

		case line, ok := <-lineChan:
			if !ok {
				if err := <-scanErrChan; err != nil {
					return records, fmt.Errorf("serial read failed: %w", err)
				}
				return records, nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			records = append(records, flowlog.LogRecord{
				Message:   line,
				CreatedAt: flowlog.FormatTimestamp(s.Clock.Now()),
			})
			if s.MaxRecords > 0 && len(records) >= s.MaxRecords {
				return records, nil
			}
		}
	}
}
