package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide chat traffic counter.
var Stats = &stats{}

type stats struct {
	LinesSent atomic.Int64 // chat lines written to the DataChannel
	LinesRecv atomic.Int64 // chat lines read from the DataChannel
	BytesSent atomic.Int64 // cumulative bytes written to the DataChannel
	BytesRecv atomic.Int64 // cumulative bytes read from the DataChannel
	Signals   atomic.Int64 // signaling messages handed to the engine
}

func (s *stats) AddSent(n int) {
	s.LinesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.LinesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddSignal() { s.Signals.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs chat statistics at debug
// level every interval while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.LinesSent.Load()
				recv := Stats.LinesRecv.Load()

				if sent != prevSent || recv != prevRecv {
					pterm.DefaultLogger.Debug(formatStats(
						sent-prevSent, recv-prevRecv,
						float64(Stats.BytesSent.Load()), float64(Stats.BytesRecv.Load()),
					))
				}

				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a one-line summary of chat traffic for the logger.
func formatStats(sentLines, recvLines int64, totalSent, totalRecv float64) string {
	return fmt.Sprintf("Lines: %3d↑ %3d↓ | Total: %s↑ %s↓",
		sentLines,
		recvLines,
		formatBytes(totalSent),
		formatBytes(totalRecv),
	)
}
