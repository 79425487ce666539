package monitor

import (
	"runtime"
	"sync/atomic"
	"time"

	"vrx/station/pkg/logger"
)

// Metrics holds global pipeline counters
type Metrics struct {
	// Raw bytes read from the peer socket
	BytesIn int64
	// Complete frames extracted by the reassembler
	FramesExtracted int64
	// Frames decoded and enqueued for display
	FramesDecoded int64
	// Per-frame decode failures
	DecodeErrors int64
	// Server start time
	ServerStart time.Time
}

// Global metrics instance
var Global = &Metrics{
	ServerStart: time.Now(),
}

// LogPeriodic logs runtime and pipeline metrics at the specified interval
func LogPeriodic(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		elapsed := time.Since(Global.ServerStart).Seconds()
		var throughput float64
		if elapsed > 0 {
			throughput = float64(atomic.LoadInt64(&Global.BytesIn)) / elapsed / 1024 / 1024
		}

		logger.Sugar.Infof("[Metrics] Goroutines=%d | HeapAlloc=%dMB | Ingest=%.2fMB/s | Extracted=%d | Decoded=%d | DecodeErrors=%d",
			runtime.NumGoroutine(),
			m.HeapAlloc/1024/1024,
			throughput,
			atomic.LoadInt64(&Global.FramesExtracted),
			atomic.LoadInt64(&Global.FramesDecoded),
			atomic.LoadInt64(&Global.DecodeErrors),
		)
	}
}

// RecordBytes records raw socket bytes received
func RecordBytes(n int64) {
	atomic.AddInt64(&Global.BytesIn, n)
}

// RecordExtracted records complete frames leaving the reassembler
func RecordExtracted(n int64) {
	atomic.AddInt64(&Global.FramesExtracted, n)
}

// RecordDecoded records one frame decoded and enqueued
func RecordDecoded() {
	atomic.AddInt64(&Global.FramesDecoded, 1)
}

// RecordDecodeError records one dropped frame due to a decode failure
func RecordDecodeError() {
	atomic.AddInt64(&Global.DecodeErrors, 1)
}
