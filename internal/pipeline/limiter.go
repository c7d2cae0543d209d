package pipeline

import (
	"time"

	"firestige.xyz/pcapcpu/internal/core"
)

// FailureLogConfig bounds how many skipped-packet log lines are written.
type FailureLogConfig struct {
	MaxPerWindow int           // lines per reason per window (0 = unlimited)
	Window       time.Duration // default 10s of capture time
}

// failureLogLimiter counts log lines per failure reason within a window of
// capture time. Windows rotate on record timestamps, so a replay of the same
// file logs the same lines. Not safe for concurrent use.
type failureLogLimiter struct {
	current      map[core.Reason]int
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int
	suppressed   uint64
}

// newFailureLogLimiter returns nil when limiting is disabled.
func newFailureLogLimiter(cfg FailureLogConfig) *failureLogLimiter {
	if cfg.MaxPerWindow <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &failureLogLimiter{
		current:      make(map[core.Reason]int),
		windowSize:   cfg.Window,
		maxPerWindow: cfg.MaxPerWindow,
	}
}

// Allow reports whether a failure with reason at time now may be logged.
// A nil limiter allows everything.
func (l *failureLogLimiter) Allow(reason core.Reason, now time.Time) bool {
	if l == nil {
		return true
	}
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.windowSize || now.Before(l.windowStart) {
		clear(l.current)
		l.windowStart = now
	}
	l.current[reason]++
	if l.current[reason] > l.maxPerWindow {
		l.suppressed++
		return false
	}
	return true
}

// Suppressed returns how many log lines were dropped.
func (l *failureLogLimiter) Suppressed() uint64 {
	if l == nil {
		return 0
	}
	return l.suppressed
}
