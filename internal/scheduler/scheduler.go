// Package scheduler runs the two independent, boundary-aligned loops the
// ingestion and signal binaries are built from: each wakes at its own
// fixed cadence, never overlaps its own cycles, and only stops on context
// cancellation. No cycle error ever propagates out of a loop or halts it —
// only a shutdown signal does; a degraded run is instead surfaced as a
// report event for the caller to log or alert on.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cohortsignal/engine/internal/clock"
)

// Report is one observable event emitted by a loop: a cycle outcome or a
// degradation signal, sent on a buffered channel so callers can log or
// alert without the loop ever blocking on a slow consumer.
type Report struct {
	Timestamp time.Time
	EventType string // loop_start | cycle_ok | cycle_error | degraded | shutdown
	Message   string
	Error     string
}

// Cycle is one unit of scheduled work, run once per boundary.
type Cycle func(ctx context.Context, boundary time.Time) error

// Loop runs Cycle at every boundary of Interval until ctx is cancelled.
type Loop struct {
	Name       string
	Interval   time.Duration
	Cycle      Cycle
	ReportChan chan<- Report

	errors *errorTracker
}

// errorWindow/errorThreshold bound how many cycle errors within a rolling
// window are tolerated before a "degraded" report fires — diagnostic only;
// it never halts the loop: no cycle error propagates out of a loop.
const errorWindow = 15 * time.Minute
const errorThreshold = 3

// Run blocks, executing Cycle at every aligned boundary of Interval, until
// ctx is cancelled. A cycle that overruns its boundary simply delays the
// next one — cycles never run concurrently with themselves.
func (l *Loop) Run(ctx context.Context) error {
	if l.errors == nil {
		l.errors = newErrorTracker(errorWindow, errorThreshold)
	}
	l.report("loop_start", fmt.Sprintf("%s loop starting, interval %s", l.Name, l.Interval), nil)

	for {
		next := clock.NextBoundary(time.Now(), l.Interval)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			l.report("shutdown", fmt.Sprintf("%s loop stopping", l.Name), nil)
			return nil
		case boundary := <-timer.C:
			l.runOne(ctx, boundary)
		}
	}
}

func (l *Loop) runOne(ctx context.Context, boundary time.Time) {
	aligned := boundary.Truncate(l.Interval)
	if err := l.Cycle(ctx, aligned); err != nil {
		l.report("cycle_error", fmt.Sprintf("%s cycle at %s failed", l.Name, aligned), err)
		if l.errors.record(time.Now()) {
			l.report("degraded", fmt.Sprintf("%s loop has exceeded %d errors in %s", l.Name, errorThreshold, errorWindow), nil)
		}
		return
	}
	l.report("cycle_ok", fmt.Sprintf("%s cycle at %s completed", l.Name, aligned), nil)
}

func (l *Loop) report(eventType, message string, err error) {
	if l.ReportChan == nil {
		return
	}
	rep := Report{Timestamp: time.Now(), EventType: eventType, Message: message}
	if err != nil {
		rep.Error = err.Error()
	}
	select {
	case l.ReportChan <- rep:
	default: // never block the loop on a slow/absent consumer
	}
}

// errorTracker is a rolling-window error counter, adapted from a halt-on-
// threshold circuit breaker into a pure diagnostic signal: record reports
// whether the threshold was just crossed, but the loop keeps running
// regardless — scheduler loops never halt on error, only on cancellation.
type errorTracker struct {
	window    time.Duration
	threshold int
	recent    []time.Time
}

func newErrorTracker(window time.Duration, threshold int) *errorTracker {
	return &errorTracker{window: window, threshold: threshold}
}

// record appends an error timestamp, drops entries older than the window,
// and reports whether the count now meets the threshold.
func (t *errorTracker) record(at time.Time) bool {
	t.recent = append(t.recent, at)
	cutoff := at.Add(-t.window)
	kept := t.recent[:0]
	for _, ts := range t.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.recent = kept
	return len(t.recent) == t.threshold
}
