package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	queues  sync.Map
	batches sync.Map
}

type queueStats struct {
	pushed   atomic.Int64
	dropped  atomic.Int64
	timeouts atomic.Int64
	released atomic.Int64
	rejected atomic.Int64
}

type batchStats struct {
	runs          atomic.Int64
	units         atomic.Int64
	timedOut      atomic.Int64
	durationNanos atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncPushed(queue string) {
	if r == nil {
		return
	}
	r.queueStats(queue).pushed.Add(1)
}

func (r *Registry) IncDropped(queue string) {
	if r == nil {
		return
	}
	r.queueStats(queue).dropped.Add(1)
}

func (r *Registry) IncTimeout(queue string) {
	if r == nil {
		return
	}
	r.queueStats(queue).timeouts.Add(1)
}

func (r *Registry) IncRejected(queue string) {
	if r == nil {
		return
	}
	r.queueStats(queue).rejected.Add(1)
}

func (r *Registry) AddReleased(queue string, count int) {
	if r == nil || count <= 0 {
		return
	}
	r.queueStats(queue).released.Add(int64(count))
}

func (r *Registry) RecordBatch(name string, completed int, duration time.Duration, timedOut bool) {
	if r == nil {
		return
	}
	stats := r.batchStats(name)
	stats.runs.Add(1)
	stats.units.Add(int64(completed))
	stats.durationNanos.Add(duration.Nanoseconds())
	if timedOut {
		stats.timedOut.Add(1)
	}
}

// QueueCounts is a point-in-time copy of one queue's counters.
type QueueCounts struct {
	Pushed   int64
	Dropped  int64
	Timeouts int64
	Released int64
	Rejected int64
}

func (r *Registry) Queue(name string) QueueCounts {
	if r == nil {
		return QueueCounts{}
	}
	stats := r.queueStats(name)
	return QueueCounts{
		Pushed:   stats.pushed.Load(),
		Dropped:  stats.dropped.Load(),
		Timeouts: stats.timeouts.Load(),
		Released: stats.released.Load(),
		Rejected: stats.rejected.Load(),
	}
}

type BatchCounts struct {
	Runs     int64
	Units    int64
	TimedOut int64
	Duration time.Duration
}

func (r *Registry) Batch(name string) BatchCounts {
	if r == nil {
		return BatchCounts{}
	}
	stats := r.batchStats(name)
	return BatchCounts{
		Runs:     stats.runs.Load(),
		Units:    stats.units.Load(),
		TimedOut: stats.timedOut.Load(),
		Duration: time.Duration(stats.durationNanos.Load()),
	}
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	queueNames := mapKeys(&r.queues)
	sort.Strings(queueNames)

	writeFamily(writer, "ctsharness_events_pushed_total", "Events pushed into collector queues", "counter")
	writeFamily(writer, "ctsharness_events_dropped_total", "Events evicted by the drop-oldest policy", "counter")
	writeFamily(writer, "ctsharness_events_released_total", "Buffered events released by drain, close, eviction or discard", "counter")
	writeFamily(writer, "ctsharness_events_rejected_total", "Events pushed after close", "counter")
	writeFamily(writer, "ctsharness_wait_timeouts_total", "Bounded waits that timed out", "counter")
	for _, name := range queueNames {
		stats := r.queueStats(name)
		label := formatLabel(name)
		fmt.Fprintf(writer, "ctsharness_events_pushed_total{queue=%s} %d\n", label, stats.pushed.Load())
		fmt.Fprintf(writer, "ctsharness_events_dropped_total{queue=%s} %d\n", label, stats.dropped.Load())
		fmt.Fprintf(writer, "ctsharness_events_released_total{queue=%s} %d\n", label, stats.released.Load())
		fmt.Fprintf(writer, "ctsharness_events_rejected_total{queue=%s} %d\n", label, stats.rejected.Load())
		fmt.Fprintf(writer, "ctsharness_wait_timeouts_total{queue=%s} %d\n", label, stats.timeouts.Load())
	}

	batchNames := mapKeys(&r.batches)
	sort.Strings(batchNames)

	writeFamily(writer, "ctsharness_batch_duration_seconds", "Time-boxed batch duration in seconds", "summary")
	writeFamily(writer, "ctsharness_batch_units_total", "Units completed by time-boxed batches", "counter")
	writeFamily(writer, "ctsharness_batch_timeouts_total", "Time-boxed batches that hit their deadline", "counter")
	for _, name := range batchNames {
		stats := r.batchStats(name)
		label := formatLabel(name)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "ctsharness_batch_duration_seconds_sum{batch=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "ctsharness_batch_duration_seconds_count{batch=%s} %d\n", label, stats.runs.Load())
		fmt.Fprintf(writer, "ctsharness_batch_units_total{batch=%s} %d\n", label, stats.units.Load())
		fmt.Fprintf(writer, "ctsharness_batch_timeouts_total{batch=%s} %d\n", label, stats.timedOut.Load())
	}

	return nil
}

func (r *Registry) queueStats(name string) *queueStats {
	name = normalizeName(name)
	value, _ := r.queues.LoadOrStore(name, &queueStats{})
	return value.(*queueStats)
}

func (r *Registry) batchStats(name string) *batchStats {
	name = normalizeName(name)
	value, _ := r.batches.LoadOrStore(name, &batchStats{})
	return value.(*batchStats)
}

func normalizeName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "unknown"
	}
	return name
}

func mapKeys(values *sync.Map) []string {
	var names []string
	values.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeFamily(writer io.Writer, metric, help, kind string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
	fmt.Fprintf(writer, "# TYPE %s %s\n", metric, kind)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
