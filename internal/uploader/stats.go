package uploader

import "sync/atomic"

type counters struct {
	enqueued  atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	stale     atomic.Uint64
	throttled atomic.Uint64
	backlog   atomic.Uint64
}

// Stats is a point-in-time view of the worker's counters.
type Stats struct {
	Enqueued       uint64 `json:"enqueued"`
	Published      uint64 `json:"published"`
	Failed         uint64 `json:"failed"`
	Skipped        uint64 `json:"skipped"`
	Stale          uint64 `json:"stale"`
	Throttled      uint64 `json:"throttled"`
	BacklogDropped uint64 `json:"backlogDropped"`
	QueueDepth     int    `json:"queueDepth"`
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Enqueued:       w.stats.enqueued.Load(),
		Published:      w.stats.published.Load(),
		Failed:         w.stats.failed.Load(),
		Skipped:        w.stats.skipped.Load(),
		Stale:          w.stats.stale.Load(),
		Throttled:      w.stats.throttled.Load(),
		BacklogDropped: w.stats.backlog.Load(),
		QueueDepth:     w.queue.Len(),
	}
}

// Processed is the number of records that reached a final state.
func (s Stats) Processed() uint64 {
	return s.Published + s.Failed + s.Skipped + s.Stale + s.Throttled + s.BacklogDropped
}
