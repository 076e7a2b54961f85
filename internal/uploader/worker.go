// Package uploader runs the background worker that takes archive records off
// a queue, enriches them and posts them to WeatherBug.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
	"github.com/i474232898/weatherbug-uploader/internal/weatherbug"
)

// ErrUploadSkipped is the synthetic failure reported in skip-upload mode.
var ErrUploadSkipped = errors.New("upload skipped")

// Logger is the logging capability the worker needs. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Poster sends a rendered request. *weatherbug.Client satisfies it.
type Poster interface {
	Post(ctx context.Context, req weatherbug.Request) error
}

// Options configures a Worker.
type Options struct {
	Credentials weatherbug.Credentials
	ServerURL   string

	SkipUpload  bool
	SkipMessage string

	PostInterval time.Duration // minimum spacing between posted records, 0 = off
	MaxBacklog   int           // queue depth that triggers catch-up, <= 0 = unlimited
	Stale        time.Duration // maximum record age, 0 = off
	QueueSize    int

	// HistoryTimeout bounds the archive queries made while enriching one record.
	HistoryTimeout time.Duration

	LogSuccess bool
	LogFailure bool
}

func (o Options) withDefaults() Options {
	if o.ServerURL == "" {
		o.ServerURL = weatherbug.DefaultServerURL
	}
	if o.SkipMessage == "" {
		o.SkipMessage = "upload disabled for this service"
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.HistoryTimeout <= 0 {
		o.HistoryTimeout = 60 * time.Second
	}
	return o
}

// Option adjusts worker internals, mostly for tests.
type Option func(*Worker)

// WithClock replaces the wall clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// Worker is the single consumer of a Queue. Exactly one upload is in flight
// at any time.
type Worker struct {
	opts    Options
	history weather.History
	poster  Poster
	logger  Logger
	queue   *Queue
	now     func() time.Time
	stats   counters

	// lastPost is only touched by the worker goroutine.
	lastPost int64

	startOnce sync.Once
	started   chan struct{}
	done      chan struct{}
	ctx       context.Context
}

// NewWorker creates a stopped worker. Call Start to begin consuming.
func NewWorker(history weather.History, poster Poster, opts Options, logger Logger, extra ...Option) *Worker {
	opts = opts.withDefaults()
	w := &Worker{
		opts:    opts,
		history: history,
		poster:  poster,
		logger:  logger,
		queue:   NewQueue(opts.QueueSize),
		now:     time.Now,
		started: make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     context.Background(),
	}
	for _, o := range extra {
		o(w)
	}
	return w
}

// Start launches the worker goroutine. Cancelling ctx does not interrupt an
// upload in flight; shutdown goes through Stop.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.ctx = context.WithoutCancel(ctx)
		close(w.started)
		go w.run()
	})
}

// Enqueue hands a record to the worker without blocking.
func (w *Worker) Enqueue(rec weather.Record) error {
	if err := w.queue.Push(rec); err != nil {
		return err
	}
	w.stats.enqueued.Add(1)
	return nil
}

// Stop pushes the shutdown sentinel and waits for the worker to exit or ctx
// to expire. Records queued ahead of the sentinel are still processed.
func (w *Worker) Stop(ctx context.Context) error {
	if err := w.queue.Shutdown(ctx); err != nil {
		return err
	}

	select {
	case <-w.started:
	default:
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)
	w.logger.Info("uploader: worker started",
		"station_number", w.opts.Credentials.StationNumber,
		"publisher_id", w.opts.Credentials.PublisherID,
	)

	for {
		msg := w.queue.pop()
		if msg.stop {
			w.logger.Info("uploader: shutdown requested; worker exiting")
			return
		}

		rec, stopAfter := w.trimBacklog(msg.rec)
		w.handle(rec)

		if stopAfter {
			w.logger.Info("uploader: shutdown requested; worker exiting")
			return
		}
	}
}

// trimBacklog keeps only the most recent queued record when the queue depth
// at dequeue time exceeds MaxBacklog. It reports whether the sentinel was
// met while draining.
func (w *Worker) trimBacklog(rec weather.Record) (weather.Record, bool) {
	if w.opts.MaxBacklog <= 0 {
		return rec, false
	}
	depth := 1 + w.queue.Len()
	if depth <= w.opts.MaxBacklog {
		return rec, false
	}

	dropped := 0
	stop := false
	for !stop {
		next, ok := w.queue.tryPop()
		if !ok {
			break
		}
		if next.stop {
			stop = true
			break
		}
		rec = next.rec
		dropped++
	}

	if dropped > 0 {
		w.stats.backlog.Add(uint64(dropped))
		w.logger.Info("uploader: backlog exceeded; discarded older records",
			"discarded", dropped,
			"max_backlog", w.opts.MaxBacklog,
			"kept", recordLabel(rec),
		)
	}
	return rec, stop
}

func (w *Worker) handle(rec weather.Record) {
	id := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			w.stats.failed.Add(1)
			w.logger.Error("uploader: unexpected failure processing record",
				"upload_id", id,
				"record", recordLabel(rec),
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if w.skipThisPost(id, rec) {
		return
	}

	err := w.process(rec)
	switch {
	case err == nil:
		w.stats.published.Add(1)
		if w.opts.LogSuccess {
			w.logger.Info("uploader: published record", "upload_id", id, "record", recordLabel(rec))
		}
	case errors.Is(err, ErrUploadSkipped):
		w.stats.skipped.Add(1)
		if w.opts.LogFailure {
			w.logger.Error("uploader: failed to publish record", "upload_id", id, "record", recordLabel(rec), "err", err)
		}
	default:
		w.stats.failed.Add(1)
		if w.opts.LogFailure {
			w.logger.Error("uploader: failed to publish record", "upload_id", id, "record", recordLabel(rec), "err", err)
		}
	}
}

// skipThisPost applies the staleness and post-interval policies.
func (w *Worker) skipThisPost(id string, rec weather.Record) bool {
	if w.opts.Stale > 0 {
		age := w.now().Sub(rec.Time())
		if age > w.opts.Stale {
			w.stats.stale.Add(1)
			w.logger.Info("uploader: record is stale; discarding",
				"upload_id", id,
				"record", recordLabel(rec),
				"age", age.Round(time.Second).String(),
				"stale", w.opts.Stale.String(),
			)
			return true
		}
	}

	if w.opts.PostInterval > 0 {
		since := rec.DateTime - w.lastPost
		if since < int64(w.opts.PostInterval/time.Second) {
			w.stats.throttled.Add(1)
			w.logger.Debug("uploader: post interval has not passed",
				"upload_id", id,
				"record", recordLabel(rec),
				"since_last", since,
				"post_interval", w.opts.PostInterval.String(),
			)
			return true
		}
	}

	w.lastPost = rec.DateTime
	return false
}

// process enriches, renders and posts one record.
func (w *Worker) process(rec weather.Record) error {
	hctx, cancel := context.WithTimeout(w.ctx, w.opts.HistoryTimeout)
	enriched, err := weather.Enrich(hctx, rec, w.history)
	cancel()
	if err != nil {
		return err
	}

	if w.opts.SkipUpload {
		return fmt.Errorf("%w: %s", ErrUploadSkipped, w.opts.SkipMessage)
	}

	req, err := weatherbug.BuildRequest(enriched, w.opts.Credentials, w.opts.ServerURL)
	if err != nil {
		return err
	}
	w.logger.Debug("uploader: request built", "url", req.Redacted())

	return w.poster.Post(w.ctx, req)
}

// recordLabel renders a record timestamp the way the logs show it.
func recordLabel(rec weather.Record) string {
	return fmt.Sprintf("%s (%d)", rec.Time().Format("2006-01-02 15:04:05 UTC"), rec.DateTime)
}
