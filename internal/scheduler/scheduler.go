package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weatherbug-uploader/internal/uploader"
	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

// StatsSource reports upload counters.
type StatsSource interface {
	Stats() uploader.Stats
}

// Config holds the job intervals.
type Config struct {
	PruneInterval  time.Duration
	StatusInterval time.Duration
	MaxAge         time.Duration // archive retention, 0 = keep everything
}

// Scheduler runs the housekeeping jobs: archive retention and a periodic
// status line with the upload counters.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	pruner    weather.Pruner
	stats     StatsSource
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a new Scheduler. pruner may be nil when the store keeps no
// retention window.
func New(cfg Config, pruner weather.Pruner, stats StatsSource, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cfg:       cfg,
		pruner:    pruner,
		stats:     stats,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.pruner != nil && s.cfg.MaxAge > 0 && s.cfg.PruneInterval > 0 {
		_, err := s.scheduler.Every(s.cfg.PruneInterval).SingletonMode().Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.Prune(ctx)
		})
		if err != nil {
			return err
		}
	} else {
		s.logger.Info("scheduler: archive retention disabled")
	}

	if s.stats != nil && s.cfg.StatusInterval > 0 {
		_, err := s.scheduler.Every(s.cfg.StatusInterval).WaitForSchedule().Do(s.LogStatus)
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Prune removes archive records older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.MaxAge)
	n, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduler: archive prune failed", "cutoff", cutoff.UTC().Format(time.RFC3339), "err", err)
		return
	}
	s.logger.Info("scheduler: archive pruned", "cutoff", cutoff.UTC().Format(time.RFC3339), "removed", n)
}

// LogStatus writes the current upload counters.
func (s *Scheduler) LogStatus() {
	st := s.stats.Stats()
	s.logger.Info("scheduler: uploader status",
		"enqueued", st.Enqueued,
		"published", st.Published,
		"failed", st.Failed,
		"skipped", st.Skipped,
		"stale", st.Stale,
		"throttled", st.Throttled,
		"backlog_dropped", st.BacklogDropped,
		"queue_depth", st.QueueDepth,
	)
}
