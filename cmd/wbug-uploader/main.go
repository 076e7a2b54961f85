package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/weatherbug-uploader/internal/api/http"
	"github.com/i474232898/weatherbug-uploader/internal/config"
	"github.com/i474232898/weatherbug-uploader/internal/scheduler"
	"github.com/i474232898/weatherbug-uploader/internal/store"
	"github.com/i474232898/weatherbug-uploader/internal/uploader"
	"github.com/i474232898/weatherbug-uploader/internal/weather"
	"github.com/i474232898/weatherbug-uploader/internal/weatherbug"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("wbug-uploader stopped with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	archive, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	wb := cfg.WeatherBug
	client := weatherbug.NewClient(&http.Client{},
		weatherbug.RetryPolicy{
			MaxTries: wb.MaxTries,
			Wait:     wb.RetryWait,
			Timeout:  wb.Timeout,
		},
		logger,
		weatherbug.WithBreakerThreshold(wb.BreakerThreshold),
	)

	worker := uploader.NewWorker(archive, client, uploader.Options{
		Credentials: weatherbug.Credentials{
			PublisherID:   wb.PublisherID,
			StationNumber: wb.StationNumber,
			Password:      wb.Password.Unmask(),
		},
		ServerURL:    wb.ServerURL,
		SkipUpload:   wb.SkipUpload,
		SkipMessage:  wb.SkipMessage,
		PostInterval: wb.PostInterval,
		MaxBacklog:   wb.MaxBacklog,
		Stale:        wb.Stale,
		QueueSize:    wb.QueueSize,
		LogSuccess:   wb.LogSuccess,
		LogFailure:   wb.LogFailure,

		HistoryTimeout: wb.Timeout,
	}, logger)

	lat, lon := cfg.Coordinates()
	logger.Info("data will be uploaded",
		"station_number", wb.StationNumber,
		"publisher_id", wb.PublisherID,
		"latitude", lat,
		"longitude", lon,
		"store", cfg.Store.Backend,
	)
	worker.Start(ctx)

	var pruner weather.Pruner
	if p, ok := archive.(weather.Pruner); ok {
		pruner = p
	}
	sched := scheduler.New(scheduler.Config{
		PruneInterval:  cfg.Scheduler.PruneInterval,
		StatusInterval: cfg.Scheduler.StatusInterval,
		MaxAge:         cfg.Store.MaxAge,
	}, pruner, worker, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp("wbug-uploader")
	app.Use(fiberlogger.New())
	app.Use(recover.New())
	httpapi.RegisterRoutes(app, archive, worker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ingest API listening", "port", cfg.Port)
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("error during API shutdown", "err", err)
		}

		// A record in flight may need its history queries and every try.
		stopCtx, cancelStop := context.WithTimeout(context.Background(),
			wb.Timeout+time.Duration(wb.MaxTries)*(wb.Timeout+wb.RetryWait)+5*time.Second)
		defer cancelStop()
		if err := worker.Stop(stopCtx); err != nil {
			logger.Error("upload worker did not stop in time", "err", err)
		}

		st := worker.Stats()
		logger.Info("shutdown complete", "published", st.Published, "failed", st.Failed, "queued", st.QueueDepth)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openStore builds the configured archive backend and a func that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (weather.ArchiveStore, func(), error) {
	sc := cfg.Store
	switch sc.Backend {
	case "postgres":
		pool, err := store.OpenPool(ctx, sc.DatabaseURL.Unmask())
		if err != nil {
			return nil, nil, err
		}
		pg, err := store.NewPostgresStore(pool, sc.ArchiveTable)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using PostgreSQL archive", "table", sc.ArchiveTable)
		return pg, pool.Close, nil

	case "influx":
		client := influxdb2.NewClient(sc.InfluxURL, sc.InfluxToken.Unmask())
		ok, err := client.Ping(ctx)
		if err != nil || !ok {
			client.Close()
			return nil, nil, fmt.Errorf("pinging InfluxDB at %s: %v", sc.InfluxURL, err)
		}
		logger.Info("using InfluxDB archive", "bucket", sc.InfluxBucket, "measurement", sc.InfluxMeasurement)
		return store.NewInfluxStore(client, sc.InfluxOrg, sc.InfluxBucket, sc.InfluxMeasurement), client.Close, nil

	default:
		logger.Info("using in-memory archive", "max_age", sc.MaxAge.String())
		return store.NewMemoryStore(), func() {}, nil
	}
}
