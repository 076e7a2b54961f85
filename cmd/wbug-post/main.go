// Command wbug-post publishes a single synthetic observation to WeatherBug.
// It is meant for checking credentials and connectivity:
//
//	wbug-post -id PUBLISHER_ID -num STATION_NUMBER -pw PASSWORD
//	wbug-post PUBLISHER_ID STATION_NUMBER PASSWORD
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/i474232898/weatherbug-uploader/internal/store"
	"github.com/i474232898/weatherbug-uploader/internal/uploader"
	"github.com/i474232898/weatherbug-uploader/internal/weather"
	"github.com/i474232898/weatherbug-uploader/internal/weatherbug"
)

var (
	publisherID   = flag.String("id", "", "WeatherBug publisher ID")
	stationNumber = flag.String("num", "", "WeatherBug station number")
	password      = flag.String("pw", "", "WeatherBug password")
	serverURL     = flag.String("url", weatherbug.DefaultServerURL, "live-data endpoint")
	dryRun        = flag.Bool("dry-run", false, "enrich the record but do not upload it")
	tries         = flag.Int("tries", 3, "upload attempts")
	timeout       = flag.Duration("timeout", 60*time.Second, "per-attempt timeout")
	verbose       = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	creds, err := credentials(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	if !post(creds, logger) {
		os.Exit(1)
	}
}

// credentials takes the flags, or ID NUM PASSWORD as positional arguments.
func credentials(args []string) (weatherbug.Credentials, error) {
	c := weatherbug.Credentials{
		PublisherID:   *publisherID,
		StationNumber: *stationNumber,
		Password:      *password,
	}
	if len(args) == 3 {
		c = weatherbug.Credentials{PublisherID: args[0], StationNumber: args[1], Password: args[2]}
	}
	if c.PublisherID == "" || c.StationNumber == "" || c.Password == "" {
		return c, fmt.Errorf("publisher id, station number and password are required")
	}
	return c, nil
}

func syntheticRecord(now time.Time) weather.Record {
	rec := weather.NewRecord(now.Unix(), weather.US)
	rec.Set("outTemp", weather.Float(32.5))
	rec.Set("outHumidity", weather.Float(24))
	rec.Set("windSpeed", weather.Float(3.2))
	rec.Set("windDir", weather.Float(180))
	rec.Set("barometer", weather.Float(30.01))
	return rec
}

func post(creds weatherbug.Credentials, logger *slog.Logger) bool {
	ctx := context.Background()
	archive := store.NewMemoryStore()

	rec := syntheticRecord(time.Now())
	if err := archive.Save(ctx, rec); err != nil {
		logger.Error("could not store synthetic record", "err", err)
		return false
	}

	client := weatherbug.NewClient(&http.Client{},
		weatherbug.RetryPolicy{MaxTries: *tries, Wait: 5 * time.Second, Timeout: *timeout},
		logger,
	)
	worker := uploader.NewWorker(archive, client, uploader.Options{
		Credentials: creds,
		ServerURL:   *serverURL,
		SkipUpload:  *dryRun,
		SkipMessage: "dry run",
		LogSuccess:  true,
		LogFailure:  true,

		HistoryTimeout: *timeout,
	}, logger)

	if err := worker.Enqueue(rec); err != nil {
		logger.Error("could not queue synthetic record", "err", err)
		return false
	}
	worker.Start(ctx)
	if err := worker.Stop(ctx); err != nil {
		logger.Error("upload worker did not stop", "err", err)
		return false
	}

	st := worker.Stats()
	if *dryRun && st.Skipped == 1 {
		fmt.Println("dry run: record enriched, not uploaded")
		return true
	}
	if st.Published == 1 {
		fmt.Println("record published")
		return true
	}
	fmt.Println("record not published")
	return false
}
