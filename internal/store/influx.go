package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

type fluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type seriesDeleter interface {
	DeleteWithName(ctx context.Context, orgName, bucketName string, start, stop time.Time, predicate string) error
}

// InfluxStore keeps the archive as points of one measurement, one field per
// observation. Null readings are not written.
type InfluxStore struct {
	query       fluxQuerier
	write       pointWriter
	del         seriesDeleter
	org         string
	bucket      string
	measurement string
}

// NewInfluxStore creates a store on top of an InfluxDB v2 client.
func NewInfluxStore(client influxdb2.Client, org, bucket, measurement string) *InfluxStore {
	return &InfluxStore{
		query:       client.QueryAPI(org),
		write:       client.WriteAPIBlocking(org, bucket),
		del:         client.DeleteAPI(),
		org:         org,
		bucket:      bucket,
		measurement: measurement,
	}
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// source renders the common head of every query. Flux ranges are
// start-inclusive and stop-exclusive, so both ends shift by one second to
// select from < dateTime <= to.
func (s *InfluxStore) source(from, to int64) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q)`,
		s.bucket,
		fluxTime(time.Unix(from+1, 0)),
		fluxTime(time.Unix(to+1, 0)),
		s.measurement)
}

func (s *InfluxStore) Sum(ctx context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(ctx, "sum", measure, from, to)
}

func (s *InfluxStore) Max(ctx context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(ctx, "max", measure, from, to)
}

func (s *InfluxStore) Min(ctx context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(ctx, "min", measure, from, to)
}

func (s *InfluxStore) aggregate(ctx context.Context, fn, measure string, from, to int64) (weather.Value, error) {
	if !measurePattern.MatchString(measure) {
		return weather.Null, fmt.Errorf("%w: %q", ErrInvalidMeasure, measure)
	}

	q := fmt.Sprintf(`%s
  |> filter(fn: (r) => r._field == %q)
  |> group()
  |> %s()`, s.source(from, to), measure, fn)

	result, err := s.query.Query(ctx, q)
	if err != nil {
		return weather.Null, fmt.Errorf("querying bucket %s: %w", s.bucket, err)
	}
	defer result.Close()

	out := weather.Null
	for result.Next() {
		if f, ok := numeric(result.Record().Value()); ok {
			out = weather.Float(f)
		}
	}
	if err := result.Err(); err != nil {
		return weather.Null, fmt.Errorf("reading bucket %s: %w", s.bucket, err)
	}
	return out, nil
}

// Save writes rec as a single point stamped with its dateTime.
func (s *InfluxStore) Save(ctx context.Context, rec weather.Record) error {
	p := influxdb2.NewPointWithMeasurement(s.measurement).
		AddField(weather.KeyUnits, int64(rec.Units)).
		SetTime(rec.Time())
	for _, name := range rec.FieldNames() {
		if v, _ := rec.Get(name); v.Valid {
			p.AddField(name, v.Float)
		}
	}
	p.SortFields()

	if err := s.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("writing archive record %d: %w", rec.DateTime, err)
	}
	return nil
}

// Latest returns the newest point, pivoted back into a record.
func (s *InfluxStore) Latest(ctx context.Context) (weather.Record, error) {
	q := fmt.Sprintf(`from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: 1)`, s.bucket, s.measurement)

	result, err := s.query.Query(ctx, q)
	if err != nil {
		return weather.Record{}, fmt.Errorf("querying latest record: %w", err)
	}
	defer result.Close()

	if !result.Next() {
		if err := result.Err(); err != nil {
			return weather.Record{}, fmt.Errorf("querying latest record: %w", err)
		}
		return weather.Record{}, ErrNotFound
	}

	row := result.Record()
	rec := weather.NewRecord(row.Time().Unix(), weather.US)
	for k, v := range row.Values() {
		if strings.HasPrefix(k, "_") || k == "result" || k == "table" {
			continue
		}
		f, ok := numeric(v)
		if k == weather.KeyUnits {
			rec.Units = weather.UnitSystem(int(f))
			continue
		}
		if ok {
			rec.Set(k, weather.Float(f))
		} else {
			rec.Set(k, weather.Null)
		}
	}
	return rec, nil
}

// Prune deletes points older than cutoff. InfluxDB does not report how many
// points a delete removed, so the count is always zero.
func (s *InfluxStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	predicate := fmt.Sprintf(`_measurement=%q`, s.measurement)
	stop := cutoff.Add(-time.Nanosecond)
	if err := s.del.DeleteWithName(ctx, s.org, s.bucket, time.Unix(0, 0), stop, predicate); err != nil {
		return 0, fmt.Errorf("pruning archive: %w", err)
	}
	return 0, nil
}
