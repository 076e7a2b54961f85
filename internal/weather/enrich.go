package weather

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingRequiredField is returned when a record lacks an observation
	// the upload cannot do without.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrHistoryQueryFailed is returned when an aggregate query against the
	// archive fails.
	ErrHistoryQueryFailed = errors.New("history query failed")
)

// Derived fields added by Enrich.
const (
	FieldMonthRain  = "monthRain"
	FieldYearRain   = "yearRain"
	FieldDayRain    = "dayRain"
	FieldOutTempMax = "outTempMax"
	FieldOutTempMin = "outTempMin"
	FieldWindSpeed  = "windSpeed"
)

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfMonth returns the first instant of the UTC calendar month containing t.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// StartOfYear returns the first instant of the UTC calendar year containing t.
func StartOfYear(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

type aggregateFunc func(ctx context.Context, measure string, from, to int64) (Value, error)

type derivation struct {
	field   string
	op      string
	measure string
	start   time.Time
	fn      aggregateFunc
}

// Enrich adds the month and year rain totals and the day's outdoor
// temperature extremes to a copy of rec, then converts the whole copy to US
// units. A record without windSpeed is rejected before any query is issued.
//
// History values come back in the store's native units, which are the units
// of the source record, so they are attached before conversion and converted
// with rec.Units as their origin.
func Enrich(ctx context.Context, rec Record, history History) (Record, error) {
	if v, ok := rec.Get(FieldWindSpeed); !ok || !v.Valid {
		return Record{}, fmt.Errorf("%w: %s", ErrMissingRequiredField, FieldWindSpeed)
	}
	if !rec.Units.Valid() {
		return Record{}, fmt.Errorf("unknown unit system %d", int(rec.Units))
	}

	ts := rec.Time()
	derivations := []derivation{
		{FieldMonthRain, "sum", "rain", StartOfMonth(ts), history.Sum},
		{FieldYearRain, "sum", "rain", StartOfYear(ts), history.Sum},
		{FieldOutTempMax, "max", "outTemp", StartOfDay(ts), history.Max},
		{FieldOutTempMin, "min", "outTemp", StartOfDay(ts), history.Min},
	}
	if _, ok := rec.Get(FieldDayRain); !ok {
		derivations = append(derivations, derivation{FieldDayRain, "sum", "rain", StartOfDay(ts), history.Sum})
	}

	out := rec.Clone()
	for _, d := range derivations {
		v, err := d.fn(ctx, d.measure, d.start.Unix(), rec.DateTime)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s(%s): %w", ErrHistoryQueryFailed, d.op, d.measure, err)
		}
		out.Set(d.field, v)
	}

	return ToUS(out)
}
