// Package store holds the archive backends the uploader reads history from.
package store

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

var (
	// ErrNotFound is returned when the archive holds no records.
	ErrNotFound = errors.New("no archive records")
)

// MemoryStore is a concurrency-safe in-memory archive. Records are kept
// ordered by dateTime; a second record with the same dateTime is ignored,
// matching the primary key of the SQL archive.
type MemoryStore struct {
	mu      sync.RWMutex
	records []weather.Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save inserts a copy of rec at its place in time order.
func (s *MemoryStore) Save(_ context.Context, rec weather.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].DateTime >= rec.DateTime
	})
	if i < len(s.records) && s.records[i].DateTime == rec.DateTime {
		return nil
	}

	s.records = append(s.records, weather.Record{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = rec.Clone()
	return nil
}

// Latest returns the most recent record.
func (s *MemoryStore) Latest(_ context.Context) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return weather.Record{}, ErrNotFound
	}
	return s.records[len(s.records)-1].Clone(), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Prune drops every record older than cutoff.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	limit := cutoff.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].DateTime >= limit
	})
	if i == 0 {
		return 0, nil
	}
	s.records = append(s.records[:0:0], s.records[i:]...)
	return i, nil
}

func (s *MemoryStore) Sum(_ context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(measure, from, to, func(acc, v float64) float64 { return acc + v }), nil
}

func (s *MemoryStore) Max(_ context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(measure, from, to, math.Max), nil
}

func (s *MemoryStore) Min(_ context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(measure, from, to, math.Min), nil
}

// aggregate folds the non-null readings of measure in from < dateTime <= to.
// No readings yields Null.
func (s *MemoryStore) aggregate(measure string, from, to int64, fold func(acc, v float64) float64) weather.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].DateTime > from
	})

	out := weather.Null
	for _, rec := range s.records[start:] {
		if rec.DateTime > to {
			break
		}
		v, ok := rec.Get(measure)
		if !ok || !v.Valid {
			continue
		}
		if !out.Valid {
			out = weather.Float(v.Float)
			continue
		}
		out.Float = fold(out.Float, v.Float)
	}
	return out
}
