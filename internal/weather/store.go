package weather

import (
	"context"
	"time"
)

// History is read access to the archive time series. Every query covers the
// half-open window from < dateTime <= to, in epoch seconds, and follows SQL
// aggregate semantics: no rows (or only null readings) yields Null.
//
// Values are returned in the store's native unit system.
type History interface {
	Sum(ctx context.Context, measure string, from, to int64) (Value, error)
	Max(ctx context.Context, measure string, from, to int64) (Value, error)
	Min(ctx context.Context, measure string, from, to int64) (Value, error)
}

// ArchiveStore is the contract every archive backend (memory, PostgreSQL,
// InfluxDB) must satisfy.
type ArchiveStore interface {
	History
	Save(ctx context.Context, rec Record) error
	Latest(ctx context.Context) (Record, error)
}

// Pruner is implemented by stores that enforce a retention window.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
