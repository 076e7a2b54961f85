package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrInvalidMeasure is returned for observation names that cannot be used as
// a column name.
var ErrInvalidMeasure = errors.New("invalid measure name")

var (
	measurePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	tablePattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

const (
	colDateTime = `"dateTime"`
	colUnits    = `"usUnits"`
)

// PostgresStore reads and writes a station-style archive table: one row per
// archive interval keyed by "dateTime", one DOUBLE PRECISION column per
// observation.
type PostgresStore struct {
	db    DBTX
	table string // sanitized

	mu      sync.Mutex
	columns map[string]bool
}

// OpenPool connects to PostgreSQL and verifies the connection.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a store over table, which may be schema-qualified.
func NewPostgresStore(db DBTX, table string) (*PostgresStore, error) {
	parts := strings.Split(table, ".")
	for _, p := range parts {
		if !tablePattern.MatchString(p) {
			return nil, fmt.Errorf("invalid archive table name %q", table)
		}
	}
	return &PostgresStore{
		db:      db,
		table:   pgx.Identifier(parts).Sanitize(),
		columns: make(map[string]bool),
	}, nil
}

// archiveColumns are created with the table so that the history queries
// made during enrichment always have a column to read.
var archiveColumns = []string{
	"barometer", "pressure", "altimeter",
	"inTemp", "outTemp", "inHumidity", "outHumidity",
	"windSpeed", "windDir", "windGust", "windGustDir",
	"rainRate", "rain", "dewpoint", "windchill", "heatindex",
	"radiation", "UV",
}

// Migrate creates the archive table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	defs := []string{
		colDateTime + " BIGINT PRIMARY KEY",
		colUnits + " INTEGER NOT NULL",
	}
	for _, name := range archiveColumns {
		defs = append(defs, pgx.Identifier{name}.Sanitize()+" DOUBLE PRECISION")
	}
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.table, strings.Join(defs, ",\n\t"))
	if _, err := s.db.Exec(ctx, q); err != nil {
		return fmt.Errorf("creating archive table: %w", err)
	}

	s.mu.Lock()
	for _, name := range archiveColumns {
		s.columns[name] = true
	}
	s.mu.Unlock()
	return nil
}

// isUndefinedColumn reports whether err is PostgreSQL's undefined_column
// error. An observation the table has never stored aggregates to null.
func isUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42703"
}

func column(measure string) (string, error) {
	if !measurePattern.MatchString(measure) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMeasure, measure)
	}
	return pgx.Identifier{measure}.Sanitize(), nil
}

func (s *PostgresStore) Sum(ctx context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(ctx, "SUM", measure, from, to)
}

func (s *PostgresStore) Max(ctx context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(ctx, "MAX", measure, from, to)
}

func (s *PostgresStore) Min(ctx context.Context, measure string, from, to int64) (weather.Value, error) {
	return s.aggregate(ctx, "MIN", measure, from, to)
}

func (s *PostgresStore) aggregate(ctx context.Context, fn, measure string, from, to int64) (weather.Value, error) {
	col, err := column(measure)
	if err != nil {
		return weather.Null, err
	}

	q := fmt.Sprintf(`SELECT %s(%s)::double precision FROM %s WHERE %s > $1 AND %s <= $2`,
		fn, col, s.table, colDateTime, colDateTime)

	var v *float64
	if err := s.db.QueryRow(ctx, q, from, to).Scan(&v); err != nil {
		if isUndefinedColumn(err) {
			return weather.Null, nil
		}
		return weather.Null, fmt.Errorf("querying %s: %w", s.table, err)
	}
	if v == nil {
		return weather.Null, nil
	}
	return weather.Float(*v), nil
}

// Save inserts rec. Columns for observations the table has not seen yet are
// added first. An existing row with the same dateTime is left untouched.
func (s *PostgresStore) Save(ctx context.Context, rec weather.Record) error {
	names := rec.FieldNames()
	cols := make([]string, 0, len(names)+2)
	args := make([]any, 0, len(names)+2)
	cols = append(cols, colDateTime, colUnits)
	args = append(args, rec.DateTime, int(rec.Units))

	for _, name := range names {
		col, err := column(name)
		if err != nil {
			return err
		}
		if err := s.ensureColumn(ctx, name, col); err != nil {
			return err
		}
		v, _ := rec.Get(name)
		cols = append(cols, col)
		if v.Valid {
			args = append(args, v.Float)
		} else {
			args = append(args, nil)
		}
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
		s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), colDateTime)

	if _, err := s.db.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("inserting archive record %d: %w", rec.DateTime, err)
	}
	return nil
}

func (s *PostgresStore) ensureColumn(ctx context.Context, name, col string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.columns[name] {
		return nil
	}
	q := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s DOUBLE PRECISION`, s.table, col)
	if _, err := s.db.Exec(ctx, q); err != nil {
		return fmt.Errorf("adding column %s: %w", name, err)
	}
	s.columns[name] = true
	return nil
}

// Latest returns the newest row.
func (s *PostgresStore) Latest(ctx context.Context) (weather.Record, error) {
	q := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s DESC LIMIT 1`, s.table, colDateTime)
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return weather.Record{}, fmt.Errorf("querying latest record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return weather.Record{}, fmt.Errorf("querying latest record: %w", err)
		}
		return weather.Record{}, ErrNotFound
	}

	values, err := rows.Values()
	if err != nil {
		return weather.Record{}, fmt.Errorf("reading latest record: %w", err)
	}

	rec := weather.Record{Fields: make(map[string]weather.Value)}
	for i, fd := range rows.FieldDescriptions() {
		f, ok := numeric(values[i])
		switch fd.Name {
		case weather.KeyDateTime:
			rec.DateTime = int64(f)
		case weather.KeyUnits:
			rec.Units = weather.UnitSystem(int(f))
		default:
			if ok {
				rec.Fields[fd.Name] = weather.Float(f)
			} else {
				rec.Fields[fd.Name] = weather.Null
			}
		}
	}
	return rec, rows.Err()
}

// Prune deletes rows older than cutoff.
func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, s.table, colDateTime)
	tag, err := s.db.Exec(ctx, q, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning archive: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int:
		return float64(x), true
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return f.Float64, true
	default:
		return 0, false
	}
}
