package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// UnitSystem is the measurement convention a record is expressed in.
// The numeric values match the usUnits tag written by the station software.
type UnitSystem int

const (
	US       UnitSystem = 0x01
	Metric   UnitSystem = 0x10
	MetricWX UnitSystem = 0x11
)

// Valid reports whether u is one of the known unit systems.
func (u UnitSystem) Valid() bool {
	switch u {
	case US, Metric, MetricWX:
		return true
	}
	return false
}

func (u UnitSystem) String() string {
	switch u {
	case US:
		return "US"
	case Metric:
		return "METRIC"
	case MetricWX:
		return "METRICWX"
	default:
		return fmt.Sprintf("UnitSystem(%d)", int(u))
	}
}

// Value is a single nullable observation.
// Valid is false for a null reading; a valid zero is a real measurement.
type Value struct {
	Float float64
	Valid bool
}

// Float returns a non-null Value.
func Float(f float64) Value {
	return Value{Float: f, Valid: true}
}

// Null is the null observation.
var Null = Value{}

// Record is one archive interval: a timestamp, a unit system tag and the
// observations keyed by field name.
type Record struct {
	DateTime int64 // UTC epoch seconds
	Units    UnitSystem
	Fields   map[string]Value
}

// Reserved keys of the flat record mapping.
const (
	KeyDateTime = "dateTime"
	KeyUnits    = "usUnits"
)

// NewRecord creates an empty record.
func NewRecord(ts int64, units UnitSystem) Record {
	return Record{
		DateTime: ts,
		Units:    units,
		Fields:   make(map[string]Value),
	}
}

// Time returns the record timestamp in UTC.
func (r Record) Time() time.Time {
	return time.Unix(r.DateTime, 0).UTC()
}

// Get returns the field value and whether the field is present at all.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Set stores a field value, allocating the field map if needed.
func (r *Record) Set(name string, v Value) {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[name] = v
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{
		DateTime: r.DateTime,
		Units:    r.Units,
		Fields:   make(map[string]Value, len(r.Fields)),
	}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// FieldNames returns the observation names in lexical order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON writes the flat archive mapping, null for missing readings.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		if v.Valid {
			m[k] = v.Float
		} else {
			m[k] = nil
		}
	}
	m[KeyDateTime] = r.DateTime
	m[KeyUnits] = int(r.Units)
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat archive mapping. Every value other than the
// reserved keys must be a number or null.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Record{Fields: make(map[string]Value, len(raw))}
	for k, msg := range raw {
		switch k {
		case KeyDateTime:
			if err := json.Unmarshal(msg, &out.DateTime); err != nil {
				return fmt.Errorf("%s: %w", KeyDateTime, err)
			}
		case KeyUnits:
			var u int
			if err := json.Unmarshal(msg, &u); err != nil {
				return fmt.Errorf("%s: %w", KeyUnits, err)
			}
			out.Units = UnitSystem(u)
		default:
			if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
				out.Fields[k] = Null
				continue
			}
			var f float64
			if err := json.Unmarshal(msg, &f); err != nil {
				return fmt.Errorf("field %q: value must be a number or null", k)
			}
			out.Fields[k] = Float(f)
		}
	}

	*r = out
	return nil
}
