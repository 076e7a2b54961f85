package weather

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_UnmarshalJSON(t *testing.T) {
	body := `{"dateTime": 1000000000, "usUnits": 1, "outTemp": 32.5, "outHumidity": 24, "windGust": null}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(body), &rec))

	assert.Equal(t, int64(1000000000), rec.DateTime)
	assert.Equal(t, US, rec.Units)
	assert.Equal(t, Float(32.5), rec.Fields["outTemp"])
	assert.Equal(t, Float(24), rec.Fields["outHumidity"])

	gust, ok := rec.Get("windGust")
	assert.True(t, ok, "null fields are present")
	assert.False(t, gust.Valid)

	_, ok = rec.Get("rain")
	assert.False(t, ok)
}

func TestRecord_UnmarshalJSONRejectsStrings(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"dateTime": 1, "usUnits": 1, "outTemp": "warm"}`), &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outTemp")
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec := NewRecord(1000000000, Metric)
	rec.Set("outTemp", Float(0))
	rec.Set("windGust", Null)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dateTime":1000000000,"usUnits":16,"outTemp":0,"windGust":null}`, string(data))
}

func TestRecord_Clone(t *testing.T) {
	rec := NewRecord(1, US)
	rec.Set("outTemp", Float(1))

	c := rec.Clone()
	c.Set("outTemp", Float(2))
	c.Set("rain", Float(3))

	assert.Equal(t, Float(1), rec.Fields["outTemp"])
	assert.Len(t, rec.Fields, 1)
}

func TestUnitSystem_Valid(t *testing.T) {
	assert.True(t, US.Valid())
	assert.True(t, Metric.Valid())
	assert.True(t, MetricWX.Valid())
	assert.False(t, UnitSystem(2).Valid())
	assert.Equal(t, "METRICWX", MetricWX.String())
}

func TestToUS(t *testing.T) {
	rec := NewRecord(1, Metric)
	rec.Set("outTemp", Float(-40))
	rec.Set("barometer", Float(1013.25))
	rec.Set("rainRate", Float(1))
	rec.Set("outHumidity", Float(55))
	rec.Set("windDir", Float(270))
	rec.Set("dewpoint", Null)

	out, err := ToUS(rec)
	require.NoError(t, err)

	assert.Equal(t, US, out.Units)
	assert.InDelta(t, -40.0, out.Fields["outTemp"].Float, 1e-9)
	assert.InDelta(t, 29.921, out.Fields["barometer"].Float, 1e-3)
	assert.InDelta(t, 0.3937, out.Fields["rainRate"].Float, 1e-4)
	assert.Equal(t, Float(55), out.Fields["outHumidity"])
	assert.Equal(t, Float(270), out.Fields["windDir"])
	assert.False(t, out.Fields["dewpoint"].Valid)
}

func TestToUS_UnknownSystem(t *testing.T) {
	rec := NewRecord(1, UnitSystem(5))
	rec.Set("outTemp", Float(1))
	_, err := ToUS(rec)
	assert.Error(t, err)
}
