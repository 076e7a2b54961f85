package weatherbug

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

var testCreds = Credentials{
	PublisherID:   "P000001",
	StationNumber: "1234",
	Password:      "s3cr&t pw",
}

const testEndpoint = "http://example.invalid/data/livedata.aspx"

var requiredKeys = []string{"action", "ID", "Num", "Key", "dateutc", "softwaretype"}

// constHistory returns the same sum for every rain window and null extremes.
type constHistory struct {
	month, year weather.Value
}

func (h constHistory) Sum(_ context.Context, _ string, from, to int64) (weather.Value, error) {
	ts := weather.NewRecord(to, weather.US).Time()
	switch from {
	case weather.StartOfMonth(ts).Unix():
		return h.month, nil
	case weather.StartOfYear(ts).Unix():
		return h.year, nil
	}
	return weather.Null, nil
}

func (constHistory) Max(context.Context, string, int64, int64) (weather.Value, error) {
	return weather.Null, nil
}

func (constHistory) Min(context.Context, string, int64, int64) (weather.Value, error) {
	return weather.Null, nil
}

func scenarioRecord() weather.Record {
	rec := weather.NewRecord(1000000000, weather.US)
	rec.Set("outTemp", weather.Float(32.5))
	rec.Set("outHumidity", weather.Float(24))
	rec.Set("windSpeed", weather.Float(3.2))
	return rec
}

func TestBuildRequest_Scenario(t *testing.T) {
	enriched, err := weather.Enrich(context.Background(), scenarioRecord(), constHistory{})
	require.NoError(t, err)

	req, err := BuildRequest(enriched, testCreds, testEndpoint)
	require.NoError(t, err)

	v := req.Values()
	assert.Equal(t, "live", v.Get("action"))
	assert.Equal(t, "P000001", v.Get("ID"))
	assert.Equal(t, "1234", v.Get("Num"))
	assert.Equal(t, "s3cr&t pw", v.Get("Key"))
	assert.Equal(t, "2001-09-09 01:46:40", v.Get("dateutc"))
	assert.Equal(t, SoftwareType(), v.Get("softwaretype"))
	assert.Equal(t, "32.5", v.Get("tempf"))
	assert.Equal(t, "24", v.Get("humidity"))
	assert.Equal(t, "3.2", v.Get("windspeedmph"))

	for _, k := range []string{"rainin", "dailyRainin", "monthlyrainin", "Yearlyrainin", "tempfhi", "tempflo"} {
		_, present := v[k]
		assert.False(t, present, "%s must be omitted when there is no data", k)
	}

	raw := req.URL()
	assert.True(t, strings.HasPrefix(raw, testEndpoint+"?"))
	assert.Contains(t, raw, "tempf=32.5")
	assert.Contains(t, raw, "humidity=24")
	assert.Contains(t, raw, "windspeedmph=3.2")
	assert.Contains(t, raw, "dateutc=2001-09-09+01%3A46%3A40")
	assert.Contains(t, raw, "Key=s3cr%26t+pw")
}

func TestBuildRequest_RainRoundTrip(t *testing.T) {
	h := constHistory{month: weather.Float(5.0), year: weather.Float(40.0)}
	enriched, err := weather.Enrich(context.Background(), scenarioRecord(), h)
	require.NoError(t, err)

	req, err := BuildRequest(enriched, testCreds, testEndpoint)
	require.NoError(t, err)

	assert.Contains(t, req.URL(), "monthlyrainin=5.00")
	assert.Contains(t, req.URL(), "Yearlyrainin=40.00")
}

func TestBuildRequest_ZeroIsNotNull(t *testing.T) {
	rec := scenarioRecord()
	rec.Set("monthRain", weather.Float(0))
	rec.Set("yearRain", weather.Null)
	rec.Set("hourRain", weather.Float(0))

	req, err := BuildRequest(rec, testCreds, testEndpoint)
	require.NoError(t, err)

	v := req.Values()
	assert.Equal(t, "0.00", v.Get("monthlyrainin"))
	assert.Equal(t, "0.00", v.Get("rainin"))
	_, present := v["Yearlyrainin"]
	assert.False(t, present)
}

func TestBuildRequest_Idempotent(t *testing.T) {
	rec := scenarioRecord()
	rec.Set("barometer", weather.Float(30.0123))

	a, err := BuildRequest(rec, testCreds, testEndpoint)
	require.NoError(t, err)
	b, err := BuildRequest(rec, testCreds, testEndpoint)
	require.NoError(t, err)

	assert.Equal(t, a.URL(), b.URL())
}

func TestBuildRequest_KeysAreRequiredOrPresentTargets(t *testing.T) {
	// Every other mapping entry is present, alternating valid and null.
	rec := weather.NewRecord(1000000000, weather.US)
	allowed := map[string]bool{}
	for _, k := range requiredKeys {
		allowed[k] = true
	}
	for i, f := range FieldMapping {
		switch i % 3 {
		case 0:
			rec.Set(f.Source, weather.Float(float64(i)))
			allowed[f.Target] = true
		case 1:
			rec.Set(f.Source, weather.Null)
		}
	}

	req, err := BuildRequest(rec, testCreds, testEndpoint)
	require.NoError(t, err)

	for k := range req.Values() {
		assert.True(t, allowed[k], "unexpected parameter %s", k)
	}
	for k := range allowed {
		assert.NotEmpty(t, req.Values().Get(k), "missing parameter %s", k)
	}
}

func TestBuildRequest_Precision(t *testing.T) {
	rec := weather.NewRecord(1000000000, weather.US)
	rec.Set("barometer", weather.Float(30.01234))
	rec.Set("windDir", weather.Float(180.4))
	rec.Set("UV", weather.Float(2.6))
	rec.Set("dewpoint", weather.Float(-3.25))

	req, err := BuildRequest(rec, testCreds, testEndpoint)
	require.NoError(t, err)

	v := req.Values()
	assert.Equal(t, "30.012", v.Get("baromin"))
	assert.Equal(t, "180", v.Get("winddir"))
	assert.Equal(t, "3", v.Get("UV"))
	assert.Equal(t, "-3.2", v.Get("dewptf"))
}

func TestBuildRequest_InvalidEndpoint(t *testing.T) {
	_, err := BuildRequest(scenarioRecord(), testCreds, "/relative/path")
	assert.Error(t, err)

	_, err = BuildRequest(scenarioRecord(), testCreds, "http://[::1")
	assert.Error(t, err)
}

func TestRequest_Redacted(t *testing.T) {
	req, err := BuildRequest(scenarioRecord(), testCreds, testEndpoint)
	require.NoError(t, err)

	red := req.Redacted()
	assert.Contains(t, red, "Key=XXX")
	assert.NotContains(t, red, url.QueryEscape(testCreds.Password))
	assert.Contains(t, red, "ID=P000001")
}

func TestFieldMapping_SortedAndUnique(t *testing.T) {
	targets := make([]string, 0, len(FieldMapping))
	sources := map[string]bool{}
	for _, f := range FieldMapping {
		targets = append(targets, f.Target)
		assert.False(t, sources[f.Source], "duplicate source %s", f.Source)
		sources[f.Source] = true
	}
	assert.True(t, sort.StringsAreSorted(targets))
	assert.Len(t, FieldMapping, 29)
}
