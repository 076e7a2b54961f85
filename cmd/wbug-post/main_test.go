package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weatherbug-uploader/internal/weather"
)

func TestCredentials_Positional(t *testing.T) {
	c, err := credentials([]string{"P1", "42", "pw"})
	require.NoError(t, err)
	assert.Equal(t, "P1", c.PublisherID)
	assert.Equal(t, "42", c.StationNumber)
	assert.Equal(t, "pw", c.Password)
}

func TestCredentials_Flags(t *testing.T) {
	*publisherID, *stationNumber, *password = "P2", "7", "secret"
	t.Cleanup(func() { *publisherID, *stationNumber, *password = "", "", "" })

	c, err := credentials(nil)
	require.NoError(t, err)
	assert.Equal(t, "P2", c.PublisherID)
}

func TestCredentials_Missing(t *testing.T) {
	_, err := credentials([]string{"P1", "42"})
	assert.Error(t, err)
}

func TestSyntheticRecord(t *testing.T) {
	now := time.Unix(1000000000, 0)
	rec := syntheticRecord(now)

	assert.Equal(t, int64(1000000000), rec.DateTime)
	assert.Equal(t, weather.US, rec.Units)
	v, ok := rec.Get("windSpeed")
	require.True(t, ok)
	assert.Equal(t, weather.Float(3.2), v)
}
