package weatherbug

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that does nothing, for fast tests.
func noopSleep(time.Duration) {}

// roundTripFunc lets a test stand in for the network.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, httpClient *http.Client, tries int, opts ...ClientOption) *Client {
	t.Helper()
	policy := RetryPolicy{MaxTries: tries, Wait: time.Second, Timeout: 5 * time.Second}
	opts = append([]ClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewClient(httpClient, policy, discardLogger(), opts...)
}

func newServerRequest(t *testing.T, serverURL string) Request {
	t.Helper()
	req, err := BuildRequest(scenarioRecord(), testCreds, serverURL+"/data/livedata.aspx")
	require.NoError(t, err)
	return req
}

func TestPost_Success(t *testing.T) {
	var (
		hits     atomic.Int32
		mu       sync.Mutex
		gotQuery string
		gotUA    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		mu.Unlock()
		w.Write([]byte("Successfully Received QueryString Data\r\n"))
	}))
	defer server.Close()

	client := newTestClient(t, server.Client(), 3)
	err := client.Post(context.Background(), newServerRequest(t, server.URL))

	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotQuery, "windspeedmph=3.2")
	assert.Equal(t, "wbug-uploader/"+Version, gotUA)
}

func TestPost_NetworkFailuresExhaustBudget(t *testing.T) {
	var attempts atomic.Int32
	var slept []time.Duration
	httpClient := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	})}

	policy := RetryPolicy{MaxTries: 3, Wait: 5 * time.Second, Timeout: time.Second}
	client := NewClient(httpClient, policy, discardLogger(), WithSleepFunc(func(d time.Duration) {
		slept = append(slept, d)
	}))

	err := client.Post(context.Background(), newServerRequest(t, "http://example.invalid"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrNetworkFailure))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, slept, "no wait after the last attempt")
}

func TestPost_RejectedBodyIsRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Write([]byte("QueryString:Av Wd Spd Er::998.98554\n"))
			return
		}
		w.Write([]byte("Successfully Received QueryString Data\n"))
	}))
	defer server.Close()

	client := newTestClient(t, server.Client(), 3)
	err := client.Post(context.Background(), newServerRequest(t, server.URL))

	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestPost_RejectedAfterAllTries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("Successfully Received\nbut then an error\n"))
	}))
	defer server.Close()

	client := newTestClient(t, server.Client(), 2)
	err := client.Post(context.Background(), newServerRequest(t, server.URL))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrUploadRejected))
	assert.Contains(t, err.Error(), "but then an error")
	assert.Equal(t, int32(2), hits.Load())
}

func TestPost_ServerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Successfully Received"))
	}))
	defer server.Close()

	client := newTestClient(t, server.Client(), 1)
	err := client.Post(context.Background(), newServerRequest(t, server.URL))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUploadRejected))
	assert.Contains(t, err.Error(), "status 500")
}

func TestPost_PerAttemptTimeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	policy := RetryPolicy{MaxTries: 2, Wait: time.Millisecond, Timeout: 50 * time.Millisecond}
	client := NewClient(server.Client(), policy, discardLogger(), WithSleepFunc(noopSleep))

	start := time.Now()
	err := client.Post(context.Background(), newServerRequest(t, server.URL))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetworkFailure))
	assert.Equal(t, int32(2), hits.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPost_ErrorsNeverCarryPassword(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: no route to host")
	})}
	client := newTestClient(t, httpClient, 1)

	err := client.Post(context.Background(), newServerRequest(t, "http://example.invalid"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Key=XXX")
	assert.NotContains(t, err.Error(), "s3cr")
}

func TestPost_OpenBreakerCountsAsAttempt(t *testing.T) {
	var attempts atomic.Int32
	httpClient := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, errors.New("connection reset")
	})}
	client := newTestClient(t, httpClient, 3, WithBreakerThreshold(2))

	err := client.Post(context.Background(), newServerRequest(t, "http://example.invalid"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(2), attempts.Load(), "third attempt is refused by the breaker")
}

func TestCheckResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"single line", "Successfully Received QueryString Data", true},
		{"crlf lines", "Successfully Received a\r\nSuccessfully Received b\r\n", true},
		{"empty", "", false},
		{"error line", "QueryString:Av Wd Spd Er::998.98554", false},
		{"mixed", "Successfully Received\nnope", false},
		{"blank middle line", "Successfully Received\n\nSuccessfully Received", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckResponse([]byte(tc.body))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUploadRejected))
		})
	}
}

func TestRedact(t *testing.T) {
	in := "http://h/p?ID=a&Key=secret&Num=1"
	assert.Equal(t, "http://h/p?ID=a&Key=XXX&Num=1", Redact(in))
	assert.False(t, strings.Contains(Redact("Key=abc"), "abc"))
}
