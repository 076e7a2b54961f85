package weatherbug

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// successToken must start every line of an accepted response body.
const successToken = "Successfully Received"

// maxResponseBytes bounds how much of a response body is inspected.
const maxResponseBytes = 64 << 10

var (
	// ErrUploadRejected is returned when the server answers with anything but
	// an acknowledgement.
	ErrUploadRejected = errors.New("upload rejected")
	// ErrNetworkFailure covers connection errors, timeouts and an open
	// circuit breaker.
	ErrNetworkFailure = errors.New("network failure")
	// ErrRetriesExhausted is returned once every attempt has failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RetryPolicy controls how a single upload is attempted.
type RetryPolicy struct {
	MaxTries int           // total attempts, at least one
	Wait     time.Duration // fixed delay between attempts
	Timeout  time.Duration // per-attempt deadline
}

// DefaultRetryPolicy mirrors the station software's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries: 3,
		Wait:     5 * time.Second,
		Timeout:  60 * time.Second,
	}
}

// Client posts rendered requests to the live-data endpoint.
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	circuit    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	userAgent  string
	sleepFn    func(time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSleepFunc overrides the delay between attempts. Intended for tests.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithBreakerThreshold sets how many consecutive failed attempts open the
// circuit breaker. Zero or less disables tripping.
func WithBreakerThreshold(n int) ClientOption {
	return func(c *Client) {
		c.circuit = newBreaker(n)
	}
}

// NewClient creates a Client. A nil httpClient gets a default one; the
// per-attempt timeout comes from the policy's context deadline.
func NewClient(httpClient *http.Client, policy RetryPolicy, logger *slog.Logger, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if policy.MaxTries < 1 {
		policy.MaxTries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: httpClient,
		policy:     policy,
		circuit:    newBreaker(20),
		logger:     logger,
		userAgent:  "wbug-uploader/" + Version,
		sleepFn:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(threshold int) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weatherbug",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= uint32(threshold)
		},
	})
}

// Post performs the upload with up to MaxTries attempts and a fixed wait
// between them. Every attempt runs under its own timeout.
func (c *Client) Post(ctx context.Context, req Request) error {
	target := req.URL()
	c.logger.Debug("weatherbug: posting", "url", req.Redacted())

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxTries; attempt++ {
		err := c.attempt(ctx, target)
		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Debug("weatherbug: upload attempt failed",
			"attempt", attempt,
			"max_tries", c.policy.MaxTries,
			"err", err,
		)

		if attempt < c.policy.MaxTries {
			c.sleepFn(c.policy.Wait)
		}
	}

	return fmt.Errorf("%w after %d tries: %w", ErrRetriesExhausted, c.policy.MaxTries, lastErr)
}

func (c *Client) attempt(ctx context.Context, target string) error {
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNetworkFailure, Redact(err.Error()))
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	_, err = c.circuit.Execute(func() (interface{}, error) {
		resp, execErr := c.httpClient.Do(httpReq)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, redactURLError(execErr))
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if readErr != nil {
			return nil, fmt.Errorf("%w: reading response: %v", ErrNetworkFailure, readErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", ErrUploadRejected, resp.StatusCode)
		}
		return nil, CheckResponse(body)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit breaker open: %v", ErrNetworkFailure, err)
	}
	return err
}

// CheckResponse accepts a body only when it has at least one line and every
// line starts with the acknowledgement token.
func CheckResponse(body []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	lines := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, successToken) {
			return fmt.Errorf("%w: server response: %q", ErrUploadRejected, line)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadRejected, err)
	}
	if lines == 0 {
		return fmt.Errorf("%w: empty server response", ErrUploadRejected)
	}
	return nil
}

// redactURLError strips the password from the URL that net/http embeds in
// its errors.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: Redact(uerr.URL), Err: uerr.Err}
	}
	return errors.New(Redact(err.Error()))
}
