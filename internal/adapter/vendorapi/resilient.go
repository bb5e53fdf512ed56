package vendorapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ResilientClient wraps an HTTP client with circuit breaker and retry logic.
// It is for read-only collection paths (the snapshot poller) only: retry is
// applied exclusively to GET requests, because vendors do not guarantee
// idempotency keys on mutating endpoints.
type ResilientClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	config  ResilientClientConfig
}

// ResilientClientConfig holds configuration for the resilient client
type ResilientClientConfig struct {
	// Circuit breaker settings
	EnableCircuitBreaker bool
	MaxFailures          uint32
	CircuitTimeout       time.Duration

	// Retry settings
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultResilientClientConfig returns default configuration values
func DefaultResilientClientConfig() ResilientClientConfig {
	return ResilientClientConfig{
		EnableCircuitBreaker: getEnvBool("SNAPSHOT_CIRCUIT_BREAKER_ENABLED", true),
		MaxFailures:          uint32(getEnvInt("SNAPSHOT_CIRCUIT_BREAKER_MAX_FAILURES", 5)),
		CircuitTimeout:       time.Duration(getEnvInt("SNAPSHOT_CIRCUIT_BREAKER_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetries:           getEnvInt("SNAPSHOT_RETRY_MAX_ATTEMPTS", 3),
		InitialInterval:      time.Duration(getEnvInt("SNAPSHOT_RETRY_INITIAL_INTERVAL_MS", 500)) * time.Millisecond,
		MaxInterval:          time.Duration(getEnvInt("SNAPSHOT_RETRY_MAX_INTERVAL_MS", 5000)) * time.Millisecond,
	}
}

// NewResilientClient creates a new resilient HTTP client
func NewResilientClient(timeout time.Duration, config ResilientClientConfig) *ResilientClient {
	client := &http.Client{
		Timeout: timeout,
	}

	var breaker *gobreaker.CircuitBreaker
	if config.EnableCircuitBreaker {
		settings := gobreaker.Settings{
			Name:        "vendor-snapshot",
			MaxRequests: 1,
			Interval:    0, // Don't reset counts automatically
			Timeout:     config.CircuitTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.MaxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Printf("⚡ Circuit breaker '%s' changed from %s to %s", name, from, to)
				if to == gobreaker.StateOpen {
					RecordError("snapshot", "circuit_open")
				}
			},
		}
		breaker = gobreaker.NewCircuitBreaker(settings)
	}

	return &ResilientClient{
		client:  client,
		breaker: breaker,
		config:  config,
	}
}

// Do executes an HTTP request with circuit breaker and retry logic.
// Non-GET requests are passed through with a single attempt.
func (c *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.client.Do(req)
	}

	if c.breaker == nil {
		return c.doWithRetry(req)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(req)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			RecordError("snapshot", "circuit_open")
			return nil, fmt.Errorf("circuit breaker is open: %w", err)
		}
		return nil, err
	}

	return result.(*http.Response), nil
}

// doWithRetry executes an HTTP request with exponential backoff retry logic
func (c *ResilientClient) doWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	if c.config.MaxRetries == 0 {
		resp, err := c.client.Do(req)
		if err != nil {
			RecordError("snapshot", "connection")
			return nil, err
		}
		return resp, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.config.InitialInterval
	expBackoff.MaxInterval = c.config.MaxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0 // No max elapsed time, only max retries

	retryBackoff := backoff.WithMaxRetries(expBackoff, uint64(c.config.MaxRetries))
	retryBackoff = backoff.WithContext(retryBackoff, req.Context())

	operation := func() error {
		var err error
		resp, err = c.client.Do(req)
		if err != nil {
			lastErr = err
			RecordError("snapshot", "connection")
			if c.shouldRetry(err, nil) {
				return err // Retry
			}
			return backoff.Permanent(err) // Don't retry
		}

		if c.shouldRetry(nil, resp) {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			RecordError("snapshot", "server_error")
			resp.Body.Close()
			return lastErr // Retry
		}

		return nil
	}

	err := backoff.Retry(operation, retryBackoff)
	if err != nil {
		return nil, fmt.Errorf("request failed after retries: %w", lastErr)
	}

	return resp, nil
}

// shouldRetry determines if an error or response should trigger a retry.
// Only transient transport failures qualify: timeouts, dial/read failures
// (connection refused or reset surface as *net.OpError) and truncated
// responses. Anything else is treated as permanent.
func (c *ResilientClient) shouldRetry(err error, resp *http.Response) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return true
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return true
		}
		return false
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests, // 429
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
			http.StatusBadGateway,          // 502
			http.StatusInternalServerError: // 500
			return true
		}
	}

	return false
}

// getEnvInt reads an integer from environment variable or returns default
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool reads a boolean from environment variable or returns default
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
