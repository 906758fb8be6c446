package llm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/user/emrchat/internal/config"
)

// RetryConfig holds retry and transport configuration
type RetryConfig struct {
	MaxAttempts       int           // Total attempts, 1 means no retry
	Multiplier        int           // Exponential backoff multiplier
	MaxWaitPerAttempt time.Duration // Maximum wait time per attempt
	MaxTotalWait      time.Duration // Maximum total wait time

	// Connection pooling
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration

	// Transport overrides the pooled transport when set
	Transport http.RoundTripper
	// Instrument wraps the transport with OpenTelemetry client spans
	Instrument bool
}

// DefaultRetryConfig returns default retry configuration: one attempt, no retry
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:           1,
		Multiplier:            1,
		MaxWaitPerAttempt:     10 * time.Second,
		MaxTotalWait:          30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// RetryConfigFrom converts the configured retry settings
func RetryConfigFrom(cfg config.RetryConfig) *RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Multiplier > 0 {
		rc.Multiplier = cfg.Multiplier
	}
	if cfg.MaxWaitPerAttempt > 0 {
		rc.MaxWaitPerAttempt = time.Duration(cfg.MaxWaitPerAttempt) * time.Second
	}
	if cfg.MaxTotalWait > 0 {
		rc.MaxTotalWait = time.Duration(cfg.MaxTotalWait) * time.Second
	}
	return rc
}

// RetryClient wraps http.Client with retry logic
type RetryClient struct {
	client *http.Client
	config *RetryConfig
}

// NewRetryClient creates a new retry client
func NewRetryClient(config *RetryConfig) *RetryClient {
	return NewRetryClientWithTimeout(180*time.Second, config)
}

// NewRetryClientWithTimeout creates a retry client with custom timeout
func NewRetryClientWithTimeout(timeout time.Duration, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	transport := config.Transport
	if transport == nil {
		transport = newPooledTransport(config)
	}
	if config.Instrument {
		transport = otelhttp.NewTransport(transport)
	}

	return &RetryClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		config: config,
	}
}

func newPooledTransport(config *RetryConfig) *http.Transport {
	withDefault := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	durationOr := func(v, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          withDefault(config.MaxIdleConns, 100),
		MaxIdleConnsPerHost:   withDefault(config.MaxIdleConnsPerHost, 10),
		IdleConnTimeout:       durationOr(config.IdleConnTimeout, 90*time.Second),
		TLSHandshakeTimeout:   durationOr(config.TLSHandshakeTimeout, 10*time.Second),
		ExpectContinueTimeout: durationOr(config.ExpectContinueTimeout, time.Second),
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Do executes an HTTP request with retry logic
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	return rc.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with retry logic and context
func (rc *RetryClient) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	totalStartTime := time.Now()

	for attempt := 0; attempt < rc.config.MaxAttempts; attempt++ {
		// Clone the request for each attempt; the body is re-created from GetBody
		reqClone := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", bodyErr)
			}
			reqClone.Body = body
		}

		resp, err = rc.client.Do(reqClone)

		// 429 and 5xx are retried, everything else goes back to the caller
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt == rc.config.MaxAttempts-1 {
			break
		}

		// Calculate wait time with exponential backoff
		waitTime := rc.calculateWaitTime(attempt)

		// Check if we've exceeded max total wait time
		if time.Since(totalStartTime)+waitTime > rc.config.MaxTotalWait {
			break
		}

		if resp != nil {
			drain(resp)
			resp = nil
		}

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", rc.config.MaxAttempts, err)
	}

	// Hand the last error response to the caller so it can report the body
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

// calculateWaitTime calculates wait time using exponential backoff
func (rc *RetryClient) calculateWaitTime(attempt int) time.Duration {
	// Exponential backoff: 2^attempt * multiplier seconds
	baseWait := time.Duration(math.Pow(2, float64(attempt))) * time.Duration(rc.config.Multiplier) * time.Second

	// Cap at max wait per attempt
	if baseWait > rc.config.MaxWaitPerAttempt {
		baseWait = rc.config.MaxWaitPerAttempt
	}

	return baseWait
}

// SetTimeout updates the client timeout
func (rc *RetryClient) SetTimeout(timeout time.Duration) {
	rc.client.Timeout = timeout
}

// GetTimeout returns the current client timeout
func (rc *RetryClient) GetTimeout() time.Duration {
	return rc.client.Timeout
}

// CloseIdleConnections closes idle pooled connections
func (rc *RetryClient) CloseIdleConnections() {
	rc.client.CloseIdleConnections()
}
