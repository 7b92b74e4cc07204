// Package client provides the GraphQL HTTP client for the enrichment API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Prometheus metrics for upstream queries.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_upstream_requests_total",
		Help: "Total upstream GraphQL requests by operation and status",
	}, []string{"operation", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_upstream_request_duration_seconds",
		Help:    "Upstream GraphQL request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// maxResponseBytes bounds a single page response.
const maxResponseBytes = 64 << 20

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses without GraphQL errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassGraphQL represents a response carrying an errors array.
	ErrorClassGraphQL ErrorClass = "graphql"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"
)

// Config holds the client configuration.
type Config struct {
	// Endpoint is the absolute URL of the GraphQL API.
	Endpoint string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds one request, including reading the body.
	Timeout time.Duration

	// HTTPClient overrides the default HTTP client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration for endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:  endpoint,
		UserAgent: "enrich-export/0.1.0",
		Timeout:   60 * time.Second,
	}
}

// Request is one GraphQL query.
type Request struct {
	// Operation is the GraphQL operation name; it labels logs and metrics.
	Operation string

	// Query is the GraphQL document.
	Query string

	// Variables are the query variables.
	Variables map[string]any

	// Path selects the value under "data" to decode, in gjson dot syntax
	// (e.g. "currentBackground.enrich").
	Path string
}

// Client executes GraphQL queries against the enrichment API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     Config
	logger     zerolog.Logger
}

// New creates a new GraphQL client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute URL (got %q)", cfg.Endpoint)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig(cfg.Endpoint).UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig(cfg.Endpoint).Timeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   u.String(),
		config:     cfg,
		logger:     log.With().Str("component", "upstream-client").Logger(),
	}, nil
}

type graphQLBody struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Query executes req and decodes the value at req.Path into out. A missing
// or null value leaves out untouched and is not an error. Requests are never
// retried; cancelling ctx aborts an in-flight request.
func (c *Client) Query(ctx context.Context, req Request, out any) error {
	op := req.Operation
	if op == "" {
		op = "anonymous"
	}

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
	}()

	payload, err := json.Marshal(graphQLBody{OperationName: req.Operation, Query: req.Query, Variables: req.Variables})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Str("operation", op).
		Msg("Executing upstream query")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		status := "network_error"
		if ctx.Err() != nil {
			status = "canceled"
		}
		upstreamRequestsTotal.WithLabelValues(op, status).Inc()
		return c.fail(&QueryError{Operation: op, Class: ErrorClassNetwork, Message: "request failed", Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(op, "network_error").Inc()
		return c.fail(&QueryError{Operation: op, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err})
	}
	upstreamRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if qerr := classifyResponse(op, resp, body); qerr != nil {
		return c.fail(qerr)
	}

	result := gjson.GetBytes(body, "data."+req.Path)
	if req.Path == "" {
		result = gjson.GetBytes(body, "data")
	}
	if !result.Exists() || result.Type == gjson.Null {
		c.logger.Debug().
			Str("operation", op).
			Str("path", req.Path).
			Msg("Upstream returned no data at path")
		return nil
	}

	if err := json.Unmarshal([]byte(result.Raw), out); err != nil {
		return c.fail(&QueryError{Operation: op, StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "decode " + req.Path, Err: err})
	}
	return nil
}

// classifyResponse turns an unsuccessful response into a QueryError.
func classifyResponse(op string, resp *http.Response, body []byte) *QueryError {
	message := gjson.GetBytes(body, "errors.0.message")

	switch {
	case resp.StatusCode >= 500:
		msg := resp.Status
		if message.Exists() {
			msg = message.String()
		}
		return &QueryError{Operation: op, StatusCode: resp.StatusCode, Class: ErrorClassServer, Message: msg}
	case message.Exists():
		return &QueryError{Operation: op, StatusCode: resp.StatusCode, Class: ErrorClassGraphQL, Message: message.String()}
	case resp.StatusCode >= 400:
		return &QueryError{Operation: op, StatusCode: resp.StatusCode, Class: ErrorClassClient, Message: resp.Status}
	case !gjson.ValidBytes(body):
		return &QueryError{Operation: op, StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "response is not valid JSON"}
	default:
		return nil
	}
}

func (c *Client) fail(err *QueryError) error {
	upstreamErrorsTotal.WithLabelValues(string(err.Class)).Inc()

	event := c.logger.Warn()
	if errors.Is(err, context.Canceled) {
		event = c.logger.Debug()
	}
	event.
		Str("operation", err.Operation).
		Int("status", err.StatusCode).
		Str("error_class", string(err.Class)).
		Err(err).
		Msg("Upstream query failed")
	return err
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
