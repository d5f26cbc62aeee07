// Package odata provides the HTTP adapter for the HR directory's OData v2 API.
// It implements directory.Reader and directory.Writer.
package odata

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
)

const (
	// DefaultTimeout bounds a single request when Config.Timeout is zero.
	DefaultTimeout = 60 * time.Second

	// maxResponseBodySize caps how much of a directory response is read.
	maxResponseBodySize = 10 * 1024 * 1024 // 10MB

	// maxErrorBodySize caps the body carried in a RemoteRejectedError.
	maxErrorBodySize = 64 * 1024

	tracerName = "github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/odata"
)

// Response formats accepted by ReadRaw.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// Config holds the connection settings for the directory.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the directory over HTTP. It is safe for concurrent use:
// it holds only an *http.Client and immutable settings.
type Client struct {
	base       *url.URL
	username   string
	password   string
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient validates cfg and returns a client bound to cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid directory base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid directory base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid directory base URL %q: missing host", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Read issues a JSON read and decodes the OData envelope.
func (c *Client) Read(ctx context.Context, q directory.Query) (*directory.Envelope, error) {
	body, err := c.ReadRaw(ctx, q, FormatJSON)
	if err != nil {
		return nil, err
	}
	env, err := directory.DecodeEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", q.EntitySet, err)
	}
	return env, nil
}

// ReadRaw issues a read in the given format and returns the body unparsed.
func (c *Client) ReadRaw(ctx context.Context, q directory.Query, format string) ([]byte, error) {
	if q.EntitySet == "" {
		return nil, errors.New("read: entity set is required")
	}
	if format == "" {
		format = FormatJSON
	}

	target := c.ReadURL(q, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build read request: %w", err)
	}
	if format == FormatXML {
		req.Header.Set("Accept", "application/atom+xml, application/xml")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	return c.do(ctx, "odata.read", req,
		attribute.String("odata.entity_set", q.EntitySet),
		attribute.Bool("odata.point_read", q.Key != ""),
		attribute.String("odata.format", format),
	)
}

// Upsert posts p to the directory's upsert endpoint and returns the raw JSON
// response. A non-JSON success body is returned as a JSON string.
func (c *Client) Upsert(ctx context.Context, p directory.Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode upsert payload: %w", err)
	}

	u := c.base.JoinPath("upsert")
	u.RawQuery = url.Values{"$format": {FormatJSON}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, "odata.upsert", req, attribute.Int("odata.payload_properties", len(p.Properties())))
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return json.RawMessage("null"), nil
	case json.Valid(trimmed):
		return json.RawMessage(trimmed), nil
	default:
		quoted, _ := json.Marshal(string(trimmed))
		return json.RawMessage(quoted), nil
	}
}

// ReadURL renders the read URL for q. Exposed for logging and tests.
func (c *Client) ReadURL(q directory.Query, format string) string {
	segment := q.EntitySet
	if q.Key != "" {
		segment = directory.EntityURI(q.EntitySet, directory.CanonicalKey(q.Key))
	}
	u := c.base.JoinPath(segment)

	params := url.Values{}
	params.Set("$format", format)
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if len(q.Select) > 0 {
		params.Set("$select", strings.Join(q.Select, ","))
	}
	if len(q.Expand) > 0 {
		params.Set("$expand", strings.Join(q.Expand, ","))
	}
	if q.InlineCount {
		params.Set("$inlinecount", "allpages")
	}
	u.RawQuery = params.Encode()
	return u.String()
}

// do sends req with credentials and classifies the outcome: network failures
// become TransportError, non-2xx statuses become RemoteRejectedError.
func (c *Client) do(ctx context.Context, spanName string, req *http.Request, attrs ...attribute.KeyValue) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("http.method", req.Method))...),
	)
	defer span.End()
	req = req.WithContext(ctx)

	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Debug("directory request failed",
			"method", req.Method, "path", req.URL.Path, "error", err)
		return nil, &directory.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, &directory.TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("directory request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, "status "+strconv.Itoa(resp.StatusCode))
		if len(body) > maxErrorBodySize {
			body = body[:maxErrorBodySize]
		}
		return nil, &directory.RemoteRejectedError{Status: resp.StatusCode, Body: string(body)}
	}
	span.SetStatus(codes.Ok, "")
	return body, nil
}

var (
	_ directory.Reader    = (*Client)(nil)
	_ directory.Writer    = (*Client)(nil)
	_ directory.Directory = (*Client)(nil)
)
