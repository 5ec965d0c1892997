// Package rpc is a JSON-RPC client for the Stellar RPC service. It owns every
// wire-format concern: request envelopes, response schemas and the decoding of
// base64 XDR fields into typed values.
package rpc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/pkg/errors"
	"github.com/stellar/go/support/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const maxErrorBodyBytes = 4 << 10

var tracer = otel.Tracer("github.com/dotandev/sorolend/internal/rpc")

// Client talks to one RPC endpoint. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *log.Entry
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit paces outgoing requests to rps with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *log.Entry) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) (err error) {
	ctx, span := tracer.Start(ctx, "rpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrapf(err, "%s: waiting for rate limiter", method)
		}
	}

	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return errors.Wrapf(err, "%s: encoding request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "%s: creating request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s: sending request", method)
	}
	defer resp.Body.Close()

	c.log.WithFields(log.F{
		"method":   method,
		"status":   resp.StatusCode,
		"duration": time.Since(started).String(),
	}).Debug("rpc call")

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return errors.Errorf("%s: unexpected http status %d: %s", method, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if err := json2.DecodeClientResponse(resp.Body, result); err != nil {
		return errors.Wrapf(err, "%s", method)
	}
	return nil
}

func (c *Client) GetLatestLedger(ctx context.Context) (*GetLatestLedgerResponse, error) {
	var out GetLatestLedgerResponse
	if err := c.call(ctx, "getLatestLedger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetNetwork(ctx context.Context) (*GetNetworkResponse, error) {
	var out GetNetworkResponse
	if err := c.call(ctx, "getNetwork", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetHealth(ctx context.Context) (*GetHealthResponse, error) {
	var out GetHealthResponse
	if err := c.call(ctx, "getHealth", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetVersionInfo(ctx context.Context) (*GetVersionInfoResponse, error) {
	var out GetVersionInfoResponse
	if err := c.call(ctx, "getVersionInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
