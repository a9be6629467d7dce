// Package apiclient is the request/response orchestration core: it composes
// an ordered transform pipeline, a transport call, response normalization,
// failure classification, and monitor fan-out into one callable client.
//
// Every call either returns a well-formed OK response or an *Error whose
// Response is a well-formed failed response; callers never see a raw,
// unclassified error.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// DefaultTimeout applies when neither the call nor the client configures one.
const DefaultTimeout = 10 * time.Second

// ClientConfig holds the configuration captured once at client creation.
type ClientConfig struct {
	// BaseURL prefixes relative request paths.
	BaseURL string `validate:"omitempty,url"`

	// DefaultHeaders are merged under per-call headers (the call wins per key).
	DefaultHeaders map[string]string

	// DefaultTimeout bounds each call unless the call overrides it. Zero
	// falls back to DefaultTimeout.
	DefaultTimeout time.Duration `validate:"min=0"`

	// TokenSource, when set, prepends the bearer-auth transform at the fixed
	// head of the request chain, so user transforms always observe an
	// already-authenticated config.
	TokenSource TokenSource

	RequestTransforms  []RequestTransform
	ResponseTransforms []ResponseTransform
	Monitors           []Monitor
}

// Client resolves requests through the full pipeline. It is stateless per
// call and safe for concurrent use; deduplication of concurrent calls for
// the same cache key is the revalidation engine's responsibility.
type Client struct {
	baseURL            string
	defaultHeaders     map[string]string
	defaultTimeout     time.Duration
	requestTransforms  []RequestTransform
	responseTransforms []ResponseTransform
	monitors           []Monitor
	transport          Transport
	logger             zerolog.Logger
}

// NewClient creates a Client closed over the given configuration.
func NewClient(cfg *ClientConfig, transport Transport, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	requestTransforms := make([]RequestTransform, 0, len(cfg.RequestTransforms)+1)
	if cfg.TokenSource != nil {
		requestTransforms = append(requestTransforms, BearerAuthTransform(cfg.TokenSource))
	}
	requestTransforms = append(requestTransforms, cfg.RequestTransforms...)

	return &Client{
		baseURL:            cfg.BaseURL,
		defaultHeaders:     cfg.DefaultHeaders,
		defaultTimeout:     timeout,
		requestTransforms:  requestTransforms,
		responseTransforms: append([]ResponseTransform(nil), cfg.ResponseTransforms...),
		monitors:           append([]Monitor(nil), cfg.Monitors...),
		transport:          transport,
		logger:             logger.With().Str("component", "Client").Logger(),
	}, nil
}

// Do resolves one request. The steps run in strict sequence: request
// transforms, URL and header resolution, the transport call under its
// timeout, normalization and classification, response transforms
// (unconditionally, success or failure), monitor fan-out, and finally the
// OK-or-error decision. On failure the returned error is always an *Error
// carrying the failed Response; the Response is returned alongside it.
func (c *Client) Do(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	start := time.Now()
	if cfg == nil {
		cfg = &RequestConfig{}
	}

	if err := applyRequestTransforms(ctx, cfg, c.requestTransforms); err != nil {
		c.logger.Debug().Err(err).Str("url", cfg.URL).Msg("Request transform failed; skipping transport call.")
		return c.finish(ctx, normalizeFailure(err, nil, time.Since(start)))
	}

	result, err := c.exchange(ctx, cfg)

	var resp *Response
	if err != nil {
		resp = normalizeFailure(err, result, time.Since(start))
	} else {
		resp = normalizeSuccess(result, time.Since(start))
	}
	return c.finish(ctx, resp)
}

// exchange performs steps 3-6: URL resolution, header merge, body
// serialization, and the bounded transport call.
func (c *Client) exchange(ctx context.Context, cfg *RequestConfig) (*TransportResult, error) {
	method := cfg.Method
	if method == "" {
		method = "GET"
	}

	fullURL, err := buildURL(c.baseURL, cfg.URL, cfg.Params)
	if err != nil {
		return nil, err
	}
	headers := mergeHeaders(c.defaultHeaders, cfg.Headers)

	var body []byte
	if cfg.Data != nil && isBodyBearing(method) {
		body, err = json.Marshal(cfg.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize request body: %w", err)
		}
		if _, present := headers["Content-Type"]; !present {
			headers["Content-Type"] = "application/json"
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = c.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.transport.RoundTrip(callCtx, method, fullURL, headers, body)
}

// finish runs the unconditional tail of the pipeline: response transforms,
// monitor fan-out, and the OK-or-error decision. A failing response
// transform legitimately fails the call.
func (c *Client) finish(ctx context.Context, resp *Response) (*Response, error) {
	if err := applyResponseTransforms(ctx, resp, c.responseTransforms); err != nil {
		c.logger.Debug().Err(err).Msg("Response transform failed; failing the call.")
		resp.OK = false
		resp.OriginalError = err
		resp.Problem = ProblemUnknown
		if typed, ok := AsError(err); ok && typed.Problem != ProblemNone {
			resp.Problem = typed.Problem
		}
	}

	notifyMonitors(resp, c.monitors, c.logger)

	if !resp.OK {
		return resp, ErrorFromResponse(resp)
	}
	return resp, nil
}

func isBodyBearing(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}
