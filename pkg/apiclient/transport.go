package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mshindi-labs/swrkit/pkg/cachekey"
)

// TransportResult is the raw outcome of one transport exchange.
type TransportResult struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Transport is the HTTP client abstraction the pipeline rides on. A nil
// result with a non-nil error signals a transport-level failure
// (timeout, connection, cancellation), distinguishable by error metadata.
type Transport interface {
	RoundTrip(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*TransportResult, error)
}

// HTTPTransport implements Transport over net/http. Timeouts and
// cancellation arrive through the request context.
type HTTPTransport struct {
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPTransport wraps an http.Client. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(client *http.Client, logger zerolog.Logger) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		client: client,
		logger: logger.With().Str("component", "HTTPTransport").Logger(),
	}
}

// RoundTrip issues the request and reads the full body. A non-2xx status is
// not an error at this layer; only transport-level failures return one.
func (t *HTTPTransport) RoundTrip(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*TransportResult, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		// Keep the partial result so the status reaches classification.
		return &TransportResult{Status: httpResp.StatusCode, Headers: flattenHeaders(httpResp.Header)}, err
	}

	t.logger.Debug().Str("method", method).Str("url", fullURL).Int("status", httpResp.StatusCode).Msg("Transport exchange completed.")

	return &TransportResult{
		Status:  httpResp.StatusCode,
		Headers: flattenHeaders(httpResp.Header),
		Body:    respBody,
	}, nil
}

func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name := range header {
		flat[name] = header.Get(name)
	}
	return flat
}

// buildURL joins the base URL and path, then appends the query string with
// parameter names sorted so the request URL agrees with the cache key for
// the same (path, params) pair. Nil parameter values are omitted.
func buildURL(base, path string, params map[string]any) (string, error) {
	full := path
	if base != "" && !strings.Contains(path, "://") {
		full = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(params) == 0 {
		return full, nil
	}

	parsed, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", full, err)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if params[name] == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	query := parsed.Query()
	for _, name := range names {
		query.Add(name, cachekey.EncodeValue(params[name]))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// mergeHeaders unions header maps left to right, later sources winning per
// key. The result is always a fresh map.
func mergeHeaders(sources ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, src := range sources {
		for name, value := range src {
			merged[name] = value
		}
	}
	return merged
}
