package apiclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
)

// TokenSource supplies the current bearer token for a call. It is invoked
// per request so rotated credentials are picked up without rebuilding the
// client.
type TokenSource func(ctx context.Context) (string, error)

// BearerAuthTransform returns the fixed-head authentication transform. It
// sets the Authorization header only if absent, so a header an outer config
// explicitly set is never overwritten, and later transforms observe an
// already-authenticated config.
func BearerAuthTransform(source TokenSource) RequestTransform {
	return func(ctx context.Context, cfg *RequestConfig) error {
		if _, present := cfg.Headers[headerAuthorization]; present {
			return nil
		}
		token, err := source(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve auth token: %w", err)
		}
		if token == "" {
			return nil
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[headerAuthorization] = "Bearer " + token
		return nil
	}
}

// RequestIDTransform tags each outbound call with a correlation ID, set only
// if the caller has not supplied one. An empty header name uses X-Request-ID.
func RequestIDTransform(header string) RequestTransform {
	if header == "" {
		header = headerRequestID
	}
	return func(_ context.Context, cfg *RequestConfig) error {
		if _, present := cfg.Headers[header]; present {
			return nil
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[header] = uuid.NewString()
		return nil
	}
}
