package apiclient

import "time"

// RequestConfig is the mutable descriptor of one outbound call. It is built
// fresh per call and owned exclusively by that call: request transforms
// mutate it in place, and it is never shared across calls.
type RequestConfig struct {
	// URL is the target path, relative to the client's base URL. An absolute
	// URL bypasses the base.
	URL string

	// Method defaults to GET when empty.
	Method string

	// Params become the query string, serialized with the same convention as
	// cache-key canonicalization. Nil values are omitted.
	Params map[string]any

	// Data is the body payload. It is only sent for body-bearing methods
	// (POST, PUT, PATCH).
	Data any

	Headers map[string]string

	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

// Clone returns a deep copy of the config so a caller-held template is never
// mutated by the transform chain of an individual call.
func (c *RequestConfig) Clone() *RequestConfig {
	if c == nil {
		return &RequestConfig{}
	}
	clone := &RequestConfig{
		URL:     c.URL,
		Method:  c.Method,
		Data:    c.Data,
		Timeout: c.Timeout,
	}
	if c.Params != nil {
		clone.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			clone.Params[k] = v
		}
	}
	if c.Headers != nil {
		clone.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			clone.Headers[k] = v
		}
	}
	return clone
}

// MergeRequestConfigs layers configs left to right: later sources win on
// scalar fields, while headers and params are merged key by key with later
// sources winning per key. Nil sources are skipped.
func MergeRequestConfigs(sources ...*RequestConfig) *RequestConfig {
	merged := &RequestConfig{}
	for _, src := range sources {
		if src == nil {
			continue
		}
		if src.URL != "" {
			merged.URL = src.URL
		}
		if src.Method != "" {
			merged.Method = src.Method
		}
		if src.Data != nil {
			merged.Data = src.Data
		}
		if src.Timeout != 0 {
			merged.Timeout = src.Timeout
		}
		for k, v := range src.Params {
			if merged.Params == nil {
				merged.Params = make(map[string]any)
			}
			merged.Params[k] = v
		}
		for k, v := range src.Headers {
			if merged.Headers == nil {
				merged.Headers = make(map[string]string)
			}
			merged.Headers[k] = v
		}
	}
	return merged
}
