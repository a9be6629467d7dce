package apiclient

import "context"

// RequestTransform inspects or mutates a request config in place before the
// transport call. Transforms run strictly in list order; a returned error
// aborts the call before the transport is reached.
type RequestTransform func(ctx context.Context, cfg *RequestConfig) error

// ResponseTransform inspects or mutates a finalized Response in place. It
// runs on both success and failure paths, so it can translate error payloads
// as well as successful bodies.
type ResponseTransform func(ctx context.Context, resp *Response) error

// applyRequestTransforms executes the chain sequentially against the same
// mutable config, so mutations accumulate. The first error aborts the chain.
func applyRequestTransforms(ctx context.Context, cfg *RequestConfig, transforms []RequestTransform) error {
	for _, transform := range transforms {
		if err := transform(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// applyResponseTransforms mirrors applyRequestTransforms for responses.
func applyResponseTransforms(ctx context.Context, resp *Response, transforms []ResponseTransform) error {
	for _, transform := range transforms {
		if err := transform(ctx, resp); err != nil {
			return err
		}
	}
	return nil
}
