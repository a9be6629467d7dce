package apiclient_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mshindi-labs/swrkit/pkg/apiclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport is a test double for the apiclient.Transport interface.
type mockTransport struct {
	mu        sync.Mutex
	calls     int
	lastURL   string
	lastBody  []byte
	RoundFunc func(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*apiclient.TransportResult, error)
}

func (m *mockTransport) RoundTrip(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*apiclient.TransportResult, error) {
	m.mu.Lock()
	m.calls++
	m.lastURL = fullURL
	m.lastBody = body
	m.mu.Unlock()
	if m.RoundFunc != nil {
		return m.RoundFunc(ctx, method, fullURL, headers, body)
	}
	return &apiclient.TransportResult{Status: 200, Body: []byte(`{}`)}, nil
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestClient(t *testing.T, cfg *apiclient.ClientConfig, transport *mockTransport) *apiclient.Client {
	t.Helper()
	if cfg == nil {
		cfg = &apiclient.ClientConfig{}
	}
	client, err := apiclient.NewClient(cfg, transport, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestClient_Do_Success(t *testing.T) {
	// Arrange
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return &apiclient.TransportResult{
				Status:  200,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    []byte(`{"name":"ada"}`),
			}, nil
		},
	}
	client := newTestClient(t, nil, transport)

	// Act
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/users/1"})

	// Assert
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, apiclient.ProblemNone, resp.Problem)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, map[string]any{"name": "ada"}, resp.Data)
	assert.Nil(t, resp.OriginalError)
}

func TestClient_Do_NotFoundKeepsParsedBody(t *testing.T) {
	// Arrange: a 404 with a structured error body must still surface the
	// parsed body alongside the classification.
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return &apiclient.TransportResult{Status: 404, Body: []byte(`{"error":"not found"}`)}, nil
		},
	}
	client := newTestClient(t, nil, transport)

	// Act
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/users/404"})

	// Assert
	require.Error(t, err)
	var typed *apiclient.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, apiclient.ProblemClientError, typed.Problem)
	assert.Equal(t, 404, typed.Status)
	assert.Same(t, resp, typed.Response)

	assert.False(t, resp.OK)
	assert.Equal(t, apiclient.ProblemClientError, resp.Problem)
	assert.Equal(t, map[string]any{"error": "not found"}, resp.Data)
}

func TestClient_Do_ResponseInvariant(t *testing.T) {
	// OK and Problem must always agree, whatever the transport does.
	outcomes := []func(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*apiclient.TransportResult, error){
		func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return &apiclient.TransportResult{Status: 204}, nil
		},
		func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return &apiclient.TransportResult{Status: 500, Body: []byte(`oops`)}, nil
		},
		func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return nil, &net.OpError{Op: "read", Err: syscall.ECONNRESET}
		},
	}

	for _, outcome := range outcomes {
		client := newTestClient(t, nil, &mockTransport{RoundFunc: outcome})
		resp, _ := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})
		require.NotNil(t, resp)
		assert.Equal(t, resp.OK, resp.Problem == apiclient.ProblemNone)
	}
}

func TestClient_Do_TransformOrderWithAuthHead(t *testing.T) {
	// Arrange: the auth transform is prepended at client creation, so user
	// transforms must observe an already-authenticated config, in order.
	var order []string
	appendChain := func(name string) apiclient.RequestTransform {
		return func(_ context.Context, cfg *apiclient.RequestConfig) error {
			if cfg.Headers["Authorization"] != "" {
				name = name + "+auth"
			}
			order = append(order, name)
			return nil
		}
	}
	cfg := &apiclient.ClientConfig{
		TokenSource: func(_ context.Context) (string, error) { return "token-1", nil },
		RequestTransforms: []apiclient.RequestTransform{
			appendChain("A"),
			appendChain("B"),
		},
	}
	client := newTestClient(t, cfg, &mockTransport{})

	// Act
	_, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"A+auth", "B+auth"}, order)
}

func TestClient_Do_AuthDoesNotOverwriteExplicitHeader(t *testing.T) {
	// Arrange
	var seen string
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, headers map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			seen = headers["Authorization"]
			return &apiclient.TransportResult{Status: 200}, nil
		},
	}
	cfg := &apiclient.ClientConfig{
		TokenSource: func(_ context.Context) (string, error) { return "token-1", nil },
	}
	client := newTestClient(t, cfg, transport)

	// Act
	_, err := client.Do(context.Background(), &apiclient.RequestConfig{
		URL:     "/x",
		Headers: map[string]string{"Authorization": "Bearer explicit"},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Bearer explicit", seen)
}

func TestClient_Do_RequestTransformFailureSkipsTransport(t *testing.T) {
	// Arrange
	transport := &mockTransport{}
	monitorCalled := false
	cfg := &apiclient.ClientConfig{
		RequestTransforms: []apiclient.RequestTransform{
			func(_ context.Context, _ *apiclient.RequestConfig) error {
				return errors.New("bad transform")
			},
		},
		Monitors: []apiclient.Monitor{
			func(_ *apiclient.Response) { monitorCalled = true },
		},
	}
	client := newTestClient(t, cfg, transport)

	// Act
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})

	// Assert
	require.Error(t, err)
	var typed *apiclient.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, apiclient.ProblemUnknown, typed.Problem)
	assert.Equal(t, 0, transport.callCount(), "transport must not be reached")
	assert.False(t, resp.OK)
	assert.True(t, monitorCalled, "monitors run on the failure path too")
}

func TestClient_Do_TransformErrorKeepsItsClassification(t *testing.T) {
	// Arrange: a transform failing with a pre-classified error keeps it.
	cfg := &apiclient.ClientConfig{
		RequestTransforms: []apiclient.RequestTransform{
			func(_ context.Context, _ *apiclient.RequestConfig) error {
				return apiclient.NewError(apiclient.ProblemCancelled, "aborted upstream", nil)
			},
		},
	}
	client := newTestClient(t, cfg, &mockTransport{})

	// Act
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})

	// Assert
	require.Error(t, err)
	assert.Equal(t, apiclient.ProblemCancelled, resp.Problem)
}

func TestClient_Do_MonitorIsolation(t *testing.T) {
	// Arrange: a panicking monitor must not block the next one or change the
	// response.
	secondCalled := false
	cfg := &apiclient.ClientConfig{
		Monitors: []apiclient.Monitor{
			func(_ *apiclient.Response) { panic("monitor blew up") },
			func(_ *apiclient.Response) { secondCalled = true },
		},
	}
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return &apiclient.TransportResult{Status: 200, Body: []byte(`{"ok":true}`)}, nil
		},
	}
	client := newTestClient(t, cfg, transport)

	// Act
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})

	// Assert
	require.NoError(t, err)
	assert.True(t, secondCalled)
	assert.True(t, resp.OK)
	assert.Equal(t, map[string]any{"ok": true}, resp.Data)
}

func TestClient_Do_TimeoutClassification(t *testing.T) {
	// Arrange: a transport that never resolves must reject within the
	// configured timeout with a TIMEOUT classification.
	transport := &mockTransport{
		RoundFunc: func(ctx context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	client := newTestClient(t, &apiclient.ClientConfig{DefaultTimeout: 100 * time.Millisecond}, transport)

	// Act
	start := time.Now()
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/slow"})

	// Assert
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, apiclient.ProblemTimeout, resp.Problem)
}

func TestClient_Do_CallerCancellation(t *testing.T) {
	// Arrange
	transport := &mockTransport{
		RoundFunc: func(ctx context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	monitorCalled := false
	cfg := &apiclient.ClientConfig{
		Monitors: []apiclient.Monitor{func(_ *apiclient.Response) { monitorCalled = true }},
	}
	client := newTestClient(t, cfg, transport)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	// Act
	resp, err := client.Do(ctx, &apiclient.RequestConfig{URL: "/x"})

	// Assert: cancellation surfaces as a classified failure, and the tail of
	// the pipeline still runs.
	require.Error(t, err)
	assert.Equal(t, apiclient.ProblemCancelled, resp.Problem)
	assert.True(t, monitorCalled)
}

func TestClient_Do_ConnectionRefusedClassification(t *testing.T) {
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return nil, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
		},
	}
	client := newTestClient(t, nil, transport)

	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})

	require.Error(t, err)
	assert.Equal(t, apiclient.ProblemConnection, resp.Problem)
}

func TestClient_Do_QueryStringIsSorted(t *testing.T) {
	// Arrange
	transport := &mockTransport{}
	client := newTestClient(t, &apiclient.ClientConfig{BaseURL: "https://api.example.com"}, transport)

	// Act
	_, err := client.Do(context.Background(), &apiclient.RequestConfig{
		URL:    "/users",
		Params: map[string]any{"page": 1, "limit": 10, "skip": nil},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users?limit=10&page=1", transport.lastURL)
}

func TestClient_Do_HeaderMergePrecedence(t *testing.T) {
	// Arrange
	var seen map[string]string
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, headers map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			seen = headers
			return &apiclient.TransportResult{Status: 200}, nil
		},
	}
	cfg := &apiclient.ClientConfig{
		DefaultHeaders: map[string]string{"Accept": "application/json", "X-App": "swrkit"},
	}
	client := newTestClient(t, cfg, transport)

	// Act
	_, err := client.Do(context.Background(), &apiclient.RequestConfig{
		URL:     "/x",
		Headers: map[string]string{"Accept": "text/plain"},
	})

	// Assert: the call wins per key, defaults fill the rest.
	require.NoError(t, err)
	assert.Equal(t, "text/plain", seen["Accept"])
	assert.Equal(t, "swrkit", seen["X-App"])
}

func TestClient_Do_BodyOnlyForBodyBearingMethods(t *testing.T) {
	// Arrange
	transport := &mockTransport{}
	client := newTestClient(t, nil, transport)
	payload := map[string]any{"name": "ada"}

	// Act: GET never sends a body, even when Data is set.
	_, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x", Method: "GET", Data: payload})
	require.NoError(t, err)
	assert.Nil(t, transport.lastBody)

	// Act: POST serializes Data as JSON.
	_, err = client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x", Method: "POST", Data: payload})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ada"}`, string(transport.lastBody))
}

func TestClient_Do_ResponseTransformSeesFailures(t *testing.T) {
	// Arrange: a response transform can rewrite an error payload.
	cfg := &apiclient.ClientConfig{
		ResponseTransforms: []apiclient.ResponseTransform{
			func(_ context.Context, resp *apiclient.Response) error {
				if !resp.OK {
					if body, ok := resp.Data.(map[string]any); ok {
						if msg, ok := body["message"].(string); ok {
							body["message"] = strings.ToUpper(msg)
						}
					}
				}
				return nil
			},
		},
	}
	transport := &mockTransport{
		RoundFunc: func(_ context.Context, _, _ string, _ map[string]string, _ []byte) (*apiclient.TransportResult, error) {
			return &apiclient.TransportResult{Status: 500, Body: []byte(`{"message":"broken"}`)}, nil
		},
	}
	client := newTestClient(t, cfg, transport)

	// Act
	resp, err := client.Do(context.Background(), &apiclient.RequestConfig{URL: "/x"})

	// Assert
	require.Error(t, err)
	assert.Equal(t, map[string]any{"message": "BROKEN"}, resp.Data)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := apiclient.NewClient(nil, &mockTransport{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = apiclient.NewClient(&apiclient.ClientConfig{}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = apiclient.NewClient(&apiclient.ClientConfig{BaseURL: "not a url"}, &mockTransport{}, zerolog.Nop())
	assert.Error(t, err)
}
