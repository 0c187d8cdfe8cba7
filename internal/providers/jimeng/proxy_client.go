package jimeng

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"visualgen/internal/infra"
	"visualgen/internal/metrics"
)

// DefaultProxyBaseURL is where the local signing proxy listens by default.
const DefaultProxyBaseURL = "http://localhost:5000"

const (
	proxyStatusPath     = "/api/check-status"
	proxyEditStatusPath = "/api/image-edit-status"
)

// ProxyOptions configures the proxied client.
type ProxyOptions struct {
	BaseURL        string
	Token          string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// ProxyClient holds no secrets. It posts unsigned form payloads to the local
// signing proxy and relays its envelopes.
type ProxyClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewProxyClient builds a client for the proxy at opts.BaseURL.
func NewProxyClient(opts ProxyOptions) *ProxyClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultProxyBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ProxyClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		logger:     loggerOrDiscard(opts.Logger),
	}
}

// Submit posts the form payload to /api/<kind>. A 5xx answer is a
// *TransportError; any other unsuccessful envelope is a *SubmissionError.
func (c *ProxyClient) Submit(ctx context.Context, req Request) (*Envelope, error) {
	if err := Validate(req); err != nil {
		kind := Kind("")
		if req != nil {
			kind = req.Kind()
		}
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "invalid").Inc()
		return nil, &SubmissionError{Kind: kind, Code: "invalid_request", Message: err.Error()}
	}
	kind := req.Kind()

	status, env, err := c.post(ctx, "/api/"+string(kind), req.form())
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "transport_error").Inc()
		return nil, &TransportError{Op: "submit", Err: err}
	}
	if !env.Success {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "rejected").Inc()
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("proxy answered with status %d", status)
		}
		return nil, &SubmissionError{Kind: kind, HTTPStatus: status, Message: msg}
	}
	if env.Data == nil || strings.TrimSpace(env.Data.TaskID) == "" {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "rejected").Inc()
		return nil, &SubmissionError{Kind: kind, HTTPStatus: status, Message: "no task id returned"}
	}

	outcome := "accepted"
	if kind.Synchronous() {
		outcome = "completed"
	}
	metrics.SubmissionsTotal.WithLabelValues(string(kind), outcome).Inc()
	c.logger.Info().
		Str("kind", string(kind)).
		Str("task_id", env.Data.TaskID).
		Msg("jimeng: task submitted via proxy")
	return env, nil
}

// Poll asks the proxy for the task status. Image edits use their own route.
// A 5xx answer is a *TransportError; a 4xx envelope is returned as-is.
func (c *ProxyClient) Poll(ctx context.Context, taskID string, kind Kind) (*Envelope, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, &TransportError{Op: "poll", Err: errors.New("task id is required")}
	}
	path := proxyStatusPath
	if kind == KindImageEdit {
		path = proxyEditStatusPath
	}
	_, env, err := c.post(ctx, path, ProxyPayload{Kind: kind, TaskID: taskID})
	if err != nil {
		return nil, &TransportError{Op: "poll", Err: err}
	}
	return env, nil
}

func (c *ProxyClient) post(ctx context.Context, path string, payload ProxyPayload) (int, *Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= http.StatusInternalServerError {
		// the proxy could not reach the provider or failed itself
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, nil, fmt.Errorf("proxy answered with status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, decodeErr)
	}
	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Bool("success", env.Success).
		Msg("jimeng: proxy call")
	return resp.StatusCode, &env, nil
}

var _ TaskClient = (*ProxyClient)(nil)
