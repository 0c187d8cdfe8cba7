// Package jimeng is the job lifecycle client for the Volcengine Jimeng visual
// generation API: typed submissions, status queries and the poll loop.
package jimeng

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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"visualgen/internal/infra"
	"visualgen/internal/metrics"
	"visualgen/internal/providers/volcengine"
)

const (
	DefaultBaseURL = "https://visual.volcengineapi.com"
	APIVersion     = "2022-08-31"

	ActionSubmitTask = "CVSync2AsyncSubmitTask"
	ActionGetResult  = "CVSync2AsyncGetResult"
	ActionProcess    = "CVProcess"

	successCode = 10000
)

// DefaultReqKeys maps each kind to the provider model key.
var DefaultReqKeys = map[Kind]string{
	KindTextToVideo:  "jimeng_vgfm_t2v_l20",
	KindImageToVideo: "jimeng_vgfm_i2v_l20",
	KindTextToImage:  "jimeng_high_aes_general_v21_L",
	KindImageToImage: "high_aes_scheduler_svr_controlnet_v2.0",
	KindImageEdit:    "seededit_v3.0",
}

// TaskClient submits generation jobs and queries their status. Both calls
// return the uniform Envelope.
type TaskClient interface {
	Submit(ctx context.Context, req Request) (*Envelope, error)
	Poll(ctx context.Context, taskID string, kind Kind) (*Envelope, error)
}

// Options configures the direct-signed client.
type Options struct {
	Credentials    volcengine.Credentials
	BaseURL        string
	Host           string
	ReqKeys        map[Kind]string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Limiter        *rate.Limiter
	Logger         *infra.Logger
	Locale         string
	Now            func() time.Time
}

// Client signs every call itself and talks to the provider directly.
type Client struct {
	creds      volcengine.Credentials
	signer     *volcengine.Signer
	endpoint   *url.URL
	reqKeys    map[Kind]string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *infra.Logger
	locale     string
	now        func() time.Time
}

// NewClient validates the credentials up front; missing key material is a
// ConfigurationError here rather than on the first request.
func NewClient(opts Options) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint, err := url.Parse(base)
	if err != nil || endpoint.Host == "" {
		return nil, &ConfigurationError{Field: "base_url", Err: fmt.Errorf("jimeng: invalid base url %q", base)}
	}
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = endpoint.Host
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	reqKeys := make(map[Kind]string, len(DefaultReqKeys))
	for k, v := range DefaultReqKeys {
		reqKeys[k] = v
	}
	for k, v := range opts.ReqKeys {
		if v = strings.TrimSpace(v); v != "" {
			reqKeys[k] = v
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		creds:      opts.Credentials,
		signer:     volcengine.NewSigner(host),
		endpoint:   endpoint,
		reqKeys:    reqKeys,
		httpClient: httpClient,
		limiter:    opts.Limiter,
		logger:     loggerOrDiscard(opts.Logger),
		locale:     opts.Locale,
		now:        now,
	}, nil
}

// ReqKey returns the model key used for kind.
func (c *Client) ReqKey(kind Kind) string {
	return c.reqKeys[kind]
}

// Submit sends the job. Asynchronous kinds yield a pending envelope with the
// task id; synchronous image kinds yield a done envelope with the result.
func (c *Client) Submit(ctx context.Context, req Request) (*Envelope, error) {
	if err := Validate(req); err != nil {
		kind := Kind("")
		if req != nil {
			kind = req.Kind()
		}
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "invalid").Inc()
		return nil, &SubmissionError{Kind: kind, Code: "invalid_request", Message: err.Error()}
	}
	kind := req.Kind()
	body, err := json.Marshal(req.providerBody(c.reqKeys[kind]))
	if err != nil {
		return nil, fmt.Errorf("jimeng: encode %s request: %w", kind, err)
	}

	action := ActionSubmitTask
	if kind.Synchronous() {
		action = ActionProcess
	}

	status, raw, err := c.send(ctx, actionQuery(action), body)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "transport_error").Inc()
		return nil, &TransportError{Op: "submit", Err: err}
	}

	resp, err := decodeProviderResponse(raw)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "rejected").Inc()
		if status >= 300 {
			return nil, &SubmissionError{Kind: kind, HTTPStatus: status, Message: strings.TrimSpace(string(raw))}
		}
		return nil, &TransportError{Op: "submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if code, msg, failed := resp.failure(status); failed {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "rejected").Inc()
		c.logger.Warn().
			Str("kind", string(kind)).
			Str("code", code).
			Str("request_id", resp.requestID()).
			Msg("jimeng: submission rejected")
		return nil, &SubmissionError{Kind: kind, HTTPStatus: status, Code: code, Message: msg}
	}

	data := resp.payload()
	if kind.Synchronous() {
		imageURL := data.firstImageURL()
		if imageURL == "" {
			metrics.SubmissionsTotal.WithLabelValues(string(kind), "rejected").Inc()
			return nil, &SubmissionError{Kind: kind, HTTPStatus: status, Message: "no image returned"}
		}
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "completed").Inc()
		return &Envelope{
			Success: true,
			Data: &EnvelopeData{
				TaskID: syntheticTaskID(kind),
				Status: string(StatusDone),
				Result: &GenerationResult{
					Type:        MediaImage,
					URL:         imageURL,
					Description: strings.TrimSpace(data.RephraserResult),
				},
			},
		}, nil
	}

	taskID := strings.TrimSpace(data.TaskID)
	if taskID == "" {
		metrics.SubmissionsTotal.WithLabelValues(string(kind), "rejected").Inc()
		return nil, &SubmissionError{Kind: kind, HTTPStatus: status, Message: "no task id returned"}
	}
	metrics.SubmissionsTotal.WithLabelValues(string(kind), "accepted").Inc()
	c.logger.Info().
		Str("kind", string(kind)).
		Str("task_id", taskID).
		Str("request_id", resp.requestID()).
		Msg("jimeng: task submitted")
	return &Envelope{
		Success: true,
		Data:    &EnvelopeData{TaskID: taskID, Status: string(StatusPending)},
	}, nil
}

// Poll queries the task once. Transport and decode failures are returned as
// *TransportError; a provider-side refusal of the query comes back as an
// unsuccessful envelope. Unknown or expired tasks are reported as failed.
func (c *Client) Poll(ctx context.Context, taskID string, kind Kind) (*Envelope, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, &TransportError{Op: "poll", Err: errors.New("task id is required")}
	}
	if kind.Synchronous() {
		return nil, &TransportError{Op: "poll", Err: fmt.Errorf("%s tasks have no status to query", kind)}
	}
	body, err := json.Marshal(pollBody{
		ReqKey:  c.reqKeys[kind],
		TaskID:  taskID,
		ReqJSON: pollRequestJSON(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("jimeng: encode poll request: %w", err)
	}

	status, raw, err := c.send(ctx, actionQuery(ActionGetResult), body)
	if err != nil {
		return nil, &TransportError{Op: "poll", Err: err}
	}
	resp, err := decodeProviderResponse(raw)
	if err != nil {
		return nil, &TransportError{Op: "poll", Err: fmt.Errorf("decode response (status %d): %w", status, err)}
	}
	if _, msg, failed := resp.failure(status); failed {
		return failureEnvelope("%s", msg), nil
	}

	data := resp.payload()
	providerStatus := strings.TrimSpace(data.Status)
	if providerStatus == "" {
		providerStatus = string(StatusProcessing)
	}

	switch providerStatus {
	case "not_found":
		return failedTaskEnvelope(taskID, fmt.Sprintf("task %s not found or expired", taskID)), nil
	case "expired":
		return failedTaskEnvelope(taskID, fmt.Sprintf("task %s expired, please resubmit", taskID)), nil
	}

	out := &EnvelopeData{TaskID: taskID, Status: providerStatus}
	if providerStatus == string(StatusDone) {
		switch kind.MediaType() {
		case MediaVideo:
			if videoURL := strings.TrimSpace(data.VideoURL); videoURL != "" {
				out.VideoURL = videoURL
				out.Result = &GenerationResult{Type: MediaVideo, URL: videoURL}
			}
		default:
			if imageURL := data.firstImageURL(); imageURL != "" {
				out.Result = &GenerationResult{Type: MediaImage, URL: imageURL}
			}
		}
	} else {
		out.StatusMessage = DisplayText(providerStatus, c.locale)
	}
	return &Envelope{Success: true, Data: out}, nil
}

// Forward signs an arbitrary body with the caller's query string and returns
// the provider's raw answer.
func (c *Client) Forward(ctx context.Context, rawQuery string, body []byte) (int, []byte, error) {
	status, raw, err := c.send(ctx, rawQuery, body)
	if err != nil {
		return 0, nil, &TransportError{Op: "forward", Err: err}
	}
	return status, raw, nil
}

func (c *Client) send(ctx context.Context, rawQuery string, body []byte) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	action := actionFromQuery(rawQuery)

	path := c.endpoint.EscapedPath()
	if path == "" {
		path = "/"
	}
	sig, err := c.signer.Sign(volcengine.SignableRequest{
		Method:    http.MethodPost,
		Path:      path,
		Query:     rawQuery,
		Body:      body,
		Timestamp: c.now(),
	}, c.creds)
	if err != nil {
		return 0, nil, err
	}

	target := *c.endpoint
	target.RawQuery = rawQuery
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	sig.Apply(httpReq)
	if host := c.signer.Host; host != "" && host != c.endpoint.Host {
		// the signature covers the host line, so the wire must carry the same value
		httpReq.Host = host
	}

	c.logger.Debug().
		Str("action", action).
		Str("x_date", sig.Date).
		Str("canonical_request", sig.CanonicalRequest).
		Msg("jimeng: signed request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.SignedRequestsTotal.WithLabelValues(action, "transport_error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.SignedRequestsTotal.WithLabelValues(action, "transport_error").Inc()
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	result := "ok"
	if resp.StatusCode >= 300 {
		result = "http_error"
	}
	metrics.SignedRequestsTotal.WithLabelValues(action, result).Inc()
	return resp.StatusCode, raw, nil
}

type providerData struct {
	TaskID          string   `json:"task_id"`
	Status          string   `json:"status"`
	VideoURL        string   `json:"video_url"`
	ImageURLs       []string `json:"image_urls"`
	RephraserResult string   `json:"rephraser_result"`
}

func (d *providerData) firstImageURL() string {
	for _, u := range d.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

type providerResponse struct {
	Code      int           `json:"code"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id"`
	Data      *providerData `json:"data"`
	Result    *struct {
		Code    int           `json:"code"`
		Message string        `json:"message"`
		Data    *providerData `json:"data"`
	} `json:"Result"`
	ResponseMetadata *struct {
		RequestID string `json:"RequestId"`
		Error     *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
	} `json:"ResponseMetadata"`
}

func decodeProviderResponse(raw []byte) (*providerResponse, error) {
	var resp providerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// failure reports the provider error carried by the response, if any.
func (r *providerResponse) failure(httpStatus int) (string, string, bool) {
	if md := r.ResponseMetadata; md != nil && md.Error != nil && (md.Error.Code != "" || md.Error.Message != "") {
		return md.Error.Code, md.Error.Message, true
	}
	if r.Result != nil {
		if r.Result.Code != 0 && r.Result.Code != successCode {
			return strconv.Itoa(r.Result.Code), messageOr(r.Result.Message, r.Result.Code), true
		}
	} else if r.Code != successCode {
		return strconv.Itoa(r.Code), messageOr(r.Message, r.Code), true
	}
	if httpStatus >= 300 {
		return strconv.Itoa(httpStatus), fmt.Sprintf("provider answered with status %d", httpStatus), true
	}
	return "", "", false
}

func (r *providerResponse) payload() *providerData {
	if r.Data != nil {
		return r.Data
	}
	if r.Result != nil && r.Result.Data != nil {
		return r.Result.Data
	}
	return &providerData{}
}

func (r *providerResponse) requestID() string {
	if r.RequestID != "" {
		return r.RequestID
	}
	if r.ResponseMetadata != nil {
		return r.ResponseMetadata.RequestID
	}
	return ""
}

func messageOr(msg string, code int) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return fmt.Sprintf("provider error code %d", code)
}

func actionQuery(action string) string {
	return "Action=" + action + "&Version=" + APIVersion
}

func actionFromQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "unknown"
	}
	if action := values.Get("Action"); action != "" {
		return action
	}
	return "unknown"
}

func syntheticTaskID(kind Kind) string {
	prefix := "img"
	if kind == KindImageToImage {
		prefix = "img2img"
	}
	return prefix + "_" + uuid.NewString()
}

func loggerOrDiscard(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	logger := infra.Logger(discard)
	return &logger
}

var _ TaskClient = (*Client)(nil)
