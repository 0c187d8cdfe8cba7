package jimeng

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visualgen/internal/providers/volcengine"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func testCredentials() volcengine.Credentials {
	return volcengine.Credentials{
		AccessKey: "AKLTexample",
		SecretKey: []byte("secret-key-bytes"),
		Region:    volcengine.DefaultRegion,
		Service:   volcengine.DefaultService,
	}
}

func newTestClient(t *testing.T, transport http.RoundTripper) *Client {
	t.Helper()
	client, err := NewClient(Options{
		Credentials: testCredentials(),
		HTTPClient:  &http.Client{Transport: transport},
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return client
}

type capturedRequest struct {
	action string
	host   string
	header http.Header
	query  string
	body   []byte
}

// actionTransport answers by the Action query parameter and records every call.
type actionTransport struct {
	mu        sync.Mutex
	responses map[string][]responseStub
	requests  []capturedRequest
	err       error
}

type responseStub struct {
	status int
	body   string
}

func newActionTransport() *actionTransport {
	return &actionTransport{responses: map[string][]responseStub{}}
}

func (a *actionTransport) queue(action string, status int, payload any) {
	var body string
	switch v := payload.(type) {
	case string:
		body = v
	default:
		raw, _ := json.Marshal(v)
		body = string(raw)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[action] = append(a.responses[action], responseStub{status: status, body: body})
}

func (a *actionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body.Close()

	a.mu.Lock()
	defer a.mu.Unlock()
	action := req.URL.Query().Get("Action")
	a.requests = append(a.requests, capturedRequest{
		action: action,
		host:   req.Host,
		header: req.Header.Clone(),
		query:  req.URL.RawQuery,
		body:   body,
	})
	if a.err != nil {
		return nil, a.err
	}
	stubs := a.responses[action]
	if len(stubs) == 0 {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader("not found")),
			Header:     http.Header{},
		}, nil
	}
	stub := stubs[0]
	if len(stubs) > 1 {
		a.responses[action] = stubs[1:]
	}
	return &http.Response{
		StatusCode: stub.status,
		Body:       io.NopCloser(strings.NewReader(stub.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func (a *actionTransport) calls() []capturedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]capturedRequest(nil), a.requests...)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Options{Credentials: volcengine.Credentials{AccessKey: "ak"}})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(Options{Credentials: testCredentials(), BaseURL: "::not a url"})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "base_url", cfgErr.Field)
}

func TestSubmitTextToVideoSignsAndDecodesTaskID(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionSubmitTask, http.StatusOK, map[string]any{
		"code":       10000,
		"message":    "Success",
		"request_id": "req-1",
		"data":       map[string]any{"task_id": "T1"},
	})
	client := newTestClient(t, transport)

	env, err := client.Submit(context.Background(), TextToVideo{Prompt: "a cat on a skateboard", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.True(t, env.Success)
	require.NotNil(t, env.Data)
	assert.Equal(t, "T1", env.Data.TaskID)
	assert.Equal(t, string(StatusPending), env.Data.Status)

	calls := transport.calls()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "Action=CVSync2AsyncSubmitTask&Version=2022-08-31", call.query)

	var body map[string]any
	require.NoError(t, json.Unmarshal(call.body, &body))
	assert.Equal(t, "jimeng_vgfm_t2v_l20", body["req_key"])
	assert.Equal(t, "a cat on a skateboard", body["prompt"])
	assert.Equal(t, "16:9", body["aspect_ratio"])
	assert.EqualValues(t, -1, body["seed"])

	want, err := volcengine.NewSigner(volcengine.DefaultHost).Sign(volcengine.SignableRequest{
		Path:      "/",
		Query:     call.query,
		Body:      call.body,
		Timestamp: fixedNow,
	}, testCredentials())
	require.NoError(t, err)
	assert.Equal(t, want.Authorization, call.header.Get("Authorization"))
	assert.Equal(t, "20240102T030405Z", call.header.Get("X-Date"))
	assert.Equal(t, want.ContentSHA256, call.header.Get("X-Content-Sha256"))
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))
}

func TestSubmitSignsEveryCallFresh(t *testing.T) {
	transport := newActionTransport()
	ok := map[string]any{"code": 10000, "data": map[string]any{"task_id": "T1"}}
	transport.queue(ActionSubmitTask, http.StatusOK, ok)
	transport.queue(ActionSubmitTask, http.StatusOK, ok)

	ticks := []time.Time{fixedNow, fixedNow.Add(time.Second)}
	var i int
	client, err := NewClient(Options{
		Credentials: testCredentials(),
		HTTPClient:  &http.Client{Transport: transport},
		Now: func() time.Time {
			ts := ticks[i%len(ticks)]
			i++
			return ts
		},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.Submit(context.Background(), TextToVideo{Prompt: "p"})
		require.NoError(t, err)
	}
	calls := transport.calls()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].header.Get("Authorization"), calls[1].header.Get("Authorization"))
	assert.NotEqual(t, calls[0].header.Get("X-Date"), calls[1].header.Get("X-Date"))
}

func TestSubmitProviderErrorIsSubmissionError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		payload  any
		wantCode string
		wantMsg  string
	}{
		{
			name:   "response metadata error",
			status: http.StatusUnauthorized,
			payload: map[string]any{
				"ResponseMetadata": map[string]any{
					"RequestId": "r",
					"Error":     map[string]any{"Code": "SignatureDoesNotMatch", "Message": "signature mismatch"},
				},
			},
			wantCode: "SignatureDoesNotMatch",
			wantMsg:  "signature mismatch",
		},
		{
			name:     "business code",
			status:   http.StatusBadRequest,
			payload:  map[string]any{"code": 50413, "message": "Post Text Risk Not Pass"},
			wantCode: "50413",
			wantMsg:  "Post Text Risk Not Pass",
		},
		{
			name:     "non json error page",
			status:   http.StatusBadGateway,
			payload:  "<html>bad gateway</html>",
			wantCode: "",
			wantMsg:  "<html>bad gateway</html>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newActionTransport()
			transport.queue(ActionSubmitTask, tt.status, tt.payload)
			client := newTestClient(t, transport)

			_, err := client.Submit(context.Background(), TextToVideo{Prompt: "p"})
			var subErr *SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.status, subErr.HTTPStatus)
			assert.Equal(t, tt.wantCode, subErr.Code)
			assert.Equal(t, tt.wantMsg, subErr.Message)
			assert.Equal(t, KindTextToVideo, subErr.Kind)
		})
	}
}

func TestSubmitInvalidRequestNeverSends(t *testing.T) {
	transport := newActionTransport()
	client := newTestClient(t, transport)

	_, err := client.Submit(context.Background(), ImageEdit{Prompt: "make it blue"})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "invalid_request", subErr.Code)
	assert.Empty(t, transport.calls())
}

func TestSubmitTransportFailure(t *testing.T) {
	transport := newActionTransport()
	transport.err = errors.New("connection reset")
	client := newTestClient(t, transport)

	_, err := client.Submit(context.Background(), TextToVideo{Prompt: "p"})
	var trErr *TransportError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, "submit", trErr.Op)
}

func TestSubmitTextToImageIsSynchronous(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionProcess, http.StatusOK, map[string]any{
		"code": 10000,
		"data": map[string]any{
			"image_urls":       []string{"https://x/i.png"},
			"rephraser_result": "a cat, skateboard, sunny",
		},
	})
	client := newTestClient(t, transport)

	env, err := client.Submit(context.Background(), TextToImage{Prompt: "a cat"})
	require.NoError(t, err)
	require.NotNil(t, env.Data)
	assert.True(t, strings.HasPrefix(env.Data.TaskID, "img_"))
	assert.Equal(t, string(StatusDone), env.Data.Status)
	require.NotNil(t, env.Data.Result)
	assert.Equal(t, GenerationResult{Type: MediaImage, URL: "https://x/i.png", Description: "a cat, skateboard, sunny"}, *env.Data.Result)

	calls := transport.calls()
	require.Len(t, calls, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(calls[0].body, &body))
	assert.Equal(t, "jimeng_high_aes_general_v21_L", body["req_key"])
	assert.EqualValues(t, 512, body["width"])
	assert.Equal(t, true, body["return_url"])
	assert.Equal(t, true, body["use_pre_llm"])
}

func TestSubmitImageToImageSyntheticID(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionProcess, http.StatusOK, map[string]any{
		"code": 10000,
		"data": map[string]any{"image_urls": []string{"", "https://x/j.png"}},
	})
	client := newTestClient(t, transport)

	env, err := client.Submit(context.Background(), ImageToImage{ImageBase64: "aGVsbG8="})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(env.Data.TaskID, "img2img_"))
	assert.Equal(t, "https://x/j.png", env.Data.Result.URL)

	var body map[string]any
	require.NoError(t, json.Unmarshal(transport.calls()[0].body, &body))
	assert.Equal(t, defaultImageToImagePrompt, body["prompt"])
	args := body["controlnet_args"].([]any)
	require.Len(t, args, 1)
	assert.Equal(t, "depth", args[0].(map[string]any)["type"])
	assert.EqualValues(t, 0.6, args[0].(map[string]any)["strength"])
}

func TestSubmitKeepsExplicitZeroStrength(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionSubmitTask, http.StatusOK, map[string]any{"code": 10000, "data": map[string]any{"task_id": "E1"}})
	transport.queue(ActionSubmitTask, http.StatusOK, map[string]any{"code": 10000, "data": map[string]any{"task_id": "E2"}})
	client := newTestClient(t, transport)

	zero := 0.0
	_, err := client.Submit(context.Background(), ImageEdit{Prompt: "same but sharper", ImageBase64: "aGk=", Strength: &zero})
	require.NoError(t, err)
	_, err = client.Submit(context.Background(), ImageEdit{Prompt: "same but sharper", ImageBase64: "aGk="})
	require.NoError(t, err)

	calls := transport.calls()
	require.Len(t, calls, 2)
	var explicit, defaulted map[string]any
	require.NoError(t, json.Unmarshal(calls[0].body, &explicit))
	require.NoError(t, json.Unmarshal(calls[1].body, &defaulted))
	assert.EqualValues(t, 0, explicit["scale"])
	assert.EqualValues(t, defaultEditStrength, defaulted["scale"])
}

func TestPollStatuses(t *testing.T) {
	tests := []struct {
		name        string
		kind        Kind
		payload     map[string]any
		wantSuccess bool
		wantStatus  string
		wantResult  *GenerationResult
		wantVideo   string
		wantMessage string
		wantError   string
	}{
		{
			name:        "processing synonym",
			kind:        KindTextToVideo,
			payload:     map[string]any{"code": 10000, "data": map[string]any{"status": "in_queue"}},
			wantSuccess: true,
			wantStatus:  "in_queue",
		},
		{
			name:        "video done",
			kind:        KindTextToVideo,
			payload:     map[string]any{"code": 10000, "data": map[string]any{"status": "done", "video_url": "https://x/v.mp4"}},
			wantSuccess: true,
			wantStatus:  "done",
			wantVideo:   "https://x/v.mp4",
			wantResult:  &GenerationResult{Type: MediaVideo, URL: "https://x/v.mp4"},
		},
		{
			name: "image edit done through legacy wrapper",
			kind: KindImageEdit,
			payload: map[string]any{"Result": map[string]any{
				"code": 10000,
				"data": map[string]any{"status": "done", "image_urls": []string{"https://x/e.png"}},
			}},
			wantSuccess: true,
			wantStatus:  "done",
			wantResult:  &GenerationResult{Type: MediaImage, URL: "https://x/e.png"},
		},
		{
			name:        "not found",
			kind:        KindTextToVideo,
			payload:     map[string]any{"code": 10000, "data": map[string]any{"status": "not_found"}},
			wantSuccess: true,
			wantStatus:  "failed",
			wantMessage: "task T1 not found or expired",
		},
		{
			name:        "expired",
			kind:        KindImageToVideo,
			payload:     map[string]any{"code": 10000, "data": map[string]any{"status": "expired"}},
			wantSuccess: true,
			wantStatus:  "failed",
			wantMessage: "task T1 expired, please resubmit",
		},
		{
			name:      "provider refusal",
			kind:      KindTextToVideo,
			payload:   map[string]any{"code": 50500, "message": "Internal Error"},
			wantError: "Internal Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newActionTransport()
			transport.queue(ActionGetResult, http.StatusOK, tt.payload)
			client := newTestClient(t, transport)

			env, err := client.Poll(context.Background(), "T1", tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, env.Success)
			if !tt.wantSuccess {
				assert.Equal(t, tt.wantError, env.Error)
				return
			}
			assert.Equal(t, "T1", env.Data.TaskID)
			assert.Equal(t, tt.wantStatus, env.Data.Status)
			assert.Equal(t, tt.wantVideo, env.Data.VideoURL)
			assert.Equal(t, tt.wantResult, env.Data.Result)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, env.Data.StatusMessage)
			}
		})
	}
}

func TestPollRequestBody(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionGetResult, http.StatusOK, map[string]any{"code": 10000, "data": map[string]any{"status": "generating"}})
	client := newTestClient(t, transport)

	env, err := client.Poll(context.Background(), "T9", KindImageEdit)
	require.NoError(t, err)
	assert.Equal(t, "Generating", env.Data.StatusMessage)

	calls := transport.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Action=CVSync2AsyncGetResult&Version=2022-08-31", calls[0].query)
	var body map[string]any
	require.NoError(t, json.Unmarshal(calls[0].body, &body))
	assert.Equal(t, "seededit_v3.0", body["req_key"])
	assert.Equal(t, "T9", body["task_id"])
	assert.JSONEq(t, `{"return_url":true,"logo_info":{"add_logo":false}}`, body["req_json"].(string))
}

func TestPollMalformedPayloadIsTransportError(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionGetResult, http.StatusOK, "{not json")
	client := newTestClient(t, transport)

	_, err := client.Poll(context.Background(), "T1", KindTextToVideo)
	var trErr *TransportError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, "poll", trErr.Op)
}

func TestPollRejectsSynchronousKinds(t *testing.T) {
	client := newTestClient(t, newActionTransport())
	_, err := client.Poll(context.Background(), "img_1", KindTextToImage)
	require.Error(t, err)
}

func TestHostOverrideIsSentOnTheWire(t *testing.T) {
	var seenHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHost = r.Host
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":10000,"data":{"task_id":"T1"}}`))
	}))
	defer upstream.Close()

	client, err := NewClient(Options{
		Credentials: testCredentials(),
		BaseURL:     upstream.URL,
		Host:        volcengine.DefaultHost,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), TextToVideo{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, volcengine.DefaultHost, seenHost)
}

func TestHostDefaultsToBaseURLHost(t *testing.T) {
	transport := newActionTransport()
	transport.queue(ActionSubmitTask, http.StatusOK, map[string]any{"code": 10000, "data": map[string]any{"task_id": "T1"}})
	client := newTestClient(t, transport)

	_, err := client.Submit(context.Background(), TextToVideo{Prompt: "p"})
	require.NoError(t, err)
	call := transport.calls()[0]
	assert.Equal(t, volcengine.DefaultHost, call.host)

	want, err := volcengine.NewSigner(call.host).Sign(volcengine.SignableRequest{
		Method:    http.MethodPost,
		Path:      "/",
		Query:     call.query,
		Body:      call.body,
		Timestamp: fixedNow,
	}, testCredentials())
	require.NoError(t, err)
	assert.Equal(t, want.Authorization, call.header.Get("Authorization"))
}

func TestReqKeyOverride(t *testing.T) {
	client, err := NewClient(Options{
		Credentials: testCredentials(),
		ReqKeys:     map[Kind]string{KindTextToVideo: "jimeng_vgfm_t2v_l21", KindImageEdit: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, "jimeng_vgfm_t2v_l21", client.ReqKey(KindTextToVideo))
	assert.Equal(t, "seededit_v3.0", client.ReqKey(KindImageEdit))
}

func TestForwardPassesQueryThrough(t *testing.T) {
	transport := newActionTransport()
	transport.queue("CVSync2AsyncSubmitTask", http.StatusOK, `{"code":10000,"data":{"task_id":"F1"}}`)
	client := newTestClient(t, transport)

	status, raw, err := client.Forward(context.Background(), "?Version=2022-08-31&Action=CVSync2AsyncSubmitTask", []byte(`{"req_key":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"code":10000,"data":{"task_id":"F1"}}`, string(raw))
	assert.Equal(t, "Version=2022-08-31&Action=CVSync2AsyncSubmitTask", transport.calls()[0].query)
}
