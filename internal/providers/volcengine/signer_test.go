package volcengine

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBody = `{"req_key":"jimeng_vgfm_t2v_l20","prompt":"a cat on a skateboard"}`

func testCredentials() Credentials {
	return Credentials{
		AccessKey: "AKLTexample",
		SecretKey: []byte("secret-key-bytes"),
		Region:    "cn-north-1",
		Service:   "cv",
	}
}

func testRequest() SignableRequest {
	return SignableRequest{
		Method:    http.MethodPost,
		Path:      "/",
		Query:     "Action=CVSync2AsyncSubmitTask&Version=2022-08-31",
		Body:      []byte(testBody),
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSignKnownVector(t *testing.T) {
	sig, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)

	assert.Equal(t, "20240102T030405Z", sig.Date)
	assert.Equal(t, "94b197c6388505e2c5e2a4c6fef6eba4169495dfb68cb834fc7996a3686140e6", sig.ContentSHA256)
	assert.Equal(t,
		"HMAC-SHA256 Credential=AKLTexample/20240102/cn-north-1/cv/request, "+
			"SignedHeaders=content-type;host;x-content-sha256;x-date, "+
			"Signature=3a0561c4918bf2d0b027953fb9315237ae7bb15f5afb2530c98281dc5cbaf2d5",
		sig.Authorization)
}

func TestSignCanonicalRequestLayout(t *testing.T) {
	sig, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)

	want := strings.Join([]string{
		"POST",
		"/",
		"Action=CVSync2AsyncSubmitTask&Version=2022-08-31",
		"content-type:application/json",
		"host:visual.volcengineapi.com",
		"x-content-sha256:" + sig.ContentSHA256,
		"x-date:20240102T030405Z",
		"",
		"content-type;host;x-content-sha256;x-date",
		sig.ContentSHA256,
	}, "\n")
	assert.Equal(t, want, sig.CanonicalRequest)

	lines := strings.Split(sig.StringToSign, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "HMAC-SHA256", lines[0])
	assert.Equal(t, "20240102T030405Z", lines[1])
	assert.Equal(t, "20240102/cn-north-1/cv/request", lines[2])
	assert.Len(t, lines[3], 64)
}

func TestSignDeterministic(t *testing.T) {
	a, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)
	b, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSignBodyChangeAltersSignature(t *testing.T) {
	base, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)

	req := testRequest()
	req.Body = append([]byte(nil), req.Body...)
	req.Body[len(req.Body)-2] = 'X'
	changed, err := Sign(req, testCredentials())
	require.NoError(t, err)

	assert.NotEqual(t, base.ContentSHA256, changed.ContentSHA256)
	assert.NotEqual(t, base.Authorization, changed.Authorization)
}

func TestSignEmptyBodyHashesEmptyString(t *testing.T) {
	req := testRequest()
	req.Body = nil
	sig, err := Sign(req, testCredentials())
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sig.ContentSHA256)
}

func TestSignQueryOrderIndependent(t *testing.T) {
	sorted, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)

	req := testRequest()
	req.Query = "Version=2022-08-31&Action=CVSync2AsyncSubmitTask"
	shuffled, err := Sign(req, testCredentials())
	require.NoError(t, err)

	assert.Equal(t, sorted.Authorization, shuffled.Authorization)
}

func TestCanonicalQuery(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"?b=2&a=1":            "a=1&b=2",
		"b=2&&a=1":            "a=1&b=2",
		"a=x%20y&a=b":         "a=b&a=x%20y",
		"Version=1&Action=Go": "Action=Go&Version=1",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalQuery(in), "query %q", in)
	}
}

func TestSignRejectsMissingCredentials(t *testing.T) {
	creds := testCredentials()
	creds.SecretKey = nil
	_, err := Sign(testRequest(), creds)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "secret_key", cfgErr.Field)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	creds = testCredentials()
	creds.AccessKey = " "
	_, err = Sign(testRequest(), creds)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "access_key", cfgErr.Field)
}

func TestSignerCustomHost(t *testing.T) {
	sig, err := NewSigner("example.internal").Sign(testRequest(), testCredentials())
	require.NoError(t, err)
	assert.Contains(t, sig.CanonicalRequest, "host:example.internal\n")
}

func TestSignatureApply(t *testing.T) {
	sig, err := Sign(testRequest(), testCredentials())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "https://visual.volcengineapi.com/", nil)
	require.NoError(t, err)
	sig.Apply(req)

	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, sig.Authorization, req.Header.Get("Authorization"))
	assert.Equal(t, "20240102T030405Z", req.Header.Get("X-Date"))
	assert.Equal(t, sig.ContentSHA256, req.Header.Get("X-Content-Sha256"))
}
