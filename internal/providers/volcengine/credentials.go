package volcengine

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultRegion  = "cn-north-1"
	DefaultService = "cv"
	DefaultHost    = "visual.volcengineapi.com"
)

// SecretEncoding selects how the configured secret key is turned into signing bytes.
type SecretEncoding string

const (
	// SecretEncodingAuto applies the single/double base64 heuristic.
	SecretEncodingAuto SecretEncoding = "auto"
	// SecretEncodingRaw uses the secret exactly as configured.
	SecretEncodingRaw SecretEncoding = "raw"
)

// ErrMissingCredentials indicates that signing was attempted without key material.
var ErrMissingCredentials = errors.New("volcengine: access key and secret key are required")

// ConfigurationError reports unusable credentials. It is fatal and never retried.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Field)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Credentials carries the key material and scope used by the signer.
type Credentials struct {
	AccessKey string
	SecretKey []byte
	Region    string
	Service   string
}

// NewCredentials validates and normalizes externally supplied key material.
func NewCredentials(accessKey, secretKey, region, service string, enc SecretEncoding) (Credentials, error) {
	accessKey = strings.TrimSpace(accessKey)
	secretKey = strings.TrimSpace(secretKey)
	if accessKey == "" {
		return Credentials{}, &ConfigurationError{Field: "access_key", Err: ErrMissingCredentials}
	}
	if secretKey == "" {
		return Credentials{}, &ConfigurationError{Field: "secret_key", Err: ErrMissingCredentials}
	}
	region = strings.TrimSpace(region)
	if region == "" {
		region = DefaultRegion
	}
	service = strings.TrimSpace(service)
	if service == "" {
		service = DefaultService
	}

	var secret []byte
	switch enc {
	case SecretEncodingRaw:
		secret = []byte(secretKey)
	case SecretEncodingAuto, "":
		secret = NormalizeSecretKey(secretKey)
	default:
		return Credentials{}, &ConfigurationError{
			Field: "secret_key_encoding",
			Err:   fmt.Errorf("volcengine: unknown secret encoding %q", enc),
		}
	}

	return Credentials{
		AccessKey: accessKey,
		SecretKey: secret,
		Region:    region,
		Service:   service,
	}, nil
}

// Validate reports a ConfigurationError when key material is absent.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AccessKey) == "" {
		return &ConfigurationError{Field: "access_key", Err: ErrMissingCredentials}
	}
	if len(c.SecretKey) == 0 {
		return &ConfigurationError{Field: "secret_key", Err: ErrMissingCredentials}
	}
	return nil
}

// NormalizeSecretKey decodes a console-issued secret that may be base64
// encoded once or twice. The first decode wins unless it is longer than 40
// bytes or not hex, in which case a second decode is attempted. Decode
// failures fall back to the previous value.
func NormalizeSecretKey(secret string) []byte {
	first, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return []byte(secret)
	}
	if len(first) <= 40 && isHex(first) {
		return first
	}
	second, err := base64.StdEncoding.DecodeString(string(first))
	if err != nil || len(second) == 0 {
		return first
	}
	return second
}

func isHex(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
