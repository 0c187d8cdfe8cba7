// Package volcengine implements the HMAC-SHA256 request signing scheme used
// by the Volcengine visual API.
package volcengine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	Algorithm     = "HMAC-SHA256"
	SignedHeaders = "content-type;host;x-content-sha256;x-date"
	ContentType   = "application/json"

	scopeTerminator = "request"
	timeFormat      = "20060102T150405Z"
)

// SignableRequest is the part of an outgoing request covered by the signature.
type SignableRequest struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	Timestamp time.Time
}

// Signature is the header set derived for a single request.
type Signature struct {
	Authorization string
	Date          string
	ContentSHA256 string

	CanonicalRequest string
	StringToSign     string
}

// Headers returns the four headers the provider expects on a signed call.
func (s Signature) Headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", ContentType)
	h.Set("Authorization", s.Authorization)
	h.Set("X-Date", s.Date)
	h.Set("X-Content-Sha256", s.ContentSHA256)
	return h
}

// Apply sets the signed headers on req.
func (s Signature) Apply(req *http.Request) {
	for key, values := range s.Headers() {
		req.Header[key] = values
	}
}

// Signer signs requests for one provider host. The zero value signs for DefaultHost.
type Signer struct {
	Host string
}

// NewSigner returns a signer bound to host.
func NewSigner(host string) *Signer {
	return &Signer{Host: strings.TrimSpace(host)}
}

// Sign signs req with DefaultHost.
func Sign(req SignableRequest, creds Credentials) (Signature, error) {
	return (&Signer{}).Sign(req, creds)
}

// Sign derives the signature for req. It performs no I/O and keeps no state.
func (s *Signer) Sign(req SignableRequest, creds Credentials) (Signature, error) {
	if err := creds.Validate(); err != nil {
		return Signature{}, err
	}
	host := DefaultHost
	if s != nil && s.Host != "" {
		host = s.Host
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	xDate := ts.UTC().Format(timeFormat)
	dateStamp := xDate[:8]

	contentHash := hashHex(req.Body)

	canonicalHeaders := "content-type:" + ContentType + "\n" +
		"host:" + host + "\n" +
		"x-content-sha256:" + contentHash + "\n" +
		"x-date:" + xDate + "\n"

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	path := req.Path
	if path == "" {
		path = "/"
	}

	canonicalRequest := strings.Join([]string{
		method,
		path,
		CanonicalQuery(req.Query),
		canonicalHeaders,
		SignedHeaders,
		contentHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, creds.Region, creds.Service, scopeTerminator}, "/")
	stringToSign := strings.Join([]string{
		Algorithm,
		xDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := signingKey(creds.SecretKey, dateStamp, creds.Region, creds.Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	authorization := Algorithm +
		" Credential=" + creds.AccessKey + "/" + scope +
		", SignedHeaders=" + SignedHeaders +
		", Signature=" + signature

	return Signature{
		Authorization:    authorization,
		Date:             xDate,
		ContentSHA256:    contentHash,
		CanonicalRequest: canonicalRequest,
		StringToSign:     stringToSign,
	}, nil
}

// CanonicalQuery sorts raw key=value tokens lexicographically without
// re-encoding them.
func CanonicalQuery(query string) string {
	query = strings.TrimPrefix(query, "?")
	if query == "" {
		return ""
	}
	parts := strings.Split(query, "&")
	pairs := parts[:0]
	for _, p := range parts {
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

func signingKey(secret []byte, dateStamp, region, service string) []byte {
	kDate := hmacSHA256(secret, []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(scopeTerminator))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
