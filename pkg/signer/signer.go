// Package signer implements the Crusoe Cloud HMAC request-signing scheme.
//
// Every request carries a bearer credential of the form
// "1.0:<access_key_id>:<signature>" plus an X-Crusoe-Timestamp header. The
// signature is an HMAC-SHA256 over a newline-delimited payload of the request
// path, a canonicalized query string, the HTTP method, and the timestamp,
// keyed by the base64url-decoded secret. Credentials are request-specific:
// the payload embeds the exact query parameters and a fresh timestamp, so a
// signature is never reusable across requests.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Header and credential constants for the Crusoe signing scheme.
const (
	// SignatureVersion is the version prefix of the bearer credential.
	SignatureVersion = "1.0"

	// HeaderAuthorization carries the bearer credential.
	HeaderAuthorization = "Authorization"

	// HeaderTimestamp carries the exact timestamp string embedded in the
	// signing payload. The server reproduces this string to verify, so it
	// must match the payload byte-for-byte.
	HeaderTimestamp = "X-Crusoe-Timestamp"
)

// timestampLayout renders UTC times with second precision, a literal 'T'
// separator, and a +00:00 offset suffix. This is the only rendering the
// verifying server accepts; Z-suffixed or locale-formatted timestamps fail
// verification.
const timestampLayout = "2006-01-02T15:04:05-07:00"

// ErrInvalidSecret indicates the secret key could not be base64url-decoded
// even after padding restoration.
var ErrInvalidSecret = errors.New("invalid secret key format")

// Credentials holds a Crusoe API access key pair. SecretKey is the
// URL-safe-base64 secret as issued, which may be missing its padding
// characters.
type Credentials struct {
	AccessKeyID string
	SecretKey   string
}

// DecodeSecret returns the raw secret bytes, restoring any missing base64
// padding first. Pad length is (-len mod 4) '=' characters.
func (c Credentials) DecodeSecret() ([]byte, error) {
	padded := c.SecretKey + strings.Repeat("=", (4-len(c.SecretKey)%4)%4)
	raw, err := base64.URLEncoding.DecodeString(padded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return raw, nil
}

// Signer produces time-bound authorization headers for Crusoe API requests.
type Signer struct {
	creds  Credentials
	secret []byte

	// Clock supplies the per-request timestamp. Overridable for tests.
	Clock func() time.Time
}

// New creates a Signer, decoding the secret eagerly so bad credentials fail
// at construction rather than as an opaque 401 later.
func New(creds Credentials) (*Signer, error) {
	if creds.AccessKeyID == "" {
		return nil, errors.New("access key id is required")
	}
	secret, err := creds.DecodeSecret()
	if err != nil {
		return nil, err
	}
	return &Signer{
		creds:  creds,
		secret: secret,
		Clock:  time.Now,
	}, nil
}

// CanonicalQuery serializes query parameters for signature computation:
// keys sorted lexicographically, joined as key=value pairs with '&', values
// left unencoded. The server performs the identical canonicalization before
// verifying, so this deliberately differs from the URL-encoded query string
// sent on the wire. An empty map yields an empty string.
func CanonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+query.Get(key))
	}
	return strings.Join(pairs, "&")
}

// FormatTimestamp renders t in the accepted timestamp form: UTC, microseconds
// stripped, literal 'T', offset suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timestampLayout)
}

// buildPayload assembles the newline-delimited signing payload. The path must
// include the API-version prefix (e.g. /v1alpha5/...); prefix or slash
// mismatches are the classic "works without query params, fails with them"
// defect, since both halves feed the same MAC.
func buildPayload(path, canonicalQuery, method, timestamp string) string {
	return path + "\n" + canonicalQuery + "\n" + method + "\n" + timestamp + "\n"
}

// signPayload computes the base64url HMAC-SHA256 signature over payload,
// with trailing padding stripped.
func (s *Signer) signPayload(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return strings.TrimRight(base64.URLEncoding.EncodeToString(mac.Sum(nil)), "=")
}

// Sign produces the authorization headers for a single request. The returned
// headers are valid only for this exact method, path, query, and the
// timestamp taken from the Signer's clock; re-sign every request.
func (s *Signer) Sign(method, path string, query url.Values) http.Header {
	timestamp := FormatTimestamp(s.Clock())
	payload := buildPayload(path, CanonicalQuery(query), method, timestamp)
	signature := s.signPayload(payload)

	headers := http.Header{}
	headers.Set(HeaderAuthorization, fmt.Sprintf("Bearer %s:%s:%s", SignatureVersion, s.creds.AccessKeyID, signature))
	headers.Set(HeaderTimestamp, timestamp)
	return headers
}

// SignRequest attaches authorization headers to req, signing the given path
// (which may differ from req.URL.Path when a proxy rewrites it).
func (s *Signer) SignRequest(req *http.Request, path string, query url.Values) {
	for key, values := range s.Sign(req.Method, path, query) {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}
}

// Verify recomputes the signature for the given request parameters and
// compares it against the provided one in constant time. Used by test
// doubles standing in for the Crusoe API.
func (s *Signer) Verify(method, path string, query url.Values, timestamp, signature string) bool {
	payload := buildPayload(path, CanonicalQuery(query), method, timestamp)
	expected := s.signPayload(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
