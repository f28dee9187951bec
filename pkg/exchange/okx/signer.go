package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 UTC layout with millisecond precision OKX
// expects in OK-ACCESS-TIMESTAMP.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Signer computes OK-ACCESS-SIGN values. It holds only the secret key and is
// safe for concurrent use.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer keyed by secretKey.
func NewSigner(secretKey string) *Signer {
	return &Signer{secret: []byte(secretKey)}
}

// Sign returns base64(HMAC-SHA256(secret, timestamp+METHOD+path+body)).
// path includes the /api/v5 prefix and any query string; body is the exact
// request body that will be sent, or "" when there is none.
func (s *Signer) Sign(timestamp, method, path, body string) string {
	var msg strings.Builder
	msg.Grow(len(timestamp) + len(method) + len(path) + len(body))
	msg.WriteString(timestamp)
	msg.WriteString(strings.ToUpper(method))
	msg.WriteString(path)
	msg.WriteString(body)

	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(msg.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Timestamp formats t as an OK-ACCESS-TIMESTAMP value.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
