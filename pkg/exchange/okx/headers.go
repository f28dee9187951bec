package okx

import (
	"time"

	"okxrest/pkg/core"
)

const (
	HeaderAccessKey   = "OK-ACCESS-KEY"
	HeaderSign        = "OK-ACCESS-SIGN"
	HeaderTimestamp   = "OK-ACCESS-TIMESTAMP"
	HeaderPassphrase  = "OK-ACCESS-PASSPHRASE"
	HeaderContentType = "Content-Type"

	contentTypeJSON = "application/json"
)

// SignedHeaders is the authentication header set of a single attempt.
type SignedHeaders struct {
	AccessKey   string
	Signature   string
	Timestamp   string
	Passphrase  string
	ContentType string
}

// signHeaders stamps now and signs method, path and body with it.
func signHeaders(signer *Signer, creds core.Credentials, now time.Time, method, path, body string) SignedHeaders {
	ts := Timestamp(now)
	return SignedHeaders{
		AccessKey:   creds.APIKey,
		Signature:   signer.Sign(ts, method, path, body),
		Timestamp:   ts,
		Passphrase:  creds.Passphrase,
		ContentType: contentTypeJSON,
	}
}

// Map returns the five wire headers.
func (h SignedHeaders) Map() map[string]string {
	return map[string]string{
		HeaderAccessKey:   h.AccessKey,
		HeaderSign:        h.Signature,
		HeaderTimestamp:   h.Timestamp,
		HeaderPassphrase:  h.Passphrase,
		HeaderContentType: h.ContentType,
	}
}

