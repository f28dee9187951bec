package okx

import (
	"strings"

	"okxrest/pkg/core"
)

// apiError is the error body OKX returns alongside non-2xx statuses and in
// envelopes whose code is not "0".
type apiError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// mapErrorCode maps an OKX error code to an ErrorType, falling back to the
// HTTP status.
func mapErrorCode(code string, status int) core.ErrorType {
	switch code {
	case "50011", "50061":
		return core.ErrorTypeRateLimit
	case "50001", "50013", "50026":
		return core.ErrorTypeServerError
	case "50004":
		return core.ErrorTypeTimeout
	case "51001":
		return core.ErrorTypeNotFound
	case "51008", "51119", "51127", "51131":
		return core.ErrorTypeInsufficientFunds
	case "51000", "50014":
		return core.ErrorTypeBadRequest
	}

	switch {
	case strings.HasPrefix(code, "501"):
		// 50100-50119: key, passphrase, timestamp and signature errors.
		return core.ErrorTypeAuthentication
	case strings.HasPrefix(code, "51"):
		return core.ErrorTypeInvalidOrder
	}

	return core.ErrorTypeFromStatus(status)
}
