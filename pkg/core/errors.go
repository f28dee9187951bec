package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an exchange error.
type ErrorType int

// Error type constants categorize errors for proper handling.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a network connectivity issue.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeRateLimit indicates rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid or expired credentials, or a rejected signature.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a server-side error.
	ErrorTypeServerError
	// ErrorTypeInsufficientFunds indicates account lacks required balance.
	ErrorTypeInsufficientFunds
	// ErrorTypeInvalidOrder indicates the order violates exchange rules.
	ErrorTypeInvalidOrder
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"SERVER_ERROR",
		"INSUFFICIENT_FUNDS",
		"INVALID_ORDER",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrEmptyResponse is returned when an envelope carries no data rows.
	ErrEmptyResponse = errors.New("empty response data")
)

// ExchangeError represents a structured error returned from an exchange.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Exchange identifies which exchange returned this error.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// WithCode sets the error code and returns the same error.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// NewExchangeError creates a new ExchangeError stamped with the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewExchangeErrorWithCode creates a new ExchangeError including an exchange-specific error code.
func NewExchangeErrorWithCode(exchange string, errorType ErrorType, statusCode int, code, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// ErrorTypeFromStatus maps an HTTP status code to an ErrorType.
func ErrorTypeFromStatus(statusCode int) ErrorType {
	switch {
	case statusCode >= 500:
		return ErrorTypeServerError
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuthentication
	case statusCode == 400:
		return ErrorTypeBadRequest
	case statusCode == 404:
		return ErrorTypeNotFound
	default:
		return ErrorTypeUnknown
	}
}

// SecurityFailure is the terminal error of a request whose final attempt
// failed TLS certificate validation. Verification stays disabled for later
// calls on the same policy.
type SecurityFailure struct {
	Exchange string
	Attempts int
	Err      error
}

func (e *SecurityFailure) Error() string {
	return fmt.Sprintf("[%s] tls verification failed after %d attempt(s): %v", e.Exchange, e.Attempts, e.Err)
}

func (e *SecurityFailure) Unwrap() error {
	return e.Err
}

// TransportFailure is the terminal error of a request whose retry budget was
// exhausted by network, timeout, HTTP status or decoding failures.
// StatusCode is zero when no response was received.
type TransportFailure struct {
	Exchange   string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransportFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] request failed after %d attempt(s) (status %d): %v",
			e.Exchange, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] request failed after %d attempt(s): %v", e.Exchange, e.Attempts, e.Err)
}

func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// IsSecurityFailure reports whether err wraps a *SecurityFailure.
func IsSecurityFailure(err error) bool {
	var sf *SecurityFailure
	return errors.As(err, &sf)
}

// IsTransportFailure reports whether err wraps a *TransportFailure.
func IsTransportFailure(err error) bool {
	var tf *TransportFailure
	return errors.As(err, &tf)
}

// IsNetworkError returns true if the error is a network connectivity issue.
func IsNetworkError(err error) bool {
	return hasErrorType(err, ErrorTypeNetwork)
}

// IsTimeoutError returns true if the error is a timeout.
func IsTimeoutError(err error) bool {
	return hasErrorType(err, ErrorTypeTimeout)
}

// IsRateLimitError returns true if the error is a rate limit violation.
func IsRateLimitError(err error) bool {
	return hasErrorType(err, ErrorTypeRateLimit)
}

// IsAuthenticationError returns true if the error is an authentication failure.
// A 401 from OKX usually means the signed bytes and the sent bytes differ.
func IsAuthenticationError(err error) bool {
	return hasErrorType(err, ErrorTypeAuthentication)
}

func hasErrorType(err error, t ErrorType) bool {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}
