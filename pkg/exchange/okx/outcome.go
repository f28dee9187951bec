package okx

import "okxrest/internal/metrics"

// attemptKind classifies the outcome of one HTTP attempt.
type attemptKind int

const (
	attemptSucceeded attemptKind = iota
	attemptSecurityFailed
	attemptTransportFailed
)

func (k attemptKind) String() string {
	return [...]string{"SUCCESS", "SECURITY_FAILURE", "TRANSPORT_FAILURE"}[k]
}

func (k attemptKind) label() string {
	switch k {
	case attemptSucceeded:
		return metrics.OutcomeSuccess
	case attemptSecurityFailed:
		return metrics.OutcomeSecurityFailure
	default:
		return metrics.OutcomeTransportFailure
	}
}

// attemptResult is the outcome of one attempt. On success the payload has
// already been decoded into the caller's target.
type attemptResult struct {
	kind   attemptKind
	status int
	err    error
}

func succeeded(status int) attemptResult {
	return attemptResult{kind: attemptSucceeded, status: status}
}

func securityFailed(err error) attemptResult {
	return attemptResult{kind: attemptSecurityFailed, err: err}
}

func transportFailed(status int, err error) attemptResult {
	return attemptResult{kind: attemptTransportFailed, status: status, err: err}
}
