package service

import "fmt"

// Stable error codes surfaced in JSON responses.
const (
	CodeConfigError         = "CONFIG_ERROR"
	CodeMissingID           = "MISSING_ID"
	CodeInvalidBody         = "INVALID_BODY"
	CodeDeviceLimitExceeded = "DEVICE_LIMIT_EXCEEDED"
	CodeLimitExceeded       = "LIMIT_EXCEEDED"
	CodeVelocityExceeded    = "VELOCITY_EXCEEDED"
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// LimitError is a quota rejection. Retryable only after the window rolls
// over; carries the observed usage and limit for client display.
type LimitError struct {
	Code  string
	Usage int64
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: usage %d of %d", e.Code, e.Usage, e.Limit)
}
