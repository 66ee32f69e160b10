package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrorKind classifies a failed model call.
type ErrorKind string

const (
	KindModelNotFound   ErrorKind = "model_not_found"
	KindQuota           ErrorKind = "quota"
	KindTimeout         ErrorKind = "timeout"
	KindUnavailable     ErrorKind = "unavailable"
	KindAuth            ErrorKind = "auth"
	KindClientError     ErrorKind = "client_error"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnknown         ErrorKind = "unknown"
)

// Retryable kinds are worth a short backoff before the next key.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindQuota, KindTimeout, KindUnavailable:
		return true
	}
	return false
}

// errInvalidResponse wraps output that does not decode into a result.
type errInvalidResponse struct {
	cause error
}

func (e *errInvalidResponse) Error() string { return "invalid model response: " + e.cause.Error() }
func (e *errInvalidResponse) Unwrap() error { return e.cause }

// Classify maps a generator error to an ErrorKind, using the API status code
// when available and the message text otherwise.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var invalid *errInvalidResponse
	if errors.As(err, &invalid) {
		return KindInvalidResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "model") && strings.Contains(msg, "not found") {
		return KindModelNotFound
	}

	if code, ok := apiStatus(err); ok {
		switch {
		case code == http.StatusNotFound:
			return KindModelNotFound
		case code == http.StatusTooManyRequests:
			return KindQuota
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return KindTimeout
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return KindAuth
		case code >= 500:
			return KindUnavailable
		case code >= 400:
			return KindClientError
		}
	}

	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "resource_exhausted"):
		return KindQuota
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "503") || strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "internal server error") || strings.Contains(msg, "aborted"):
		return KindUnavailable
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "permission denied"):
		return KindAuth
	case strings.Contains(msg, "invalid argument") || strings.Contains(msg, "400"):
		return KindClientError
	}
	return KindUnknown
}

func apiStatus(err error) (int, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val.Code, true
	}
	return 0, false
}
