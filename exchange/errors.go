package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredentials is returned by signed calls when the key pair is incomplete.
	ErrMissingCredentials = errors.New("api key or secret key missing")

	// ErrServerTime is returned when the exchange clock cannot be read.
	ErrServerTime = errors.New("failed to fetch server time")

	// ErrUnsupportedMethod is returned for HTTP methods other than GET, POST and DELETE.
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// APIError represents a non-2xx response from the exchange.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange api error %d: %s", e.StatusCode, e.Message)
}

// IsAPIError extracts an *APIError from err's chain.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
		Body:       body,
	}

	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Msg != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Msg
	}
	return apiErr
}
