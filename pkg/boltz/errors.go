package boltz

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable is returned when the service can't be reached or
	// fails without telling us why.
	ErrServiceUnavailable = errors.New("swap service unavailable")
	// ErrInvalidRequest is returned when the service rejects a request with an
	// error message.
	ErrInvalidRequest = errors.New("swap service rejected the request")
	// ErrProtocol is returned when a response can't be decoded.
	ErrProtocol = errors.New("unexpected swap service response")
	// ErrMalformedMessage marks status channel messages that are dropped.
	ErrMalformedMessage = errors.New("malformed status channel message")
)

type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	// Message is the "error" field of the response, if any.
	Message string
	Body    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	switch {
	case e.Message != "":
		return ErrInvalidRequest
	case e.StatusCode >= 500:
		return ErrServiceUnavailable
	default:
		return ErrProtocol
	}
}
