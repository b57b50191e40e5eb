package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxBodyInError bounds how much of a non-JSON body goes into Error()
const maxBodyInError = 200

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	// Message is the error text from a JSON body's "error" or "message"
	// field. It is empty for any other body.
	Message string
	// Body is the raw response body when it carried no JSON message, such
	// as a proxy's HTML error page
	Body string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, e.Message)
	case e.Body != "":
		body := e.Body
		if len(body) > maxBodyInError {
			body = body[:maxBodyInError] + "..."
		}
		return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, body)
	default:
		return fmt.Sprintf("request failed (status %d)", e.StatusCode)
	}
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Body = strings.TrimSpace(string(body))
	}
	return apiErr
}

// StatusCode returns the HTTP status carried by err, or 0 when err never got
// a response (transport failure, timeout, cancelled context).
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsCredentialRejected reports whether the server refused the credential
// (401 or 403), as opposed to being unreachable or failing.
func IsCredentialRejected(err error) bool {
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// ServerMessage returns the message the server put in a JSON error body,
// or "" when err carries none
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
