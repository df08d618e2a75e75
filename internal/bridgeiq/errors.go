package bridgeiq

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the closed set of failure categories surfaced by the client.
type Kind string

const (
	KindAuthentication     Kind = "authentication"
	KindConnection         Kind = "connection"
	KindTimeout            Kind = "timeout"
	KindResourceNotFound   Kind = "resource_not_found"
	KindValidation         Kind = "validation"
	KindInsufficientTokens Kind = "insufficient_tokens"
	KindServer             Kind = "server"
	KindGeneric            Kind = "generic"
)

var (
	ErrAuthentication     = errors.New("bridgeiq: authentication failed")
	ErrConnection         = errors.New("bridgeiq: connection failed")
	ErrTimeout            = errors.New("bridgeiq: timed out")
	ErrResourceNotFound   = errors.New("bridgeiq: resource not found")
	ErrValidation         = errors.New("bridgeiq: validation failed")
	ErrInsufficientTokens = errors.New("bridgeiq: insufficient tokens")
	ErrServer             = errors.New("bridgeiq: server error")
	ErrGeneric            = errors.New("bridgeiq: api error")

	// ErrClientClosed is returned by every call made after Close.
	ErrClientClosed = errors.New("bridgeiq: client is closed")
)

var kindSentinels = map[Kind]error{
	KindAuthentication:     ErrAuthentication,
	KindConnection:         ErrConnection,
	KindTimeout:            ErrTimeout,
	KindResourceNotFound:   ErrResourceNotFound,
	KindValidation:         ErrValidation,
	KindInsufficientTokens: ErrInsufficientTokens,
	KindServer:             ErrServer,
	KindGeneric:            ErrGeneric,
}

// Error is a classified BridgeIQ failure.
type Error struct {
	Kind    Kind
	Message string
	// Response is the decoded error payload, if the service returned one.
	Response map[string]any
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
	// Field names the offending input for validation errors, when known.
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsRetryable reports whether retrying the same call later could succeed.
func IsRetryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindConnection, KindTimeout, KindServer:
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests
}

func newValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

// classify maps a non-2xx response to a domain error. It is total over
// status codes and never returns nil.
func classify(status int, body []byte) *Error {
	payload, message := errorPayload(body)
	e := &Error{Response: payload, StatusCode: status}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
		e.Message = "Authentication failed: " + message
	case status == http.StatusPaymentRequired:
		e.Kind = KindInsufficientTokens
		e.Message = "Insufficient tokens: " + message
	case status == http.StatusNotFound:
		e.Kind = KindResourceNotFound
		e.Message = "Resource not found: " + message
	case status == http.StatusBadRequest:
		e.Kind = KindValidation
		e.Message = "Validation error: " + message
		if field, ok := payload["field"].(string); ok {
			e.Field = field
		}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
		e.Message = "Request timed out: " + message
	case status >= 500 && status <= 599:
		e.Kind = KindServer
		e.Message = fmt.Sprintf("Server error (%d): %s", status, message)
	default:
		e.Kind = KindGeneric
		e.Message = fmt.Sprintf("API error (%d): %s", status, message)
	}
	return e
}

// errorPayload extracts the message and a structured copy of an error body.
// Bodies that are not JSON objects are wrapped as {"message": text}.
func errorPayload(body []byte) (map[string]any, string) {
	text := strings.TrimSpace(string(body))

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil && payload != nil {
		if msg, ok := payload["message"]; ok && msg != nil {
			if s := strings.TrimSpace(fmt.Sprint(msg)); s != "" {
				return payload, s
			}
		}
		if text == "" {
			return payload, "Unknown error"
		}
		return payload, text
	}

	if text == "" {
		text = "Unknown error"
	}
	return map[string]any{"message": text}, text
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// unwrapEnvelope checks the application-level status of a 2xx body and
// returns its data member.
func unwrapEnvelope(status int, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{
			Kind:       KindGeneric,
			Message:    "invalid response body: " + err.Error(),
			Response:   map[string]any{"message": strings.TrimSpace(string(body))},
			StatusCode: status,
			Err:        err,
		}
	}
	if env.Status != "success" {
		payload, _ := errorPayload(body)
		message := env.Message
		if strings.TrimSpace(message) == "" {
			message = "Unknown error"
		}
		return nil, &Error{Kind: KindGeneric, Message: message, Response: payload, StatusCode: status}
	}
	return env.Data, nil
}
