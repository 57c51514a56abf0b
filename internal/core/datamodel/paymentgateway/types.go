package paymentgateway

import (
	"encoding/json"
	"fmt"
)

type ErrorKind string

const (
	// ErrorKindTransport means no usable response came back from the gateway.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindApplication means the gateway answered with an error status.
	ErrorKindApplication ErrorKind = "application"
)

// Error is the single error type returned by the gateway client.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == ErrorKindTransport {
		if e.Cause != nil {
			return fmt.Sprintf("gateway transport error: %s: %v", e.Message, e.Cause)
		}
		return fmt.Sprintf("gateway transport error: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorEnvelope is the shape of a gateway error body.
type ErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Result is a decoded gateway object together with the raw body it came from.
type Result struct {
	Object       string          `json:"object"`
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
	Raw          json.RawMessage `json:"-"`
}
