package types

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies why a probe exchange failed.
type ErrorKind uint8

const (
	ErrorConnectionRefused ErrorKind = iota + 1
	ErrorTimeout
	ErrorMalformedResponse
	ErrorHttp
	ErrorCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorConnectionRefused:
		return "connection_refused"
	case ErrorTimeout:
		return "timeout"
	case ErrorMalformedResponse:
		return "malformed_response"
	case ErrorHttp:
		return "http_error"
	case ErrorCancelled:
		return "cancelled"
	}

	return "unknown"
}

// ProbeError is the typed error every endpoint client returns.
type ProbeError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *ProbeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.Kind == ErrorHttp {
		return fmt.Sprintf("%v (status %v): %v", e.Kind, e.Status, msg)
	}

	return fmt.Sprintf("%v: %v", e.Kind, msg)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the exchange may succeed.
func (e *ProbeError) Transient() bool {
	if e == nil {
		return false
	}

	switch e.Kind {
	case ErrorConnectionRefused, ErrorTimeout:
		return true
	case ErrorHttp:
		return e.Status >= 500
	}

	return false
}

// Protocol reports whether the error points at an incompatible backend rather than a transport fault.
func (e *ProbeError) Protocol() bool {
	if e == nil {
		return false
	}

	switch e.Kind {
	case ErrorMalformedResponse:
		return true
	case ErrorHttp:
		return e.Status < 500
	}

	return false
}

type probeErrorJSON struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

func (e *ProbeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&probeErrorJSON{
		Kind:    e.Kind.String(),
		Status:  e.Status,
		Message: e.Error(),
	})
}
