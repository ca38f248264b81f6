package masumi

import "fmt"

// ConfigurationError reports a missing required identity or URL. It is fatal:
// no retry can succeed until the configuration is fixed.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ValidationError reports malformed caller input, such as a non-JSON input
// payload. Fatal for the call that produced it.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotTrackedError reports an operation that referenced a payment the
// coordinator does not track.
type NotTrackedError struct {
	BlockchainIdentifier string
}

func (e *NotTrackedError) Error() string {
	return fmt.Sprintf("payment not tracked: %s", e.BlockchainIdentifier)
}

// RequestErrorKind classifies a failed settlement service call.
type RequestErrorKind string

const (
	// RequestErrorClient is a 4xx response. Never retried.
	RequestErrorClient RequestErrorKind = "client"
	// RequestErrorServer is a 5xx response. Retried.
	RequestErrorServer RequestErrorKind = "server"
	// RequestErrorTransport is a connection-level failure. Retried.
	RequestErrorTransport RequestErrorKind = "transport"
	// RequestErrorTimeout means the per-call deadline elapsed. Retried.
	RequestErrorTimeout RequestErrorKind = "timeout"
)

// RequestError is the typed failure of one settlement service call, raised
// by the request client after its internal retries are exhausted.
type RequestError struct {
	Kind    RequestErrorKind
	Status  int
	Path    string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request error (%s, %d) on %s: %s", e.Kind, e.Status, e.Path, e.Message)
	}
	return fmt.Sprintf("request error (%s) on %s: %s", e.Kind, e.Path, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether the request client may retry this failure.
func (e *RequestError) Retryable() bool {
	return e.Kind != RequestErrorClient
}
