package bridge

import (
	"fmt"
	"time"
)

// TimeoutError reports that the AI endpoint did not answer within the
// handshake budget. The event is dropped; there is no retry.
type TimeoutError struct {
	Endpoint string
	Budget   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ai handshake timed out after %s: %s", e.Budget, e.Endpoint)
}

// ConnectionError reports that the AI endpoint could not be reached at all
// (DNS failure, connection refused, network down).
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ai endpoint unreachable: %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteError reports a non-2xx status from the AI endpoint. Body holds an
// excerpt of the response body for logging.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ai endpoint returned %d: %s", e.Status, e.Body)
}

// DecodeError reports a 2xx response whose body was not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ai response decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
