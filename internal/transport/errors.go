package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind partitions request failures into the buckets the rest of the client
// dispatches on.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindTimeout   Kind = "timeout"
	KindAuth      Kind = "auth"
	KindForbidden Kind = "forbidden"
	KindNotFound  Kind = "not_found"
	KindServer    Kind = "server"
	KindClient    Kind = "client"
)

// Error is the single failure type the transport returns. Status is zero when
// no response was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("transport: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Classify wraps a round-trip failure or an unsuccessful status into *Error.
// Exactly one of err and status is meaningful: err for transport-level
// failures, status for responses that arrived with a non-2xx code.
func Classify(err error, status int) *Error {
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindTimeout
		}
		return &Error{Kind: kind, Message: messageFor(kind), cause: err}
	}

	var kind Kind
	switch {
	case status == http.StatusUnauthorized:
		kind = KindAuth
	case status == http.StatusForbidden:
		kind = KindForbidden
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindServer
	default:
		kind = KindClient
	}
	return &Error{Kind: kind, Status: status, Message: messageFor(kind)}
}

// messageFor returns the user-facing phrasing for a failure bucket.
func messageFor(kind Kind) string {
	switch kind {
	case KindNetwork:
		return "could not reach the server"
	case KindTimeout:
		return "request timed out"
	case KindAuth:
		return "your session has expired, please sign in again"
	case KindForbidden:
		return "you do not have access to this resource"
	case KindNotFound:
		return "the requested resource was not found"
	case KindServer:
		return "the server hit an internal error, please try again later"
	default:
		return "the request could not be completed"
	}
}
