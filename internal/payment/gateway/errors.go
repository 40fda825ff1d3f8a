package gateway

import (
	"errors"
	"fmt"

	dErrors "confreg/pkg/domain-errors"
)

// Kind is the normalized failure taxonomy for gateway calls.
type Kind string

const (
	// KindUnavailable covers network failures, timeouts, 5xx responses
	// without a usable body, and calls refused by the open breaker.
	KindUnavailable Kind = "unavailable"
	// KindRejected means the gateway answered and declined the request.
	KindRejected Kind = "rejected"
	// KindProtocol means the response could not be understood.
	KindProtocol Kind = "protocol"
)

// Error wraps a gateway failure with its upstream code and message.
type Error struct {
	Kind       Kind
	Op         string
	Code       string
	Message    string
	HTTPStatus int
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s [%s]", e.Op, e.Kind)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newError(kind Kind, op string, underlying error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Underlying: underlying,
		Retryable:  kind == KindUnavailable,
	}
}

// ErrCircuitOpen is the underlying cause when the breaker refuses a call.
var ErrCircuitOpen = errors.New("gateway circuit open")

// IsUnavailable reports whether err is a transient gateway failure.
func IsUnavailable(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindUnavailable
}

// IsRejected reports whether the gateway declined the request.
func IsRejected(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindRejected
}

// ToDomain maps a gateway failure onto the domain error codes. Rejections
// keep the upstream message; everything else reads as unavailability.
func ToDomain(err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if !errors.As(err, &ge) {
		return dErrors.Wrap(err, dErrors.CodeGatewayUnavailable, "payment gateway unavailable")
	}
	if ge.Kind == KindRejected {
		msg := "payment gateway rejected the request"
		if ge.Message != "" {
			msg += ": " + ge.Message
		}
		return dErrors.Wrap(err, dErrors.CodeGatewayRejected, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeGatewayUnavailable, "payment gateway unavailable")
}
