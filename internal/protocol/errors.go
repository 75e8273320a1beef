package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies bridge errors.
type Kind int

const (
	KindOther Kind = iota
	KindUnknownRequest
	KindOpenPortNotFound
	KindSubscriptionNotFound
	KindAlreadyWriteLocked
	KindNeedWriteLock
	KindPortReadError
	KindPortEOF
	KindPortWriteError
	KindSubscriberSendError
)

var kindDescriptions = map[Kind]string{
	KindOther:                "Server error",
	KindUnknownRequest:       "Unknown request",
	KindOpenPortNotFound:     "Open port not found",
	KindSubscriptionNotFound: "Subscription not found",
	KindAlreadyWriteLocked:   "Port already write locked",
	KindNeedWriteLock:        "Port needs a write lock",
	KindPortReadError:        "Port read error",
	KindPortEOF:              "Port EOF",
	KindPortWriteError:       "Port write error",
	KindSubscriberSendError:  "Subscriber send error",
}

// Description returns the fixed human readable text of the kind.
func (k Kind) Description() string {
	if d, ok := kindDescriptions[k]; ok {
		return d
	}
	return kindDescriptions[KindOther]
}

// Error is the single error type produced by the bridge core.
// Port or SubscriptionID is set depending on Kind.
type Error struct {
	Kind           Kind
	Port           string
	SubscriptionID string
	Err            error
}

// Sentinels for errors.Is. Matching compares kinds only.
var (
	ErrOther                = &Error{Kind: KindOther}
	ErrUnknownRequest       = &Error{Kind: KindUnknownRequest}
	ErrOpenPortNotFound     = &Error{Kind: KindOpenPortNotFound}
	ErrSubscriptionNotFound = &Error{Kind: KindSubscriptionNotFound}
	ErrAlreadyWriteLocked   = &Error{Kind: KindAlreadyWriteLocked}
	ErrNeedWriteLock        = &Error{Kind: KindNeedWriteLock}
	ErrPortRead             = &Error{Kind: KindPortReadError}
	ErrPortEOF              = &Error{Kind: KindPortEOF}
	ErrPortWrite            = &Error{Kind: KindPortWriteError}
	ErrSubscriberSend       = &Error{Kind: KindSubscriberSendError}
)

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindUnknownRequest:
		msg = "Unknown request"
	case KindOpenPortNotFound:
		msg = fmt.Sprintf("Open port '%s' not found", e.Port)
	case KindSubscriptionNotFound:
		msg = fmt.Sprintf("Subscription '%s' not found", e.SubscriptionID)
	case KindAlreadyWriteLocked:
		msg = fmt.Sprintf("Port '%s' is already writelocked", e.Port)
	case KindNeedWriteLock:
		msg = fmt.Sprintf("Port '%s' needs to be writelocked before writing", e.Port)
	case KindPortReadError:
		msg = fmt.Sprintf("Port '%s' had read error", e.Port)
	case KindPortEOF:
		msg = fmt.Sprintf("Port '%s' EOF", e.Port)
	case KindPortWriteError:
		msg = fmt.Sprintf("Port '%s' write error", e.Port)
	case KindSubscriberSendError:
		msg = fmt.Sprintf("Failed send to subscriber '%s'", e.SubscriptionID)
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return kindDescriptions[KindOther]
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindOther when err is not a bridge error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

func UnknownRequest(cause error) error {
	return &Error{Kind: KindUnknownRequest, Err: cause}
}

func OpenPortNotFound(port string) error {
	return &Error{Kind: KindOpenPortNotFound, Port: port}
}

func SubscriptionNotFound(id string) error {
	return &Error{Kind: KindSubscriptionNotFound, SubscriptionID: id}
}

func AlreadyWriteLocked(port string) error {
	return &Error{Kind: KindAlreadyWriteLocked, Port: port}
}

func NeedWriteLock(port string) error {
	return &Error{Kind: KindNeedWriteLock, Port: port}
}

func PortReadError(port string, cause error) error {
	return &Error{Kind: KindPortReadError, Port: port, Err: cause}
}

func PortEOF(port string) error {
	return &Error{Kind: KindPortEOF, Port: port}
}

func PortWriteError(port string, cause error) error {
	return &Error{Kind: KindPortWriteError, Port: port, Err: cause}
}

func SubscriberSendError(id string, cause error) error {
	return &Error{Kind: KindSubscriberSendError, SubscriptionID: id, Err: cause}
}

// Wrap turns a transport, decoding or driver failure into a KindOther error.
// Bridge errors pass through unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindOther, Err: err}
}

// NewErrorResponse converts err into the wire Error response.
func NewErrorResponse(err error) *ErrorResponse {
	return &ErrorResponse{
		Description: KindOf(err).Description(),
		Display:     err.Error(),
	}
}
