// Package protocol defines the JSON messages exchanged between browser
// clients and the bridge.
//
// Every frame holds one externally tagged value: a single key naming the
// variant whose value is an object with that variant's fields.
//
//	{"Open":{"port":"/dev/ttyUSB0"}}
//	{"Write":{"port":"/dev/ttyUSB0","data":"SGVsbG8=","base64":true}}
//	{"Read":{"port":"/dev/ttyUSB0","data":"hello","base64":false}}
//
// Requests flow from clients to the arbiter, responses flow back.
package protocol

import (
	"encoding/base64"
	"unicode/utf8"
)

// SubProtocol is the WebSocket sub-protocol clients must offer.
const SubProtocol = "websocket-serial-json"

// Message is any value that can be framed on the wire.
type Message interface {
	Type() string
}

// Request is a client command.
type Request interface {
	Message
	request()
}

// Response is a server message, either a direct reply or a broadcast.
type Response interface {
	Message
	response()
}

// Request variants

// OpenRequest opens a port for reading. Opening an already open port is fine.
type OpenRequest struct {
	Port string `json:"port"`
}

// WriteLockRequest takes exclusive write control of a port.
type WriteLockRequest struct {
	Port string `json:"port"`
}

// ReleaseWriteLockRequest releases one lock, or every lock the client holds
// when Port is nil.
type ReleaseWriteLockRequest struct {
	Port *string `json:"port,omitempty"`
}

// WriteRequest writes Data to a port the client holds the write lock for.
type WriteRequest struct {
	Port   string `json:"port"`
	Data   string `json:"data"`
	Base64 *bool  `json:"base64,omitempty"`
}

// CloseRequest drops interest in one port, or in all ports when Port is nil.
// The hardware port is only closed once nobody is interested in it.
type CloseRequest struct {
	Port *string `json:"port,omitempty"`
}

// ListRequest enumerates the serial ports visible to the host.
type ListRequest struct{}

func (*OpenRequest) Type() string             { return "Open" }
func (*WriteLockRequest) Type() string        { return "WriteLock" }
func (*ReleaseWriteLockRequest) Type() string { return "ReleaseWriteLock" }
func (*WriteRequest) Type() string            { return "Write" }
func (*CloseRequest) Type() string            { return "Close" }
func (*ListRequest) Type() string             { return "List" }

func (*OpenRequest) request()             {}
func (*WriteLockRequest) request()        {}
func (*ReleaseWriteLockRequest) request() {}
func (*WriteRequest) request()            {}
func (*CloseRequest) request()            {}
func (*ListRequest) request()             {}

// Response variants

type ErrorResponse struct {
	Description string `json:"description"`
	Display     string `json:"display"`
}

// ReadResponse carries data read from a port. Data is plain text when the
// bytes are valid UTF-8, otherwise base64 with Base64 set.
type ReadResponse struct {
	Port   string `json:"port"`
	Data   string `json:"data"`
	Base64 *bool  `json:"base64,omitempty"`
}

type OpenedResponse struct {
	Port string `json:"port"`
}

// ClosedResponse is sent in reply to Close and when a bad port is torn down.
type ClosedResponse struct {
	Port string `json:"port"`
}

type WroteResponse struct {
	Port string `json:"port"`
}

type WriteLockedResponse struct {
	Port string `json:"port"`
}

// WriteLockReleasedResponse has a nil Port when every lock was released.
type WriteLockReleasedResponse struct {
	Port *string `json:"port,omitempty"`
}

type ListResponse struct {
	Ports []string `json:"ports"`
}

type OkResponse struct {
	Msg string `json:"msg"`
}

func (*ErrorResponse) Type() string             { return "Error" }
func (*ReadResponse) Type() string              { return "Read" }
func (*OpenedResponse) Type() string            { return "Opened" }
func (*ClosedResponse) Type() string            { return "Closed" }
func (*WroteResponse) Type() string             { return "Wrote" }
func (*WriteLockedResponse) Type() string       { return "WriteLocked" }
func (*WriteLockReleasedResponse) Type() string { return "WriteLockReleased" }
func (*ListResponse) Type() string              { return "List" }
func (*OkResponse) Type() string                { return "Ok" }

func (*ErrorResponse) response()             {}
func (*ReadResponse) response()              {}
func (*OpenedResponse) response()            {}
func (*ClosedResponse) response()            {}
func (*WroteResponse) response()             {}
func (*WriteLockedResponse) response()       {}
func (*WriteLockReleasedResponse) response() {}
func (*ListResponse) response()              {}
func (*OkResponse) response()                {}

// NewReadResponse wraps bytes read from port, choosing text or base64.
func NewReadResponse(port string, data []byte) *ReadResponse {
	encoded := false
	text := string(data)
	if !utf8.Valid(data) {
		encoded = true
		text = base64.StdEncoding.EncodeToString(data)
	}
	return &ReadResponse{Port: port, Data: text, Base64: &encoded}
}

// DecodeData returns the raw bytes of a Write payload.
func DecodeData(data string, isBase64 *bool) ([]byte, error) {
	if isBase64 == nil || !*isBase64 {
		return []byte(data), nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, Wrap(err)
	}
	return raw, nil
}

// Ptr returns a pointer to v, for optional fields.
func Ptr[T any](v T) *T {
	return &v
}
