package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var requestVariants = map[string]func() Request{
	"Open":             func() Request { return &OpenRequest{} },
	"WriteLock":        func() Request { return &WriteLockRequest{} },
	"ReleaseWriteLock": func() Request { return &ReleaseWriteLockRequest{} },
	"Write":            func() Request { return &WriteRequest{} },
	"Close":            func() Request { return &CloseRequest{} },
	"List":             func() Request { return &ListRequest{} },
}

var responseVariants = map[string]func() Response{
	"Error":             func() Response { return &ErrorResponse{} },
	"Read":              func() Response { return &ReadResponse{} },
	"Opened":            func() Response { return &OpenedResponse{} },
	"Closed":            func() Response { return &ClosedResponse{} },
	"Wrote":             func() Response { return &WroteResponse{} },
	"WriteLocked":       func() Response { return &WriteLockedResponse{} },
	"WriteLockReleased": func() Response { return &WriteLockReleasedResponse{} },
	"List":              func() Response { return &ListResponse{} },
	"Ok":                func() Response { return &OkResponse{} },
}

// Fields that must be present and non-null, per variant.
var requiredFields = map[string][]string{
	"Open":        {"port"},
	"WriteLock":   {"port"},
	"Write":       {"port", "data"},
	"Read":        {"port", "data"},
	"Opened":      {"port"},
	"Closed":      {"port"},
	"Wrote":       {"port"},
	"WriteLocked": {"port"},
	"List":        nil,
	"Error":       {"description", "display"},
}

// Encode frames m as {"<Type>":{...}}.
func Encode(m Message) ([]byte, error) {
	if lr, ok := m.(*ListResponse); ok && lr.Ports == nil {
		m = &ListResponse{Ports: []string{}}
	}
	data, err := json.Marshal(map[string]Message{m.Type(): m})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Type(), err)
	}
	return data, nil
}

// DecodeRequest parses one client frame. Invalid JSON yields a KindOther
// error; a well-formed frame that is not a known request yields
// KindUnknownRequest.
func DecodeRequest(data []byte) (Request, error) {
	tag, body, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}
	newReq, ok := requestVariants[tag]
	if !ok {
		return nil, UnknownRequest(fmt.Errorf("unknown request variant %q", tag))
	}
	req := newReq()
	if err := decodeBody(tag, body, req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeResponse parses one server frame.
func DecodeResponse(data []byte) (Response, error) {
	tag, body, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}
	newResp, ok := responseVariants[tag]
	if !ok {
		return nil, UnknownRequest(fmt.Errorf("unknown response variant %q", tag))
	}
	resp := newResp()
	if err := decodeBody(tag, body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func splitEnvelope(data []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, Wrap(fmt.Errorf("invalid json: %w", err))
	}
	if len(envelope) != 1 {
		return "", nil, UnknownRequest(fmt.Errorf("expected exactly one variant, got %d", len(envelope)))
	}
	var tag string
	var body json.RawMessage
	for k, v := range envelope {
		tag, body = k, v
	}
	return tag, body, nil
}

func decodeBody(tag string, body json.RawMessage, out Message) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return UnknownRequest(fmt.Errorf("%s: fields must be a JSON object", tag))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Wrap(fmt.Errorf("%s: %w", tag, err))
	}
	for _, name := range requiredFields[tag] {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return UnknownRequest(fmt.Errorf("%s: missing field %q", tag, name))
		}
	}

	if err := json.Unmarshal(trimmed, out); err != nil {
		return UnknownRequest(fmt.Errorf("%s: %w", tag, err))
	}
	return nil
}
