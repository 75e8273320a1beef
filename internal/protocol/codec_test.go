package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Request
	}{
		{"open", `{"Open":{"port":"/dev/ttyUSB0"}}`, &OpenRequest{Port: "/dev/ttyUSB0"}},
		{"write lock", `{"WriteLock":{"port":"COM3"}}`, &WriteLockRequest{Port: "COM3"}},
		{"release one", `{"ReleaseWriteLock":{"port":"COM3"}}`, &ReleaseWriteLockRequest{Port: Ptr("COM3")}},
		{"release all", `{"ReleaseWriteLock":{}}`, &ReleaseWriteLockRequest{}},
		{"write text", `{"Write":{"port":"COM3","data":"hello"}}`, &WriteRequest{Port: "COM3", Data: "hello"}},
		{"write base64", `{"Write":{"port":"COM3","data":"aGk=","base64":true}}`, &WriteRequest{Port: "COM3", Data: "aGk=", Base64: Ptr(true)}},
		{"close one", `{"Close":{"port":"COM3"}}`, &CloseRequest{Port: Ptr("COM3")}},
		{"close all", `{"Close":{}}`, &CloseRequest{}},
		{"list", `{"List":{}}`, &ListRequest{}},
		{"extra fields ignored", `{"Open":{"port":"a","speed":9600}}`, &OpenRequest{Port: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequestRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  Kind
	}{
		{"truncated json", `{"Open":}`, KindOther},
		{"not an object", `["Open"]`, KindOther},
		{"unknown variant", `{"Reboot":{}}`, KindUnknownRequest},
		{"two variants", `{"Open":{"port":"a"},"List":{}}`, KindUnknownRequest},
		{"empty object", `{}`, KindUnknownRequest},
		{"null", `null`, KindUnknownRequest},
		{"missing port", `{"Open":{}}`, KindUnknownRequest},
		{"null port", `{"WriteLock":{"port":null}}`, KindUnknownRequest},
		{"missing data", `{"Write":{"port":"a"}}`, KindUnknownRequest},
		{"wrong type", `{"Open":{"port":5}}`, KindUnknownRequest},
		{"fields not object", `{"List":null}`, KindUnknownRequest},
		{"response variant", `{"Opened":{"port":"a"}}`, KindUnknownRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.input))
			require.Error(t, err)
			assert.Nil(t, req)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestEncodeResponses(t *testing.T) {
	tests := []struct {
		resp Response
		want string
	}{
		{&OpenedResponse{Port: "a"}, `{"Opened":{"port":"a"}}`},
		{&ClosedResponse{Port: "a"}, `{"Closed":{"port":"a"}}`},
		{&WroteResponse{Port: "a"}, `{"Wrote":{"port":"a"}}`},
		{&WriteLockedResponse{Port: "a"}, `{"WriteLocked":{"port":"a"}}`},
		{&WriteLockReleasedResponse{Port: Ptr("a")}, `{"WriteLockReleased":{"port":"a"}}`},
		{&WriteLockReleasedResponse{}, `{"WriteLockReleased":{}}`},
		{&ListResponse{}, `{"List":{"ports":[]}}`},
		{&ListResponse{Ports: []string{"/dev/ttyS0", "/dev/ttyUSB0"}}, `{"List":{"ports":["/dev/ttyS0","/dev/ttyUSB0"]}}`},
		{&OkResponse{Msg: "ready"}, `{"Ok":{"msg":"ready"}}`},
		{&ErrorResponse{Description: "d", Display: "x"}, `{"Error":{"description":"d","display":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.resp.Type(), func(t *testing.T) {
			data, err := Encode(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestNewReadResponse(t *testing.T) {
	text := NewReadResponse("a", []byte("hello\n"))
	assert.Equal(t, "hello\n", text.Data)
	require.NotNil(t, text.Base64)
	assert.False(t, *text.Base64)

	binary := NewReadResponse("a", []byte{0xff, 0x00, 0xfe})
	assert.Equal(t, "/wD+", binary.Data)
	require.NotNil(t, binary.Base64)
	assert.True(t, *binary.Base64)

	data, err := Encode(binary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Read":{"port":"a","data":"/wD+","base64":true}}`, string(data))

	decoded, err := DecodeData(binary.Data, binary.Base64)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0x00, 0xfe}, decoded)
}

func TestDecodeData(t *testing.T) {
	raw, err := DecodeData("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)

	raw, err = DecodeData("aGVsbG8=", Ptr(false))
	require.NoError(t, err)
	assert.Equal(t, []byte("aGVsbG8="), raw)

	_, err = DecodeData("not base64!", Ptr(true))
	require.Error(t, err)
	assert.Equal(t, KindOther, KindOf(err))
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"Read":{"port":"a","data":"hi","base64":false}}`))
	require.NoError(t, err)
	assert.Equal(t, &ReadResponse{Port: "a", Data: "hi", Base64: Ptr(false)}, resp)

	_, err = DecodeResponse([]byte(`{"Open":{"port":"a"}}`))
	assert.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	err := AlreadyWriteLocked("/dev/ttyUSB0")
	assert.True(t, errors.Is(err, ErrAlreadyWriteLocked))
	assert.False(t, errors.Is(err, ErrNeedWriteLock))
	assert.Equal(t, "Port '/dev/ttyUSB0' is already writelocked", err.Error())

	cause := errors.New("input/output error")
	werr := PortWriteError("COM1", cause)
	assert.True(t, errors.Is(werr, cause))
	assert.Equal(t, "Port 'COM1' write error: input/output error", werr.Error())

	other := Wrap(cause)
	assert.Equal(t, KindOther, KindOf(other))
	assert.Equal(t, "input/output error", other.Error())
	assert.Same(t, err, Wrap(err))
	assert.Nil(t, Wrap(nil))

	resp := NewErrorResponse(SubscriptionNotFound("abc"))
	assert.Equal(t, "Subscription not found", resp.Description)
	assert.Equal(t, "Subscription 'abc' not found", resp.Display)
}
