package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "onebridge/pkg/errors"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"action":"send_private_msg","params":{"user_id":1,"message":"hi"},"echo":{"seq":7}}`))
	require.NoError(t, err)

	assert.Equal(t, "send_private_msg", req.Action)
	assert.Equal(t, float64(1), req.Params["user_id"])
	assert.JSONEq(t, `{"seq":7}`, string(req.Echo))
}

func TestParseRequestDefaultsParams(t *testing.T) {
	req, err := ParseRequest([]byte(`{"action":"get_login_info"}`))
	require.NoError(t, err)
	assert.NotNil(t, req.Params)
	assert.Empty(t, req.Params)
}

func TestParseRequestMalformed(t *testing.T) {
	for _, frame := range []string{`not json`, `{"params":{}}`, `{"action":"x","params":[1]}`} {
		_, err := ParseRequest([]byte(frame))
		require.Error(t, err, frame)
		assert.True(t, apperrors.IsMalformedRequest(err), frame)
	}
}

func TestResponseEnvelope(t *testing.T) {
	raw, err := json.Marshal(Async().WithEcho(json.RawMessage(`"abc"`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"retcode":1,"status":"async","data":null,"error":null,"echo":"abc"}`, string(raw))

	raw, err = json.Marshal(Async())
	require.NoError(t, err)
	assert.JSONEq(t, `{"retcode":1,"status":"async","data":null,"error":null}`, string(raw))
}

func TestEchoRoundTripIsVerbatim(t *testing.T) {
	echoes := []string{`"s"`, `42`, `{"a":[1,2,{"b":null}]}`, `[true,false]`}
	for _, echo := range echoes {
		req, err := ParseRequest([]byte(`{"action":"get_status","echo":` + echo + `}`))
		require.NoError(t, err)

		raw, err := json.Marshal(OK(nil).WithEcho(req.Echo))
		require.NoError(t, err)

		var out struct {
			Echo json.RawMessage `json:"echo"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.JSONEq(t, echo, string(out.Echo))
	}
}

func TestFromError(t *testing.T) {
	resp := FromError(apperrors.ErrNotFoundAction)
	assert.Equal(t, 1404, resp.Retcode)
	assert.Equal(t, "failed", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, 1404, resp.Error.Code)

	resp = FromError(apperrors.ErrMalformedRequest)
	assert.Equal(t, 1400, resp.Retcode)
}

func TestPeekEcho(t *testing.T) {
	assert.JSONEq(t, `5`, string(PeekEcho([]byte(`{"echo":5,"params":[]}`))))
	assert.Nil(t, PeekEcho([]byte(`garbage`)))
}

func TestIsQuickOperation(t *testing.T) {
	assert.True(t, Request{Action: ".handle_quick_operation"}.IsQuickOperation())
	assert.True(t, Request{Action: ".handle_quick_operation_async"}.IsQuickOperation())
	assert.False(t, Request{Action: "send_msg"}.IsQuickOperation())
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"true", true},
		{"1", true},
		{"yes", true},
		{"0", false},
		{"false", false},
		{"FALSE", false},
		{"", false},
		{float64(1), true},
		{float64(0), false},
		{json.Number("0"), false},
		{[]string{"1"}, true},
		{map[string]any{}, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToBool(tt.in), "%#v", tt.in)
	}
}

func TestBoolUnmarshal(t *testing.T) {
	var v struct {
		A Bool `json:"a"`
		B Bool `json:"b"`
		C Bool `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1","b":0,"c":true}`), &v))
	assert.True(t, bool(v.A))
	assert.False(t, bool(v.B))
	assert.True(t, bool(v.C))
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{nil, 0},
		{float64(60), 60},
		{float64(60.9), 60},
		{"60", 60},
		{" 7.5 ", 7},
		{"soon", 0},
		{true, 1},
		{json.Number("12"), 12},
		{[]any{1}, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToInt(tt.in), "%#v", tt.in)
	}
}

func TestOptionalBoolUnmarshal(t *testing.T) {
	var v struct {
		Absent OptionalBool `json:"absent"`
		Null   OptionalBool `json:"null"`
		Yes    OptionalBool `json:"yes"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"null":null,"yes":"1"}`), &v))
	assert.False(t, v.Absent.Set)
	assert.Equal(t, OptionalBool{Set: true, Value: false}, v.Null)
	assert.Equal(t, OptionalBool{Set: true, Value: true}, v.Yes)
}

func TestIntUnmarshal(t *testing.T) {
	var v struct {
		N Int `json:"n"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"n":"42"}`), &v))
	assert.Equal(t, Int(42), v.N)
}
