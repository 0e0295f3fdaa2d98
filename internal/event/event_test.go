package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePicksConcreteType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "message", raw: `{"post_type":"message","message_type":"group","group_id":5,"user_id":7}`, want: "event.Message"},
		{name: "notice", raw: `{"post_type":"notice","notice_type":"group_increase"}`, want: "event.Notice"},
		{name: "request", raw: `{"post_type":"request","request_type":"friend","flag":"f"}`, want: "event.Request"},
		{name: "meta", raw: `{"post_type":"meta_event","meta_event_type":"heartbeat"}`, want: "event.Meta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, typeName(ev))
		})
	}
}

func typeName(ev Event) string {
	switch ev.(type) {
	case Message:
		return "event.Message"
	case Notice:
		return "event.Notice"
	case Request:
		return "event.Request"
	case Meta:
		return "event.Meta"
	}
	return "unknown"
}

func TestDecodeRejectsUnknownPostType(t *testing.T) {
	_, err := Decode([]byte(`{"post_type":"weather"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestWithStringMessageCopies(t *testing.T) {
	orig := Message{
		Base:       Base{PostType: PostTypeMessage},
		Message:    []any{map[string]any{"type": "text", "data": map[string]any{"text": "hi"}}},
		RawMessage: "hi",
	}

	converted := orig.WithStringMessage()
	assert.Equal(t, "hi", converted.Message)
	assert.IsType(t, []any{}, orig.Message)
}

func TestMetaBuilders(t *testing.T) {
	lc := Lifecycle(10001, LifecycleConnect)
	raw, err := json.Marshal(lc)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "meta_event", fields["post_type"])
	assert.Equal(t, "lifecycle", fields["meta_event_type"])
	assert.Equal(t, "connect", fields["sub_type"])
	assert.Equal(t, float64(10001), fields["self_id"])
	assert.NotContains(t, fields, "interval")

	hb := Heartbeat(10001, 15*time.Second, nil)
	assert.Equal(t, int64(15000), hb.Interval)
	assert.Equal(t, MetaHeartbeat, hb.MetaEventType)
}

func TestAnonymousSerializesAsNull(t *testing.T) {
	raw, err := json.Marshal(Message{Base: Base{PostType: PostTypeMessage}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"anonymous":null`)
}
