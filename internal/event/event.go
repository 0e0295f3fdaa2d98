// Package event defines the records the bot runtime emits and the bridge
// forwards: messages, notices, requests and meta events.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	PostTypeMessage = "message"
	PostTypeNotice  = "notice"
	PostTypeRequest = "request"
	PostTypeMeta    = "meta_event"
)

const (
	MessageTypePrivate = "private"
	MessageTypeGroup   = "group"
	MessageTypeDiscuss = "discuss"
)

const (
	RequestTypeFriend = "friend"
	RequestTypeGroup  = "group"
)

const (
	MetaLifecycle = "lifecycle"
	MetaHeartbeat = "heartbeat"

	LifecycleEnable  = "enable"
	LifecycleDisable = "disable"
	LifecycleConnect = "connect"
)

// Event is one record emitted by the runtime. Implementations are plain
// values; the dispatcher never mutates them.
type Event interface {
	Kind() string
	Self() int64
}

type Base struct {
	Time     int64  `json:"time"`
	SelfID   int64  `json:"self_id"`
	PostType string `json:"post_type"`
}

func (b Base) Kind() string { return b.PostType }
func (b Base) Self() int64  { return b.SelfID }

func newBase(selfID int64, postType string) Base {
	return Base{Time: time.Now().Unix(), SelfID: selfID, PostType: postType}
}

type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Age      int    `json:"age,omitempty"`
	Area     string `json:"area,omitempty"`
	Level    int    `json:"level,omitempty"`
	Role     string `json:"role,omitempty"`
	Title    string `json:"title,omitempty"`
}

type Anonymous struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

type Message struct {
	Base
	MessageType string     `json:"message_type"`
	SubType     string     `json:"sub_type"`
	MessageID   string     `json:"message_id"`
	UserID      int64      `json:"user_id"`
	GroupID     int64      `json:"group_id,omitempty"`
	GroupName   string     `json:"group_name,omitempty"`
	DiscussID   int64      `json:"discuss_id,omitempty"`
	Anonymous   *Anonymous `json:"anonymous"`
	Message     any        `json:"message"`
	RawMessage  string     `json:"raw_message"`
	Font        string     `json:"font,omitempty"`
	Sender      Sender     `json:"sender"`
}

// WithStringMessage returns a copy whose message is the raw CQ-code string
// instead of the segment array.
func (m Message) WithStringMessage() Message {
	m.Message = m.RawMessage
	return m
}

type Notice struct {
	Base
	NoticeType string `json:"notice_type"`
	SubType    string `json:"sub_type,omitempty"`
	GroupID    int64  `json:"group_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	OperatorID int64  `json:"operator_id,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
	Duration   int64  `json:"duration,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

type Request struct {
	Base
	RequestType string `json:"request_type"`
	SubType     string `json:"sub_type,omitempty"`
	UserID      int64  `json:"user_id"`
	GroupID     int64  `json:"group_id,omitempty"`
	Comment     string `json:"comment"`
	Flag        string `json:"flag"`
}

type Meta struct {
	Base
	MetaEventType string `json:"meta_event_type"`
	SubType       string `json:"sub_type,omitempty"`
	Interval      int64  `json:"interval,omitempty"`
	Status        any    `json:"status,omitempty"`
}

// Lifecycle builds a meta_event/lifecycle record (enable, disable, connect).
func Lifecycle(selfID int64, subType string) Meta {
	return Meta{
		Base:          newBase(selfID, PostTypeMeta),
		MetaEventType: MetaLifecycle,
		SubType:       subType,
	}
}

// Heartbeat builds a meta_event/heartbeat record; interval is reported in
// milliseconds.
func Heartbeat(selfID int64, interval time.Duration, status any) Meta {
	return Meta{
		Base:          newBase(selfID, PostTypeMeta),
		MetaEventType: MetaHeartbeat,
		Interval:      interval.Milliseconds(),
		Status:        status,
	}
}

// Decode parses a serialized event, picking the concrete type from post_type.
func Decode(raw []byte) (Event, error) {
	var base Base
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch base.PostType {
	case PostTypeMessage:
		var m Message
		err = json.Unmarshal(raw, &m)
		ev = m
	case PostTypeNotice:
		var n Notice
		err = json.Unmarshal(raw, &n)
		ev = n
	case PostTypeRequest:
		var r Request
		err = json.Unmarshal(raw, &r)
		ev = r
	case PostTypeMeta:
		var m Meta
		err = json.Unmarshal(raw, &m)
		ev = m
	default:
		return nil, fmt.Errorf("decode event: unknown post_type %q", base.PostType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", base.PostType, err)
	}
	return ev, nil
}
