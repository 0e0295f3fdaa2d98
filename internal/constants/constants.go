package constants

import "time"

const (
	ServiceName = "onebridge"
	UserAgent   = "OneBot"
	ClientRole  = "Universal"
)

const (
	HeaderSelfID        = "X-Self-ID"
	HeaderClientRole    = "X-Client-Role"
	HeaderSignature     = "X-Signature"
	HeaderAuthorization = "Authorization"
	HeaderUserAgent     = "User-Agent"
	QueryAccessToken    = "access_token"
)

const (
	DefaultHTTPTimeout        = 10 * time.Second
	DefaultWebhookTimeout     = 30 * time.Second
	DefaultReconnectInterval  = 3 * time.Second
	DefaultRateLimitInterval  = 500 * time.Millisecond
	DefaultHeartbeatInterval  = 15 * time.Second
	DefaultMaxReconnectWait   = time.Minute
	ShutdownTimeout           = 5 * time.Second
	SocketWriteTimeout        = 10 * time.Second
	SocketHandshakeTimeout    = 10 * time.Second
	PublisherWriteTimeout     = 10 * time.Second
	KafkaBatchTimeout         = 10 * time.Millisecond
	DefaultBanDurationSeconds = 1800
)

const (
	// SocketSendBuffer is the number of frames queued per websocket sink
	// before further frames are dropped.
	SocketSendBuffer = 256
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	RetcodeOK         = 0
	RetcodeAsync      = 1
	RetcodeCallFailed = 102
)

const (
	StatusOK     = "ok"
	StatusAsync  = "async"
	StatusFailed = "failed"
)

const (
	MessageFormatString = "string"
	MessageFormatArray  = "array"
)

const (
	ReconnectFixed       = "fixed"
	ReconnectExponential = "exponential"
)

const (
	BrokerKafka = "kafka"
	BrokerRedis = "redis"
)
