// Package broker publishes forwarded events to message brokers so that
// consumers other than socket and webhook controllers can follow the bot.
package broker

import (
	"context"
)

// Publisher hands one serialized event to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, postType string, payload []byte) error
	Check(ctx context.Context) error
	Close() error
}
