//go:build integration

package broker

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"onebridge/internal/config"
	"onebridge/internal/logger"
	"onebridge/pkg/retry"
)

func TestRedisPublisherDeliversToSubscribers(t *testing.T) {
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redisclient.ParseURL(uri)
	require.NoError(t, err)

	client := redisclient.NewClient(opt)
	p := NewRedisPublisherWithClient(client, "onebot.events", retry.DefaultPolicy(), logger.NopLogger())
	defer p.Close()
	require.NoError(t, p.Check(ctx))

	sub := redisclient.NewClient(opt).Subscribe(ctx, "onebot.events")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "message", []byte(`{"post_type":"message"}`)))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"post_type":"message"}`, msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestKafkaPublisherWritesEvents(t *testing.T) {
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkamodule.WithClusterID("onebridge-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	cfg := config.KafkaConfig{Enabled: true, Brokers: brokers, Topic: "onebot.events"}
	policy := retry.Policy{MaxAttempts: 10, InitialInterval: 500 * time.Millisecond, MaxInterval: 2 * time.Second, Multiplier: 2}
	p := NewKafkaPublisher(cfg, 10001, policy, logger.NopLogger())
	defer p.Close()

	require.NoError(t, p.Check(ctx))
	require.NoError(t, p.Publish(ctx, "notice", []byte(`{"post_type":"notice"}`)))

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.Topic, Partition: 0})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, "10001", string(msg.Key))
	assert.JSONEq(t, `{"post_type":"notice"}`, string(msg.Value))
	require.NotEmpty(t, msg.Headers)
	assert.Equal(t, "post_type", msg.Headers[0].Key)
	assert.Equal(t, "notice", string(msg.Headers[0].Value))
}
