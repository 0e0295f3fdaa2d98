package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"onebridge/internal/config"
	"onebridge/internal/constants"
	"onebridge/internal/logger"
	"onebridge/pkg/metrics"
	"onebridge/pkg/retry"
	"onebridge/pkg/tracing"
)

const headerPostType = "post_type"

type KafkaPublisher struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer
	key    []byte
	policy retry.Policy
	logger logger.Logger
}

// NewKafkaPublisher writes every event to cfg.Topic, keyed by the bot's
// account so one account's events stay in order on one partition.
func NewKafkaPublisher(cfg config.KafkaConfig, selfID int64, policy retry.Policy, log logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.PublisherWriteTimeout,
		MaxAttempts:            1,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{
		cfg:    cfg,
		writer: w,
		key:    []byte(fmt.Sprint(selfID)),
		policy: policy,
		logger: log,
	}
}

func (p *KafkaPublisher) Name() string { return constants.BrokerKafka }

func (p *KafkaPublisher) Publish(ctx context.Context, postType string, payload []byte) error {
	start := time.Now()

	headers := []kafka.Header{{Key: headerPostType, Value: []byte(postType)}}
	headers = tracing.InjectTraceContext(ctx, headers)
	msg := kafka.Message{
		Key:     p.key,
		Value:   payload,
		Headers: headers,
		Time:    start,
	}

	err := retry.Do(ctx, p.policy, constants.BrokerKafka, p.cfg.Topic, func() error {
		return p.writer.WriteMessages(ctx, msg)
	}, func(attempt int, err error, next time.Duration) {
		p.logger.WarnwCtx(ctx, "Retrying kafka publish",
			"attempt", attempt,
			"next_delay", next,
			"topic", p.cfg.Topic,
			"error", err,
		)
	})
	metrics.ObservePublishDuration(constants.BrokerKafka, time.Since(start))

	if err != nil {
		metrics.PublishedEventsTotal.WithLabelValues(constants.BrokerKafka, "failed").Inc()
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	metrics.PublishedEventsTotal.WithLabelValues(constants.BrokerKafka, "ok").Inc()
	return nil
}

// Check dials the first reachable broker.
func (p *KafkaPublisher) Check(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no kafka brokers configured")
	}
	return lastErr
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
