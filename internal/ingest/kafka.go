// Package ingest consumes chat messages published by external collectors on
// Kafka and runs them through the detection pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"
	"chatwarden/internal/service"

	"github.com/IBM/sarama"
)

// MessageSink is the ingestion entry point.
type MessageSink interface {
	OnMessage(ctx context.Context, source string, in service.InboundMessage) (*service.DetectResult, error)
}

// ConsumerConfig selects the brokers, group and topics to read.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topics   []string
	ClientID string
}

// Consumer is a sarama consumer group feeding the pipeline.
type Consumer struct {
	cg     sarama.ConsumerGroup
	topics []string
	sink   MessageSink
}

// NewConsumer joins the consumer group. Offsets start at the newest message.
func NewConsumer(cfg ConsumerConfig, sink MessageSink) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka consumer group id is empty")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("kafka topics is empty")
	}
	if sink == nil {
		return nil, errors.New("message sink is nil")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Group.Rebalance.Timeout = 30 * time.Second
	sc.Consumer.Group.Session.Timeout = 30 * time.Second
	sc.ClientID = strings.TrimSpace(cfg.ClientID)

	cg, err := sarama.NewConsumerGroup(cfg.Brokers, strings.TrimSpace(cfg.GroupID), sc)
	if err != nil {
		return nil, err
	}
	return &Consumer{cg: cg, topics: cfg.Topics, sink: sink}, nil
}

// Run consumes until ctx is done. Consume returns on every rebalance, so it loops.
func (c *Consumer) Run(ctx context.Context) error {
	h := &groupHandler{sink: c.sink, backoff: retryBackoff, maxBackoff: maxRetryBackoff}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.cg.Consume(ctx, c.topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	return c.cg.Close()
}

const (
	retryBackoff    = 500 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

type groupHandler struct {
	sink       MessageSink
	backoff    time.Duration
	maxBackoff time.Duration
}

func (groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks a record only once it has been processed. Offsets are
// committed as a high-water mark, so a record that keeps failing holds the
// partition until it succeeds or the session ends.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for m := range claim.Messages() {
		if err := h.process(ctx, m); err != nil {
			return err
		}
		sess.MarkMessage(m, "")
	}
	return nil
}

func (h *groupHandler) process(ctx context.Context, m *sarama.ConsumerMessage) error {
	wait := h.backoff
	for attempt := 1; ; attempt++ {
		if Handle(ctx, h.sink, m.Value) {
			return nil
		}
		observability.L().WarnContext(ctx, "kafka record will be retried",
			slog.String("topic", m.Topic),
			slog.Int("partition", int(m.Partition)),
			slog.Int64("offset", m.Offset),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if wait *= 2; wait > h.maxBackoff {
			wait = h.maxBackoff
		}
	}
}

// Handle processes one record and reports whether its offset may be committed.
// Malformed and rejected records are committed so they cannot wedge the
// partition. Any other failure returns false and the caller retries the record.
func Handle(ctx context.Context, sink MessageSink, value []byte) bool {
	var in service.InboundMessage
	if err := json.Unmarshal(value, &in); err != nil {
		observability.MessagesIngested.WithLabelValues(service.SourceKafka, "invalid").Inc()
		observability.L().WarnContext(ctx, "kafka record is not valid JSON", slog.String("error", err.Error()))
		return true
	}

	_, err := sink.OnMessage(ctx, service.SourceKafka, in)
	switch {
	case err == nil:
		return true
	case models.HasCode(err, models.CodeValidation):
		observability.L().WarnContext(ctx, "kafka record rejected",
			slog.Int64("chat_id", in.ChatID),
			slog.String("error", err.Error()),
		)
		return true
	default:
		observability.L().ErrorContext(ctx, "kafka record not processed",
			slog.Int64("chat_id", in.ChatID),
			slog.String("error", err.Error()),
		)
		return false
	}
}
