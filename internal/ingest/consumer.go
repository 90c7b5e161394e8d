package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

const (
	// ActivityStream carries activity records and message batches
	ActivityStream = "ACTIVITY"
	// SubjectRecord carries one JSON ActivityRecord per message
	SubjectRecord = "activity.record"
	// SubjectMessages carries one JSON MessageBatch per message
	SubjectMessages = "activity.messages"
)

// Recorder accepts activity for scoring
type Recorder interface {
	RecordActivity(ctx context.Context, rec model.ActivityRecord) error
	RecordBatch(ctx context.Context, batch model.MessageBatch) error
}

// EnsureStream creates the activity stream if it does not exist
func EnsureStream(js nats.JetStreamContext) error {
	stream, err := js.StreamInfo(ActivityStream)
	if err != nil && err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if stream != nil {
		return nil
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     ActivityStream,
		Subjects: []string{"activity.*"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Consumer feeds JetStream activity messages into a Recorder
type Consumer struct {
	js       nats.JetStreamContext
	recorder Recorder
	logger   *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewConsumer creates a new activity consumer
func NewConsumer(js nats.JetStreamContext, recorder Recorder, logger *zap.Logger) *Consumer {
	return &Consumer{
		js:       js,
		recorder: recorder,
		logger:   logger.Named("consumer"),
	}
}

// Start subscribes to the activity subjects
func (c *Consumer) Start(ctx context.Context) error {
	if err := EnsureStream(c.js); err != nil {
		return err
	}

	handlers := map[string]nats.MsgHandler{
		SubjectRecord:   c.handle(ctx, c.decodeRecord),
		SubjectMessages: c.handle(ctx, c.decodeBatch),
	}
	for _, subject := range []string{SubjectRecord, SubjectMessages} {
		sub, err := c.js.Subscribe(subject, handlers[subject], nats.ManualAck())
		if err != nil {
			c.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	c.logger.Info("Activity consumer started")
	return nil
}

// Stop unsubscribes from all subjects
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			c.logger.Warn("Failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	c.subs = nil
}

func (c *Consumer) decodeRecord(ctx context.Context, data []byte) error {
	var rec model.ActivityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to unmarshal activity record: %w", err)
	}
	return c.recorder.RecordActivity(ctx, rec)
}

func (c *Consumer) decodeBatch(ctx context.Context, data []byte) error {
	var batch model.MessageBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("failed to unmarshal message batch: %w", err)
	}
	return c.recorder.RecordBatch(ctx, batch)
}

// handle acks recorded messages and terminates malformed ones so they are
// not redelivered.
func (c *Consumer) handle(ctx context.Context, decode func(context.Context, []byte) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if err := decode(ctx, msg.Data); err != nil {
			c.logger.Error("Dropping activity message",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			if err := msg.Term(); err != nil {
				c.logger.Warn("Failed to terminate message", zap.Error(err))
			}
			return
		}
		if err := msg.Ack(); err != nil {
			c.logger.Warn("Failed to ack message", zap.Error(err))
		}
	}
}

// Publisher writes activity to the stream for a Consumer to pick up
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewPublisher creates a new activity publisher
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) *Publisher {
	return &Publisher{
		js:     js,
		logger: logger.Named("publisher"),
	}
}

// RecordActivity publishes an activity record
func (p *Publisher) RecordActivity(ctx context.Context, rec model.ActivityRecord) error {
	if rec.EntityID == "" {
		return ErrMissingEntity
	}
	return p.publish(ctx, SubjectRecord, rec)
}

// RecordBatch publishes a message batch
func (p *Publisher) RecordBatch(ctx context.Context, batch model.MessageBatch) error {
	if batch.ChannelID == "" {
		return ErrMissingChannel
	}
	return p.publish(ctx, SubjectMessages, batch)
}

func (p *Publisher) publish(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", subject, err)
	}

	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish activity",
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
