package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

const (
	// AlertStream is the JetStream stream alerts are published to
	AlertStream = "ALERTS"
	// AlertSubjectPrefix is followed by the target kind
	AlertSubjectPrefix = "alert."
)

// Published is the message body written to the alert stream
type Published struct {
	Kind        model.TargetKind `json:"kind"`
	Target      model.Target     `json:"target"`
	Message     string           `json:"message"`
	PublishedAt time.Time        `json:"published_at"`
}

// NATS publishes alerts to JetStream subjects alert.<kind>
type NATS struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATS creates a NATS sink and makes sure the alert stream exists
func NewNATS(js nats.JetStreamContext, logger *zap.Logger) (*NATS, error) {
	s := &NATS{
		logger: logger.Named("sink.nats"),
		js:     js,
	}
	if err := s.ensureStream(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *NATS) ensureStream() error {
	stream, err := s.js.StreamInfo(AlertStream)
	if err != nil && err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:     AlertStream,
			Subjects: []string{AlertSubjectPrefix + "*"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		s.logger.Info("Created alert stream", zap.String("stream", AlertStream))
	}
	return nil
}

// Deliver publishes the message
func (s *NATS) Deliver(ctx context.Context, target model.Target, message string) error {
	kind := target.Kind()
	data, err := json.Marshal(Published{
		Kind:        kind,
		Target:      target,
		Message:     message,
		PublishedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	subject := AlertSubjectPrefix + string(kind)
	if _, err := s.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	s.logger.Debug("Alert published", zap.String("subject", subject))
	return nil
}
