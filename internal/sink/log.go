package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

// Log writes alerts to the process logger. It is the fallback sink when no
// external destination is configured.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log sink
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("sink.log")}
}

// Deliver logs the formatted alert
func (l *Log) Deliver(_ context.Context, target model.Target, message string) error {
	l.logger.Info("Alert",
		zap.String("target", target.String()),
		zap.String("message", message))
	return nil
}
