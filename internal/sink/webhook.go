package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/model"
)

// WebhookConfig configures a webhook sink
type WebhookConfig struct {
	URL         string
	Timeout     time.Duration
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

type webhookPayload struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

// Webhook posts alerts as JSON to an incoming-webhook URL. Consecutive
// failures trip a circuit breaker so a dead endpoint is not hammered every
// cycle.
type Webhook struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewWebhook creates a webhook sink
func NewWebhook(cfg WebhookConfig, logger *zap.Logger) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	logger = logger.Named("sink.webhook")
	settings := gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Webhook{
		logger:     logger,
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Deliver posts the message to the webhook URL
func (w *Webhook) Deliver(ctx context.Context, target model.Target, message string) error {
	body, err := json.Marshal(webhookPayload{Text: message, Target: target.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		return nil, w.post(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State reports the breaker state
func (w *Webhook) State() gobreaker.State {
	return w.breaker.State()
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	w.logger.Debug("Webhook delivered", zap.Int("status", resp.StatusCode))
	return nil
}
