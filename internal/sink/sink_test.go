package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/testutil"
)

func TestLog_Deliver(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLog(zap.New(core))

	require.NoError(t, s.Deliver(context.Background(), model.Target{TeamID: "t1"}, "hello"))

	entries := logs.FilterMessage("Alert").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "team:t1", entries[0].ContextMap()["target"])
	assert.Equal(t, "hello", entries[0].ContextMap()["message"])
}

func TestWebhook_Deliver(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhook(WebhookConfig{URL: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, s.Deliver(context.Background(), model.Target{ChannelID: "dev"}, "*bold*"))

	assert.Equal(t, "*bold*", got.Text)
	assert.Equal(t, "channel:dev", got.Target)
}

func TestWebhook_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhook(WebhookConfig{URL: srv.URL, MaxFailures: 2, OpenTimeout: time.Hour}, zaptest.NewLogger(t))
	ctx := context.Background()
	target := model.Target{UserID: "u1"}

	err := s.Deliver(ctx, target, "one")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 502")
	require.Error(t, s.Deliver(ctx, target, "two"))
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err = s.Deliver(ctx, target, "three")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []*bot.SendMessageParams
	fails error
}

func (f *fakeMessenger) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails != nil {
		return nil, f.fails
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func TestTelegram_ChatResolution(t *testing.T) {
	client := &fakeMessenger{}
	cfg := TelegramConfig{
		Chats:         map[string]int64{"t1": 100, "u1": 200},
		RatePerSecond: 100,
	}
	s := NewTelegramWithClient(client, cfg, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Deliver(ctx, model.Target{TeamID: "t1"}, "team msg"))
	require.NoError(t, s.Deliver(ctx, model.Target{UserID: "u1"}, "user msg"))

	err := s.Deliver(ctx, model.Target{ChannelID: "unknown"}, "lost")
	assert.ErrorIs(t, err, ErrNoChat)

	require.Len(t, client.sent, 2)
	assert.Equal(t, int64(100), client.sent[0].ChatID)
	assert.Equal(t, "team msg", client.sent[0].Text)
	assert.EqualValues(t, "Markdown", client.sent[0].ParseMode)
	assert.Equal(t, int64(200), client.sent[1].ChatID)

	cfg.DefaultChat = 999
	s = NewTelegramWithClient(client, cfg, zaptest.NewLogger(t))
	id, err := s.ChatFor(model.Target{ChannelID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, int64(999), id)
}

func TestTelegram_SendFailure(t *testing.T) {
	client := &fakeMessenger{fails: errors.New("forbidden")}
	s := NewTelegramWithClient(client, TelegramConfig{DefaultChat: 1}, zaptest.NewLogger(t))

	err := s.Deliver(context.Background(), model.Target{}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestTelegram_RateLimitHonorsContext(t *testing.T) {
	s := NewTelegramWithClient(&fakeMessenger{}, TelegramConfig{DefaultChat: 1, RatePerSecond: 1}, zaptest.NewLogger(t))
	require.NoError(t, s.Deliver(context.Background(), model.Target{}, "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Deliver(ctx, model.Target{}, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestNATS_Deliver(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	s, err := NewNATS(js, zaptest.NewLogger(t))
	require.NoError(t, err)

	stream, err := js.StreamInfo(AlertStream)
	require.NoError(t, err)
	assert.Equal(t, []string{"alert.*"}, stream.Config.Subjects)

	// a second sink reuses the existing stream
	_, err = NewNATS(js, zaptest.NewLogger(t))
	require.NoError(t, err)

	received := make(chan Published, 1)
	sub, err := js.Subscribe("alert.team", func(msg *nats.Msg) {
		var p Published
		if json.Unmarshal(msg.Data, &p) == nil {
			received <- p
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, s.Deliver(context.Background(), model.Target{TeamID: "t1"}, "formatted"))

	select {
	case p := <-received:
		assert.Equal(t, model.TargetTeam, p.Kind)
		assert.Equal(t, "t1", p.Target.TeamID)
		assert.Equal(t, "formatted", p.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("alert not published")
	}
}
