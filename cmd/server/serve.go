package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/t77yq/loadwatch/internal/aggregator"
	"github.com/t77yq/loadwatch/internal/api"
	"github.com/t77yq/loadwatch/internal/config"
	"github.com/t77yq/loadwatch/internal/ingest"
	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/monitor"
	"github.com/t77yq/loadwatch/internal/scheduler"
	"github.com/t77yq/loadwatch/internal/sink"
	"github.com/t77yq/loadwatch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring loops, scheduler and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configDir)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error", zap.String("subject", subject), zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// buildSinks returns the routed sinks and the fallback sink. The fallback is
// the webhook when configured, then the NATS stream, then the log.
func buildSinks(cfg *config.Config, js nats.JetStreamContext, logger *zap.Logger) ([]monitor.Route, monitor.Sink, error) {
	var routes []monitor.Route

	if cfg.Sinks.Telegram.Token != "" {
		minSeverity, err := model.ParseSeverity(cfg.Sinks.Telegram.MinSeverity)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid sinks.telegram.min_severity: %w", err)
		}
		tg, err := sink.NewTelegram(sink.TelegramConfig{
			Token:         cfg.Sinks.Telegram.Token,
			DefaultChat:   cfg.Sinks.Telegram.DefaultChat,
			Chats:         cfg.Sinks.Telegram.Chats,
			RatePerSecond: cfg.Sinks.Telegram.RatePerSecond,
		}, logger)
		if err != nil {
			logger.Error("Telegram sink disabled", zap.Error(err))
		} else {
			for _, kind := range []model.TargetKind{model.TargetUser, model.TargetTeam, model.TargetChannel, model.TargetGlobal} {
				routes = append(routes, monitor.Route{
					Name:        "telegram",
					Kind:        kind,
					MinSeverity: minSeverity,
					Sink:        tg,
				})
			}
		}
	}

	switch {
	case cfg.Sinks.Webhook.URL != "":
		return routes, sink.NewWebhook(sink.WebhookConfig{
			URL:         cfg.Sinks.Webhook.URL,
			Timeout:     cfg.Sinks.Webhook.Timeout,
			MaxFailures: cfg.Sinks.Webhook.MaxFailures,
		}, logger), nil
	case js != nil && cfg.Sinks.NATS.Enabled:
		ns, err := sink.NewNATS(js, logger)
		if err != nil {
			return nil, nil, err
		}
		return routes, ns, nil
	default:
		return routes, sink.NewLog(logger), nil
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	logger.Info("Starting loadwatch", zap.String("name", cfg.App.Name))

	feed := ingest.NewFeed(cfg.Monitor.FeedDepth, logger)
	var recorder ingest.Recorder = feed

	var js nats.JetStreamContext
	if cfg.NATS.Enabled {
		nc, err := connectNATS(cfg, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		js, err = nc.JetStream()
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}

		consumer := ingest.NewConsumer(js, feed, logger)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer consumer.Stop()
		recorder = ingest.NewPublisher(js, logger)
	}

	archive, err := storage.NewAlertArchive(logger, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, archive.Close())
	}()

	routes, defaultSink, err := buildSinks(cfg, js, logger)
	if err != nil {
		return err
	}

	dispatcher := monitor.NewDispatcher(monitor.DispatcherConfig{
		HistoryLimit:    cfg.Alerts.HistoryLimit,
		HighCooldown:    cfg.Alerts.CooldownHigh,
		DefaultCooldown: cfg.Alerts.CooldownDefault,
		Routes:          routes,
		DefaultSink:     defaultSink,
		Archive:         archive,
	}, logger)

	aggCfg := aggregator.DefaultConfig()
	aggCfg.ImbalanceRatio = cfg.Thresholds.Imbalance
	agg := aggregator.New(aggCfg)

	watcher := monitor.NewWatcher(feed, dispatcher, agg, monitor.Thresholds{
		Stress:              cfg.Thresholds.Stress,
		Workload:            cfg.Thresholds.Workload,
		Burnout:             cfg.Thresholds.Burnout,
		LateNightMessages:   cfg.Thresholds.LateNightMessages,
		SlowResponseMinutes: cfg.Thresholds.SlowResponseMinutes,
		DensityRatio:        cfg.Thresholds.DensityRatio,
	}, logger)

	loops := []*monitor.Loop{
		monitor.NewLoop("activity", cfg.Monitor.ActivityInterval, cfg.Monitor.ActivityRetry, watcher.ActivityChecks(), logger),
		monitor.NewLoop("sweep", cfg.Monitor.SweepInterval, cfg.Monitor.SweepRetry, watcher.SweepChecks(), logger),
	}
	for _, loop := range loops {
		if err := loop.Start(ctx); err != nil {
			return err
		}
		defer loop.Stop()
	}

	cron := scheduler.NewCronScheduler(logger)
	if _, err := cron.AddJob("daily-summary", cfg.Schedule.DailySummary, watcher.SendDailySummaries); err != nil {
		return err
	}
	if _, err := cron.AddJob("archive-cleanup", cfg.Schedule.Cleanup, func(ctx context.Context) error {
		removed, err := archive.DeleteBefore(ctx, time.Now().Add(-cfg.Storage.Retention))
		if err != nil {
			return err
		}
		logger.Info("Pruned alert archive", zap.Int64("removed", removed))
		return nil
	}); err != nil {
		return err
	}
	if err := cron.Start(ctx); err != nil {
		return err
	}
	defer cron.Stop()

	handler := api.NewHandler(api.Services{
		Alerts:     dispatcher,
		Recorder:   recorder,
		Insights:   watcher,
		Aggregator: agg,
		Archive:    archive,
		Jobs:       cron,
	}, logger)
	srv := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: api.NewRouter(handler, logger),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.API.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
