package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LOADWATCH_API_ADDR
const EnvPrefix = "LOADWATCH"

// Config holds the service configuration
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`

	Log LogConfig `mapstructure:"log"`

	NATS struct {
		Enabled        bool          `mapstructure:"enabled"`
		URL            string        `mapstructure:"url"`
		MaxReconnects  int           `mapstructure:"max_reconnects"`
		ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"nats"`

	Monitor struct {
		ActivityInterval time.Duration `mapstructure:"activity_interval"`
		ActivityRetry    time.Duration `mapstructure:"activity_retry"`
		SweepInterval    time.Duration `mapstructure:"sweep_interval"`
		SweepRetry       time.Duration `mapstructure:"sweep_retry"`
		FeedDepth        int           `mapstructure:"feed_depth"`
	} `mapstructure:"monitor"`

	Thresholds struct {
		Stress              float64 `mapstructure:"stress"`
		Workload            float64 `mapstructure:"workload"`
		Burnout             float64 `mapstructure:"burnout"`
		LateNightMessages   int     `mapstructure:"late_night_messages"`
		SlowResponseMinutes float64 `mapstructure:"slow_response_minutes"`
		DensityRatio        float64 `mapstructure:"density_ratio"`
		Imbalance           float64 `mapstructure:"imbalance"`
	} `mapstructure:"thresholds"`

	Alerts struct {
		HistoryLimit    int           `mapstructure:"history_limit"`
		CooldownHigh    time.Duration `mapstructure:"cooldown_high"`
		CooldownDefault time.Duration `mapstructure:"cooldown_default"`
	} `mapstructure:"alerts"`

	Sinks struct {
		Webhook struct {
			URL         string        `mapstructure:"url"`
			Timeout     time.Duration `mapstructure:"timeout"`
			MaxFailures uint32        `mapstructure:"max_failures"`
		} `mapstructure:"webhook"`
		Telegram struct {
			Token         string           `mapstructure:"token"`
			DefaultChat   int64            `mapstructure:"default_chat"`
			Chats         map[string]int64 `mapstructure:"chats"`
			RatePerSecond int              `mapstructure:"rate_per_second"`
			MinSeverity   string           `mapstructure:"min_severity"`
		} `mapstructure:"telegram"`
		NATS struct {
			Enabled bool `mapstructure:"enabled"`
		} `mapstructure:"nats"`
	} `mapstructure:"sinks"`

	Storage struct {
		Path      string        `mapstructure:"path"`
		Retention time.Duration `mapstructure:"retention"`
	} `mapstructure:"storage"`

	Schedule struct {
		DailySummary string `mapstructure:"daily_summary"`
		Cleanup      string `mapstructure:"cleanup"`
	} `mapstructure:"schedule"`

	API struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"api"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Format      string `mapstructure:"format"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "loadwatch")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("monitor.activity_interval", 60*time.Second)
	v.SetDefault("monitor.activity_retry", 30*time.Second)
	v.SetDefault("monitor.sweep_interval", 300*time.Second)
	v.SetDefault("monitor.sweep_retry", 60*time.Second)
	v.SetDefault("monitor.feed_depth", 48)

	v.SetDefault("thresholds.stress", 0.7)
	v.SetDefault("thresholds.workload", 0.8)
	v.SetDefault("thresholds.burnout", 0.6)
	v.SetDefault("thresholds.late_night_messages", 5)
	v.SetDefault("thresholds.slow_response_minutes", 60.0)
	v.SetDefault("thresholds.density_ratio", 2.0)
	v.SetDefault("thresholds.imbalance", 0.6)

	v.SetDefault("alerts.history_limit", 100)
	v.SetDefault("alerts.cooldown_high", time.Hour)
	v.SetDefault("alerts.cooldown_default", 4*time.Hour)

	v.SetDefault("sinks.webhook.url", "")
	v.SetDefault("sinks.webhook.timeout", 10*time.Second)
	v.SetDefault("sinks.webhook.max_failures", 3)
	v.SetDefault("sinks.telegram.token", "")
	v.SetDefault("sinks.telegram.default_chat", 0)
	v.SetDefault("sinks.telegram.chats", map[string]int64{})
	v.SetDefault("sinks.telegram.rate_per_second", 1)
	v.SetDefault("sinks.telegram.min_severity", "MEDIUM")
	v.SetDefault("sinks.nats.enabled", false)

	v.SetDefault("storage.path", "alerts.db")
	v.SetDefault("storage.retention", 30*24*time.Hour)

	v.SetDefault("schedule.daily_summary", "0 0 18 * * *")
	v.SetDefault("schedule.cleanup", "0 0 3 * * *")

	v.SetDefault("api.addr", ":8080")
}

// Load reads config.yaml from dir (optional), then .env, then LOADWATCH_*
// environment overrides.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the monitors depend on
func (c *Config) Validate() error {
	var problems []string

	for name, d := range map[string]time.Duration{
		"monitor.activity_interval": c.Monitor.ActivityInterval,
		"monitor.sweep_interval":    c.Monitor.SweepInterval,
		"alerts.cooldown_high":      c.Alerts.CooldownHigh,
		"alerts.cooldown_default":   c.Alerts.CooldownDefault,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	for name, f := range map[string]float64{
		"thresholds.stress":    c.Thresholds.Stress,
		"thresholds.workload":  c.Thresholds.Workload,
		"thresholds.burnout":   c.Thresholds.Burnout,
		"thresholds.imbalance": c.Thresholds.Imbalance,
	} {
		if f < 0 || f > 1 {
			problems = append(problems, name+" must be within [0,1]")
		}
	}
	if c.Alerts.HistoryLimit <= 0 {
		problems = append(problems, "alerts.history_limit must be positive")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
