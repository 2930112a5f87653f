package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"MarketRelay/internal/collector"
)

// Forwarder is a named forwarding endpoint template.
type Forwarder struct {
	Name     string `yaml:"name" validate:"required"`
	Template string `yaml:"template" validate:"required"`
}

// Config holds all application configuration.
type Config struct {
	Profile    string      `yaml:"profile" validate:"oneof=hyper steady"`
	Symbols    []string    `yaml:"symbols" validate:"required,min=1,dive,required"`
	Range      string      `yaml:"range"`
	Proxy      string      `yaml:"proxy"`
	Forwarders []Forwarder `yaml:"forwarders" validate:"required,min=1,dive"`
	Upstream   struct {
		ChartBaseURL string `yaml:"chart_base_url" validate:"required,url"`
		QuoteBaseURL string `yaml:"quote_base_url" validate:"required,url"`
		UserAgent    string `yaml:"user_agent"`
	} `yaml:"upstream"`
	Timing struct {
		HistoryTimeout   time.Duration `yaml:"history_timeout" validate:"gt=0"`
		QuoteTimeout     time.Duration `yaml:"quote_timeout" validate:"gt=0"`
		PollInterval     time.Duration `yaml:"poll_interval" validate:"gt=0"`
		BackoffInitial   time.Duration `yaml:"backoff_initial" validate:"gt=0"`
		BackoffMax       time.Duration `yaml:"backoff_max" validate:"gtefield=BackoffInitial"`
		WatchdogInterval time.Duration `yaml:"watchdog_interval" validate:"gte=1s"`
		DeadAfter        time.Duration `yaml:"dead_after" validate:"gt=0"`
		StagnantAfter    time.Duration `yaml:"stagnant_after" validate:"gt=0"`
	} `yaml:"timing"`
	Server struct {
		Addr           string        `yaml:"addr" validate:"required"`
		HistoryTimeout time.Duration `yaml:"history_timeout" validate:"gt=0"`
		StreamBuffer   int           `yaml:"stream_buffer" validate:"gt=0"`
	} `yaml:"server"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id" validate:"required_with=BotToken"`
	} `yaml:"telegram"`
	Schedule struct {
		ReportCron string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" validate:"gte=0"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers     []string `yaml:"brokers" validate:"dive,hostname_port"`
		Topic       string   `yaml:"topic" validate:"required_with=Brokers"`
		EnsureTopic bool     `yaml:"ensure_topic"`
	} `yaml:"kafka"`
	Publisher struct {
		Buffer  int           `yaml:"buffer" validate:"gt=0"`
		Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"publisher"`
}

// Profile is a named preset of forwarders and timings.
type Profile struct {
	Forwarders     []Forwarder
	HistoryTimeout time.Duration
	QuoteTimeout   time.Duration
	PollInterval   time.Duration
	BackoffMax     time.Duration
}

const DefaultProfile = "hyper"

// Profiles are the built-in presets. Explicit config values win.
var Profiles = map[string]Profile{
	"hyper": {
		Forwarders: []Forwarder{
			{Name: "allorigins", Template: "https://api.allorigins.win/raw?url={url}"},
			{Name: "corsproxy", Template: "https://corsproxy.io/?{url}"},
			{Name: "codetabs", Template: "https://api.codetabs.com/v1/proxy?quest={url}"},
		},
		HistoryTimeout: 5 * time.Second,
		QuoteTimeout:   2500 * time.Millisecond,
		PollInterval:   time.Second,
		BackoffMax:     10 * time.Second,
	},
	"steady": {
		Forwarders: []Forwarder{
			{Name: "corsproxy", Template: "https://corsproxy.io/?{url}"},
			{Name: "thingproxy", Template: "https://thingproxy.freeboard.io/fetch/{raw}"},
		},
		HistoryTimeout: 8 * time.Second,
		QuoteTimeout:   4 * time.Second,
		PollInterval:   3 * time.Second,
		BackoffMax:     30 * time.Second,
	},
}

// DotEnvPath is loaded into the environment before overrides, if present.
var DotEnvPath = ".env"

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, profile presets and defaults. A non-empty profile
// replaces the configured one before its presets are filled in.
func Load(path, profile string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvPath, err)
	}
	cfg.applyEnv()
	if profile != "" {
		cfg.Profile = profile
	}
	cfg.applyDefaults()
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Environment variable overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("RELAY_PROFILE"); v != "" {
		c.Profile = v
	}
	if v := os.Getenv("RELAY_SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("RELAY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REPORT_CRON"); v != "" {
		c.Schedule.ReportCron = v
	}
}

func orDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = DefaultProfile
	}
	// an unknown profile is left for Validate to reject
	if p, ok := Profiles[c.Profile]; ok {
		if len(c.Forwarders) == 0 {
			c.Forwarders = append([]Forwarder(nil), p.Forwarders...)
		}
		orDuration(&c.Timing.HistoryTimeout, p.HistoryTimeout)
		orDuration(&c.Timing.QuoteTimeout, p.QuoteTimeout)
		orDuration(&c.Timing.PollInterval, p.PollInterval)
		orDuration(&c.Timing.BackoffMax, p.BackoffMax)
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if c.Range == "" {
		c.Range = collector.DefaultRange
	}
	if c.Upstream.ChartBaseURL == "" {
		c.Upstream.ChartBaseURL = collector.DefaultChartBaseURL
	}
	if c.Upstream.QuoteBaseURL == "" {
		c.Upstream.QuoteBaseURL = collector.DefaultQuoteBaseURL
	}
	orDuration(&c.Timing.BackoffInitial, 500*time.Millisecond)
	orDuration(&c.Timing.WatchdogInterval, time.Second)
	orDuration(&c.Timing.DeadAfter, 10*time.Second)
	orDuration(&c.Timing.StagnantAfter, 4*time.Second)

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	orDuration(&c.Server.HistoryTimeout, 30*time.Second)
	if c.Server.StreamBuffer == 0 {
		c.Server.StreamBuffer = 32
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 16 * * 1-5"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/relay.db"
	}
	orDuration(&c.Redis.TTL, 2*time.Minute)
	if c.Kafka.Topic == "" && len(c.Kafka.Brokers) > 0 {
		c.Kafka.Topic = "quotes"
	}
	if c.Publisher.Buffer == 0 {
		c.Publisher.Buffer = 256
	}
	orDuration(&c.Publisher.Timeout, 5*time.Second)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, f := range c.Forwarders {
		if err := collector.ValidateTemplate(f.Template); err != nil {
			return fmt.Errorf("forwarder %s: %w", f.Name, err)
		}
	}
	if _, err := cronParser.Parse(c.Schedule.ReportCron); err != nil {
		return fmt.Errorf("schedule.report_cron: %w", err)
	}
	return nil
}

// Transforms converts the configured forwarders.
func (c *Config) Transforms() []collector.Transform {
	out := make([]collector.Transform, len(c.Forwarders))
	for i, f := range c.Forwarders {
		out[i] = collector.Transform{Name: f.Name, Template: f.Template}
	}
	return out
}

// TelegramEnabled reports whether chat delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
