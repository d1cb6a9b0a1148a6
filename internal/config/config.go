package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. YTM_DEST.
const EnvPrefix = "YTM"

// Config struct for environment variables. Command line flags override it.
type Config struct {
	Dest              string        `envconfig:"DEST" default:"."`
	StreamDir         string        `envconfig:"STREAM_DIR"`
	IndexPath         string        `envconfig:"INDEX"`
	Workers           int           `envconfig:"WORKERS" default:"0"`
	NoMetadata        bool          `envconfig:"NO_METADATA" default:"false"`
	IVPrefix          int           `envconfig:"IV_PREFIX" default:"0"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	MetricsAddr       string        `envconfig:"METRICS_ADDR"`
	OTLPEndpoint      string        `envconfig:"OTLP_ENDPOINT"`
	OTLPPushInterval  time.Duration `envconfig:"OTLP_PUSH_INTERVAL" default:"15s"`
	FFmpegPath        string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	PartialMaxAge     time.Duration `envconfig:"PARTIAL_MAX_AGE" default:"1h"`

	Web struct {
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that cannot be expressed as envconfig tags.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}

	if c.IVPrefix < 0 || c.IVPrefix > 16 {
		return fmt.Errorf("iv prefix must be between 0 and 16 bytes, got %d", c.IVPrefix)
	}

	if c.StreamDir == "" && c.IndexPath == "" {
		return errors.New("either a stream directory or an index path is required")
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DecodeKey decodes a base64 AES key. Standard and URL alphabets are
// accepted, with or without padding.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return nil, errors.New("key is empty")
	}

	var (
		key []byte
		err error
	)

	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err = enc.DecodeString(s); err == nil {
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}

	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("key must be 16, 24 or 32 bytes, got %d", len(key))
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

// ParseSince turns a --since value into a point in time relative to now.
// Accepted forms: a duration ("90m", "24h", "3d"), "today", "yesterday",
// RFC 3339, "2006-01-02" and "Jan 2". Dates without a zone are local.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "":
		return time.Time{}, nil
	case "now":
		return now, nil
	case "today":
		return startOfDay(now), nil
	case "yesterday":
		return startOfDay(now).AddDate(0, 0, -1), nil
	}

	if d, err := parseDuration(s); err == nil {
		return now.Add(-d), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	for _, layout := range []string{"Jan 2", "January 2"} {
		t, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			continue
		}

		t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
		if t.After(now) {
			t = t.AddDate(-1, 0, 0)
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid since value %q, try '24h', 'yesterday' or 'Jan 2'", s)
}

// parseDuration extends time.ParseDuration with a day unit.
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}

		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}

	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}

	return d, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
