package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the coordinator listens on.
	DefaultAddr = ":43180"
	// DefaultSQLitePath is where the durable match database lives.
	DefaultSQLitePath = "coordinator.db"

	// DefaultHeartbeatInterval controls how often connections are probed for liveness.
	DefaultHeartbeatInterval = 15 * time.Second
	// DefaultDisconnectGrace is the reconnect window before a departed user forfeits.
	DefaultDisconnectGrace = 15 * time.Second
	// DefaultInviteTTL bounds how long a lobby invite stays pending.
	DefaultInviteTTL = 30 * time.Second
	// DefaultPendingResultTTL bounds how long a submitted score may await its counterpart.
	DefaultPendingResultTTL = 30 * time.Second

	// DefaultRateBurst is the per-connection token bucket capacity.
	DefaultRateBurst = 12
	// DefaultRateRefillPerSecond is the per-connection token refill rate.
	DefaultRateRefillPerSecond = 6

	// DefaultMaxScore bounds a single reported game score.
	DefaultMaxScore = 50
	// DefaultMaxChatLength bounds a relayed chat message in runes.
	DefaultMaxChatLength = 1000
	// DefaultSendQueueSize bounds buffered outbound frames per connection.
	DefaultSendQueueSize = 256

	// DefaultLogLevel controls verbosity for coordinator logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "coordinator.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the session coordinator.
type Config struct {
	Address        string
	AllowedOrigins []string
	SQLitePath     string
	AuthSecret     string

	HeartbeatInterval time.Duration
	DisconnectGrace   time.Duration
	InviteTTL         time.Duration
	PendingResultTTL  time.Duration

	RateBurst           int
	RateRefillPerSecond float64

	MaxScore      int
	MaxChatLength int
	SendQueueSize int

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Load reads the coordinator configuration from environment variables, applying
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:             getString("COORD_ADDR", DefaultAddr),
		AllowedOrigins:      parseList(os.Getenv("COORD_ALLOWED_ORIGINS")),
		SQLitePath:          getString("COORD_SQLITE_PATH", DefaultSQLitePath),
		AuthSecret:          strings.TrimSpace(os.Getenv("COORD_AUTH_SECRET")),
		HeartbeatInterval:   DefaultHeartbeatInterval,
		DisconnectGrace:     DefaultDisconnectGrace,
		InviteTTL:           DefaultInviteTTL,
		PendingResultTTL:    DefaultPendingResultTTL,
		RateBurst:           DefaultRateBurst,
		RateRefillPerSecond: DefaultRateRefillPerSecond,
		MaxScore:            DefaultMaxScore,
		MaxChatLength:       DefaultMaxChatLength,
		SendQueueSize:       DefaultSendQueueSize,
		Logging: LoggingConfig{
			Level:      getString("COORD_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("COORD_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			Compress:   DefaultLogCompress,
		},
	}

	//1.- Apply duration overrides with per-variable validation errors.
	for _, entry := range []struct {
		name   string
		target *time.Duration
	}{
		{"COORD_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"COORD_DISCONNECT_GRACE", &cfg.DisconnectGrace},
		{"COORD_INVITE_TTL", &cfg.InviteTTL},
		{"COORD_PENDING_RESULT_TTL", &cfg.PendingResultTTL},
	} {
		if err := overrideDuration(entry.name, entry.target); err != nil {
			return nil, err
		}
	}

	//2.- Apply integer overrides for the rate limiter and payload bounds.
	for _, entry := range []struct {
		name   string
		target *int
	}{
		{"COORD_RATE_BURST", &cfg.RateBurst},
		{"COORD_MAX_SCORE", &cfg.MaxScore},
		{"COORD_MAX_CHAT_LENGTH", &cfg.MaxChatLength},
		{"COORD_SEND_QUEUE_SIZE", &cfg.SendQueueSize},
		{"COORD_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB},
		{"COORD_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups},
	} {
		if err := overrideInt(entry.name, entry.target); err != nil {
			return nil, err
		}
	}
	if raw := strings.TrimSpace(os.Getenv("COORD_RATE_REFILL_PER_SECOND")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("COORD_RATE_REFILL_PER_SECOND must be a positive number, got %q", raw)
		}
		cfg.RateRefillPerSecond = value
	}

	//3.- Validate the resolved values so the coordinator never starts half-configured.
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("COORD_ADDR must not be empty")
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("COORD_SQLITE_PATH must not be empty")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("COORD_HEARTBEAT_INTERVAL must be positive")
	}
	if c.DisconnectGrace <= 0 {
		return fmt.Errorf("COORD_DISCONNECT_GRACE must be positive")
	}
	if c.InviteTTL <= 0 {
		return fmt.Errorf("COORD_INVITE_TTL must be positive")
	}
	if c.PendingResultTTL <= 0 {
		return fmt.Errorf("COORD_PENDING_RESULT_TTL must be positive")
	}
	if c.RateBurst <= 0 {
		return fmt.Errorf("COORD_RATE_BURST must be positive")
	}
	if c.MaxScore <= 0 {
		return fmt.Errorf("COORD_MAX_SCORE must be positive")
	}
	if c.MaxChatLength <= 0 {
		return fmt.Errorf("COORD_MAX_CHAT_LENGTH must be positive")
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("COORD_SEND_QUEUE_SIZE must be positive")
	}
	return nil
}

func getString(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func overrideDuration(name string, target *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fmt.Errorf("%s must be a positive duration, got %q", name, raw)
	}
	*target = value
	return nil
}

func overrideInt(name string, target *int) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	*target = value
	return nil
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
