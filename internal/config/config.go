package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const dirPerm = 0755

// Config struct for environment variables.
type Config struct {
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"downloads"`

	SolverHost    string        `envconfig:"SOLVER_HOST" default:"localhost"`
	SolverPort    int           `envconfig:"SOLVER_PORT" default:"8191"`
	SolverMaxWait time.Duration `envconfig:"SOLVER_MAX_WAIT" default:"60s"`
	ProxyURL      string        `envconfig:"PROXY_URL"`
	RetryCount    int           `envconfig:"RETRY_COUNT" default:"3"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"5s"`

	// SessionVariant selects the browser profile: "stealth" or "ordinary".
	SessionVariant string `envconfig:"SESSION_VARIANT" default:"ordinary"`

	// Accepted for sites that gate downloads behind an account. Not used by
	// the acquisition pipeline itself.
	SiteUsername string `envconfig:"SITE_USERNAME"`
	SitePassword string `envconfig:"SITE_PASSWORD"`

	PageLoadTimeout time.Duration `envconfig:"PAGE_LOAD_TIMEOUT" default:"30s"`
	SettleDelay     time.Duration `envconfig:"SETTLE_DELAY" default:"5s"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`

	MaxParallel       int           `envconfig:"MAX_PARALLEL" default:"2"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"24h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled bool `split_words:"true" default:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8193"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// SolverURL builds the challenge solver endpoint from host and port.
func (c *Config) SolverURL() string {
	return fmt.Sprintf("http://%s:%d/v1", c.SolverHost, c.SolverPort)
}

// EnsureDownloadDir creates the download directory if it does not exist yet.
// The directory must be present before any navigation begins, otherwise the
// browser's download subsystem silently writes elsewhere.
func (c *Config) EnsureDownloadDir() error {
	if err := os.MkdirAll(c.DownloadDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
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
