package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demograb/demograb/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "downloads", cfg.DownloadDir)
	assert.Equal(t, "localhost", cfg.SolverHost)
	assert.Equal(t, 8191, cfg.SolverPort)
	assert.Equal(t, 3, cfg.RetryCount)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, "ordinary", cfg.SessionVariant)
	assert.Equal(t, 10*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, "0.0.0.0:8193", cfg.Web.BindAddress)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SOLVER_HOST", "flaresolverr.internal")
	t.Setenv("SOLVER_PORT", "9191")
	t.Setenv("SESSION_VARIANT", "stealth")
	t.Setenv("DOWNLOAD_TIMEOUT", "3m")
	t.Setenv("TELEMETRY_ENABLED", "false")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "flaresolverr.internal", cfg.SolverHost)
	assert.Equal(t, 9191, cfg.SolverPort)
	assert.Equal(t, "stealth", cfg.SessionVariant)
	assert.Equal(t, 3*time.Minute, cfg.DownloadTimeout)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestSolverURL(t *testing.T) {
	cfg := &config.Config{SolverHost: "solver.local", SolverPort: 8191}
	assert.Equal(t, "http://solver.local:8191/v1", cfg.SolverURL())
}

func TestEnsureDownloadDir(t *testing.T) {
	cfg := &config.Config{DownloadDir: filepath.Join(t.TempDir(), "nested", "downloads")}

	require.NoError(t, cfg.EnsureDownloadDir())

	info, err := os.Stat(cfg.DownloadDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &config.Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}
