package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestConfig(t *testing.T) string {
	t.Helper()

	tmpConfigPath := filepath.Join(t.TempDir(), "config.yaml")
	setEnv(t, "ACECTL_CONFIG_PATH", tmpConfigPath)

	t.Cleanup(func() {
		cleanupEnvVars(t)
	})

	return tmpConfigPath
}

// TestConfigIntegration tests the config package with actual file operations
// This test uses a temporary directory to avoid interfering with real user configs
func TestConfigIntegration(t *testing.T) {
	t.Run("LoadDefaultConfig", func(t *testing.T) {
		tmpConfigPath := setupTestConfig(t)
		config := loadConfig(t)

		assert.Equal(t, "tcp", config.Engine.Network)
		assert.Equal(t, "127.0.0.1:62062", config.Engine.Address)
		assert.Equal(t, 10*time.Second, config.Engine.CommandTimeout)
		assert.Equal(t, 64, config.Session.ListenerQueue)
		assert.Equal(t, 5*time.Second, config.Session.ListenerStallTimeout)
		assert.Equal(t, "mpv", config.Player.Type)
		assert.Equal(t, "info", config.Logging.Level)
		assert.NotEmpty(t, config.Logging.FilePath)

		if _, err := os.Stat(tmpConfigPath); os.IsNotExist(err) {
			t.Errorf("Config file was not created at %s", tmpConfigPath)
		}

		// The 'dynamic' configurations must not be saved when the default config is written
		savedConfig, _ := loadFromDisk(tmpConfigPath)
		assert.Empty(t, savedConfig.Logging.FilePath)
	})

	t.Run("SaveAndLoadConfig", func(t *testing.T) {
		tmpConfigPath := setupTestConfig(t)
		customConfig := &Config{
			Engine: EngineConfig{
				Network:        "unix",
				Address:        "/run/ace/engine.sock",
				CommandTimeout: 3 * time.Second,
			},
			Session: SessionConfig{ListenerQueue: 8},
			Billing: BillingConfig{Developer: 1, Affiliate: 2, Zone: 3},
			Player: PlayerConfig{
				Type: "none",
				Path: "/usr/bin/vlc",
				Args: "--fullscreen",
			},
			Logging: LoggingConfig{
				Level:    "error",
				FilePath: "/var/log/acectl.log",
			},
		}

		saveConfig(t, customConfig, tmpConfigPath)
		loadedConfig := loadConfig(t)

		assert.Equal(t, "unix", loadedConfig.Engine.Network)
		assert.Equal(t, "/run/ace/engine.sock", loadedConfig.Engine.Address)
		assert.Equal(t, 3*time.Second, loadedConfig.Engine.CommandTimeout)
		// Unset values in the file keep their defaults
		assert.Equal(t, 20, loadedConfig.Engine.ConnectAttempts)
		assert.Equal(t, 8, loadedConfig.Session.ListenerQueue)
		assert.Equal(t, BillingConfig{Developer: 1, Affiliate: 2, Zone: 3}, loadedConfig.Billing)
		assert.Equal(t, "none", loadedConfig.Player.Type)
		assert.Equal(t, "--fullscreen", loadedConfig.Player.Args)
		assert.Equal(t, "error", loadedConfig.Logging.Level)
		assert.Equal(t, "/var/log/acectl.log", loadedConfig.Logging.FilePath)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		tmpConfigPath := setupTestConfig(t)
		require.NoError(t, os.WriteFile(tmpConfigPath, []byte("invalid: yaml: ["), 0600))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("InvalidNetwork", func(t *testing.T) {
		setupTestConfig(t)
		setEnv(t, "ACECTL_CONFIG_ENGINE_NETWORK", "carrier-pigeon")

		_, err := Load()
		assert.ErrorContains(t, err, "engine.network")
	})

	t.Run("EnvironmentVariableOverrides", func(t *testing.T) {
		setupTestConfig(t)

		setEnv(t, "ACECTL_CONFIG_ENGINE_ADDRESS", "10.0.0.2:62062")
		setEnv(t, "ACECTL_CONFIG_ENGINE_COMMAND_TIMEOUT", "2500ms")
		setEnv(t, "ACECTL_CONFIG_SESSION_LISTENER_QUEUE", "16")
		setEnv(t, "ACECTL_CONFIG_SESSION_LISTENER_STALL_TIMEOUT", "750ms")
		setEnv(t, "ACECTL_CONFIG_BILLING_ZONE", "7")
		setEnv(t, "ACECTL_CONFIG_PLAYER_TYPE", "none")
		setEnv(t, "ACECTL_CONFIG_METRICS_LISTEN_ADDR", ":9100")
		setEnv(t, "ACECTL_CONFIG_LOGGING_LEVEL", "warn")
		setEnv(t, "ACECTL_CONFIG_LOGGING_FILE_PATH", "/acectl.log")

		config := loadConfig(t)

		assert.Equal(t, "10.0.0.2:62062", config.Engine.Address)
		assert.Equal(t, 2500*time.Millisecond, config.Engine.CommandTimeout)
		assert.Equal(t, 16, config.Session.ListenerQueue)
		assert.Equal(t, 750*time.Millisecond, config.Session.ListenerStallTimeout)
		assert.Equal(t, 7, config.Billing.Zone)
		assert.Equal(t, "none", config.Player.Type)
		assert.Equal(t, ":9100", config.Metrics.ListenAddr)
		assert.Equal(t, "warn", config.Logging.Level)
		assert.Equal(t, "/acectl.log", config.Logging.FilePath)

		// Env overrides must not have been persisted to disk
		unsetEnv(t, "ACECTL_CONFIG_LOGGING_LEVEL")
		config = loadConfig(t)
		assert.Equal(t, "info", config.Logging.Level)
	})

	t.Run("MalformedEnvironmentVariable", func(t *testing.T) {
		setupTestConfig(t)
		setEnv(t, "ACECTL_CONFIG_ENGINE_COMMAND_TIMEOUT", "soon")

		_, err := Load()
		assert.ErrorContains(t, err, "ACECTL_CONFIG_ENGINE_COMMAND_TIMEOUT")
	})

	t.Run("ModifyConfig", func(t *testing.T) {
		setupTestConfig(t)
		config := loadConfig(t)
		assert.Equal(t, "mpv", config.Player.Type)

		err := UpdateConfig(func(config *Config) {
			config.Player.Type = "none"
		})
		require.NoError(t, err)

		config = loadConfig(t)
		assert.Equal(t, "none", config.Player.Type)
	})

	t.Run("RecentContentRoundTrip", func(t *testing.T) {
		setupTestConfig(t)
		assert.Empty(t, loadConfig(t).Console.Recent)

		err := UpdateConfig(func(config *Config) {
			config.Console.Recent = []string{"acestream://b", "acestream://a"}
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"acestream://b", "acestream://a"}, loadConfig(t).Console.Recent)
	})
}

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("Failed to set environment variable: %v", err)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("Failed to unset environment variable: %v", err)
	}
}

func saveConfig(t *testing.T, config *Config, configPath string) {
	t.Helper()
	if err := save(config, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
}

func loadConfig(t *testing.T) *Config {
	t.Helper()
	config, err := Load()
	if err != nil {
		t.Fatalf("Loading of config failed: %v", err)
	}
	return config
}

// Removes any env vars with the ACECTL_CONFIG prefix to ensure test isolation
func cleanupEnvVars(t *testing.T) {
	t.Helper()

	for _, envVar := range os.Environ() {
		if key := strings.Split(envVar, "=")[0]; strings.HasPrefix(key, "ACECTL_CONFIG") {
			unsetEnv(t, key)
		}
	}
}
