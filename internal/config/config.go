package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Engine  EngineConfig  `yaml:"engine,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Billing BillingConfig `yaml:"billing,omitempty"`
	Player  PlayerConfig  `yaml:"player,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Console ConsoleConfig `yaml:"console,omitempty"`
}

// EngineConfig describes how to reach the streaming engine
type EngineConfig struct {
	Network           string        `yaml:"network,omitempty"` // "tcp", "unix", "npipe"
	Address           string        `yaml:"address,omitempty"`
	CommandTimeout    time.Duration `yaml:"command_timeout,omitempty"`
	ConnectAttempts   int           `yaml:"connect_attempts,omitempty"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay,omitempty"`
	OutboundQueue     int           `yaml:"outbound_queue,omitempty"`
}

// SessionConfig tunes event delivery for each session
type SessionConfig struct {
	ListenerQueue        int           `yaml:"listener_queue,omitempty"`
	ListenerFailureLimit int           `yaml:"listener_failure_limit,omitempty"`
	ListenerStallTimeout time.Duration `yaml:"listener_stall_timeout,omitempty"` // A listener stuck this long counts as failing
}

// BillingConfig is the attribution triple attached to every load
type BillingConfig struct {
	Developer int `yaml:"developer,omitempty"`
	Affiliate int `yaml:"affiliate,omitempty"`
	Zone      int `yaml:"zone,omitempty"`
}

// PlayerConfig contains host media player settings
type PlayerConfig struct {
	Type string `yaml:"type,omitempty"` // "mpv", "none"
	Path string `yaml:"path,omitempty"`
	Args string `yaml:"args,omitempty"`
}

// MetricsConfig controls the prometheus endpoint.  Disabled when ListenAddr is empty.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// ConsoleConfig holds state the terminal console keeps between runs
type ConsoleConfig struct {
	// Recent is the loaded content, most recent first
	Recent []string `yaml:"recent,omitempty"`
}

// LoggingConfig contains log related settings
type LoggingConfig struct {
	Level    string `yaml:"level,omitempty"`
	FilePath string `yaml:"file_path,omitempty"`
}

// Load builds a configuration struct from multiple sources using these steps:
// 1. Create a base config with default values
// 2. If no config file exists on disk, save the default config to that location
// 3. Apply 'dynamic' properties.  Dynamic properties are those that are determined at runtime, for example log file location which is different per OS.
// 4. Load & merge the config file, overwriting any defaults with user-specified values
// 5. Apply environment variable overrides
func Load() (*Config, error) {
	cfg := Default()

	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("unable to determine config file path: %w", err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// If there is an error saving the default config, then still let the application startup using the defaults.
		_ = save(cfg, configPath)
	}

	applyDynamicDefaults(cfg)

	fileConfig, err := loadFromDisk(configPath)
	if err != nil {
		return nil, err
	}
	if err = mergo.Merge(cfg, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("error merging config loaded from disk: %w", err)
	}

	if err = applyEnvVarOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the values that would otherwise fail much later at dial or session time.
func (c *Config) Validate() error {
	switch c.Engine.Network {
	case "tcp", "unix", "npipe":
	default:
		return fmt.Errorf("engine.network must be one of tcp, unix, npipe: got %q", c.Engine.Network)
	}
	if c.Engine.Address == "" {
		return errors.New("engine.address must be set")
	}
	if c.Engine.CommandTimeout <= 0 {
		return fmt.Errorf("engine.command_timeout must be positive: got %s", c.Engine.CommandTimeout)
	}
	if c.Session.ListenerQueue <= 0 {
		return fmt.Errorf("session.listener_queue must be positive: got %d", c.Session.ListenerQueue)
	}
	return nil
}

// applyDynamicDefaults sets runtime-determined default values for any properties that haven't been explicitly configured.
func applyDynamicDefaults(cfg *Config) {
	cfg.Logging.FilePath = defaultLogFilePath()
}

// loadFromDisk loads the YAML config from disk and returns the unmarshalled Config
func loadFromDisk(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	return cfg, nil
}

func save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// UpdateConfig reads the existing config, applies the update function, and saves it back to disk
func UpdateConfig(updateFn func(*Config)) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("unable to determine config file path: %w", err)
	}

	cfg, err := loadFromDisk(configPath)
	if err != nil {
		return fmt.Errorf("error loading config file from disk: %w", err)
	}

	updateFn(cfg)

	return save(cfg, configPath)
}

// getConfigPath returns the path to the config file.  Uses the environment variable override if present, else tries
// to use OS config location defaults.
func getConfigPath() (string, error) {
	if configPath := os.Getenv("ACECTL_CONFIG_PATH"); configPath != "" {
		return configPath, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "acectl", "config.yaml"), nil
}

// Default creates a config with all static default values
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Network:           "tcp",
			Address:           "127.0.0.1:62062",
			CommandTimeout:    10 * time.Second,
			ConnectAttempts:   20,
			ConnectRetryDelay: 500 * time.Millisecond,
			OutboundQueue:     32,
		},
		Session: SessionConfig{
			ListenerQueue:        64,
			ListenerFailureLimit: 5,
			ListenerStallTimeout: 5 * time.Second,
		},
		Player: PlayerConfig{
			Type: "mpv",
			Path: "mpv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultLogFilePath returns the path to the log file.  Tries to use expected OS location defaults.
func defaultLogFilePath() string {
	var basePath string
	homedir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "acectl.log")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			basePath = filepath.Join(appData, "acectl", "logs")
		} else {
			basePath = filepath.Join(homedir, "AppData", "local", "acectl", "logs")
		}
	case "darwin":
		basePath = filepath.Join(homedir, "Library", "Logs", "acectl")
	default:
		if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
			basePath = filepath.Join(xdgState, "acectl", "logs")
		} else {
			basePath = filepath.Join(homedir, ".local", "state", "acectl", "logs")
		}
	}

	if err := os.MkdirAll(basePath, 0700); err != nil {
		return filepath.Join(".", "acectl.log")
	}
	return filepath.Join(basePath, "acectl.log")
}
