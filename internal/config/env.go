package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type envVar struct {
	name  string
	desc  string
	apply func(*Config, string) error
}

var supportedEnvVars = []envVar{
	{
		// Only here for documentation purposes.  Does not override any values in the config as this environment variable
		// points to where the config should be loaded.  It is handled prior to loading the config.
		name:  "ACECTL_CONFIG_PATH",
		desc:  "Sets the path to the config file.  Default: OS-specific config directory",
		apply: func(c *Config, s string) error { return nil },
	},
	{
		name:  "ACECTL_CONFIG_ENGINE_NETWORK",
		desc:  "Sets how to reach the engine.  One of tcp, unix, npipe.  Default: tcp",
		apply: func(c *Config, s string) error { c.Engine.Network = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_ENGINE_ADDRESS",
		desc:  "Sets the engine address (host:port, socket path or pipe name).  Default: 127.0.0.1:62062",
		apply: func(c *Config, s string) error { c.Engine.Address = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_ENGINE_COMMAND_TIMEOUT",
		desc:  "Sets the bound for synchronous engine commands, e.g. 10s.  Default: 10s",
		apply: func(c *Config, s string) error { return setDuration(&c.Engine.CommandTimeout, s) },
	},
	{
		name:  "ACECTL_CONFIG_SESSION_LISTENER_QUEUE",
		desc:  "Sets the per-listener event queue size.  Default: 64",
		apply: func(c *Config, s string) error { return setInt(&c.Session.ListenerQueue, s) },
	},
	{
		name:  "ACECTL_CONFIG_SESSION_LISTENER_STALL_TIMEOUT",
		desc:  "Sets how long a listener may block on one event before dropped events count against it.  Default: 5s",
		apply: func(c *Config, s string) error { return setDuration(&c.Session.ListenerStallTimeout, s) },
	},
	{
		name:  "ACECTL_CONFIG_BILLING_DEVELOPER",
		desc:  "Sets the developer id sent with every load.  Default: 0",
		apply: func(c *Config, s string) error { return setInt(&c.Billing.Developer, s) },
	},
	{
		name:  "ACECTL_CONFIG_BILLING_AFFILIATE",
		desc:  "Sets the affiliate id sent with every load.  Default: 0",
		apply: func(c *Config, s string) error { return setInt(&c.Billing.Affiliate, s) },
	},
	{
		name:  "ACECTL_CONFIG_BILLING_ZONE",
		desc:  "Sets the zone id sent with every load.  Default: 0",
		apply: func(c *Config, s string) error { return setInt(&c.Billing.Zone, s) },
	},
	{
		name:  "ACECTL_CONFIG_PLAYER_TYPE",
		desc:  "Sets the host player type.  One of mpv, none.  Default: mpv",
		apply: func(c *Config, s string) error { c.Player.Type = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_PLAYER_PATH",
		desc:  "Sets the path to the host player binary.  Default: mpv",
		apply: func(c *Config, s string) error { c.Player.Path = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_PLAYER_ARGS",
		desc:  "Sets extra host player arguments.  Default: None",
		apply: func(c *Config, s string) error { c.Player.Args = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_METRICS_LISTEN_ADDR",
		desc:  "Serves prometheus metrics on this address when set.  Default: disabled",
		apply: func(c *Config, s string) error { c.Metrics.ListenAddr = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_LOGGING_LEVEL",
		desc:  "Sets the logging level.  One of: trace, debug, info, warn, error.  Default: info",
		apply: func(c *Config, s string) error { c.Logging.Level = s; return nil },
	},
	{
		name:  "ACECTL_CONFIG_LOGGING_FILE_PATH",
		desc:  "Sets the logging file path.  Default: OS-specific",
		apply: func(c *Config, s string) error { c.Logging.FilePath = s; return nil },
	},
}

func applyEnvVarOverrides(c *Config) error {
	for _, envVar := range supportedEnvVars {
		if value := os.Getenv(envVar.name); value != "" {
			if err := envVar.apply(c, value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar.name, err)
			}
		}
	}
	return nil
}

func setInt(dst *int, s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
