package cronbridge

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the daemon's process-wide configuration. It is populated
// once at startup by LoadConfig and never mutated afterwards; the
// daemon wiring reads its settings and passes the individual values
// to each component's constructor.
type Config struct {
	FullRefreshIntervalSecs  uint32 `toml:"full_refresh_internal_secs"`
	SchedulerPollingInterval uint32 `toml:"scheduler_polling_interval"`
	TimeZoneString           string `toml:"time_zone_string"`
	LogLevel                 string `toml:"log_level"`

	PostgresDSN string `toml:"postgres_dsn"`

	RedisHost string `toml:"redis_host"`
	RedisPort uint16 `toml:"redis_port"`
	RedisDB   int    `toml:"redis_db"`

	SocketPath           string `toml:"socket_path"`
	SocketFileGroupOwner string `toml:"socket_file_group_owner"`

	WebserverIP             string `toml:"webserver_ip"`
	WebserverPort           uint16 `toml:"webserver_port"`
	WebserverToken          string `toml:"webserver_token"`
	PayloadFetchTimeoutSecs uint32 `toml:"payload_fetch_timeout_secs"`

	MetricsListenAddr string `toml:"metrics_listen_addr"`

	// Email-related keys are accepted for forward TOML compatibility
	// with the notification collaborator, which lives outside this
	// daemon's scope, and are otherwise unused here.
	EmailAddressFrom string   `toml:"email_address_from"`
	EmailHostName    string   `toml:"email_host_name"`
	EmailHostPort    int      `toml:"email_host_port"`
	EmailAddresses   []string `toml:"email_addresses"`
}

// defaultConfig returns the documented defaults from spec §6, applied
// before a TOML file is layered on top.
func defaultConfig() Config {
	return Config{
		FullRefreshIntervalSecs:  900,
		SchedulerPollingInterval: 60,
		TimeZoneString:           "UTC",
		LogLevel:                 "info",
		SocketPath:               "/tmp/cronbridge.sock",
		PayloadFetchTimeoutSecs:  10,
		RedisPort:                6379,
	}
}

// LoadConfig reads and validates the TOML configuration file at path,
// returning an immutable Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cronbridge: reading config %s: %w", path, err)
	}
	cfg := defaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cronbridge: parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent,
// e.g. that the logging time zone resolves.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.TimeZoneString); err != nil {
		return fmt.Errorf("cronbridge: time_zone_string %q: %w", c.TimeZoneString, err)
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("cronbridge: postgres_dsn is required")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("cronbridge: socket_path is required")
	}
	return nil
}

// PayloadFetchTimeout returns the configured HTTP timeout for C3.
func (c Config) PayloadFetchTimeout() time.Duration {
	return time.Duration(c.PayloadFetchTimeoutSecs) * time.Second
}

// FullRefreshInterval returns the configured period for C8.
func (c Config) FullRefreshInterval() time.Duration {
	return time.Duration(c.FullRefreshIntervalSecs) * time.Second
}

// SchedulerPollInterval returns the configured poll period for C9.
func (c Config) SchedulerPollInterval() time.Duration {
	return time.Duration(c.SchedulerPollingInterval) * time.Second
}
