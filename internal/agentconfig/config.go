// Package agentconfig loads the clockwatch desktop agent configuration.
package agentconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"tn-work/internal/idle"

	"github.com/pelletier/go-toml/v2"
)

// Duration reads TOML strings such as "30s" or "5h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if v < 0 {
		return fmt.Errorf("duration %q must not be negative", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Thresholds struct {
	FirstIdle           Duration `toml:"first_idle"`
	PrivilegedFirstIdle Duration `toml:"privileged_first_idle"`
	RepeatIdle          Duration `toml:"repeat_idle"`
	Countdown           Duration `toml:"countdown"`
}

type Config struct {
	ServerURL     string     `toml:"server_url"`
	Token         string     `toml:"token"`
	Tick          Duration   `toml:"tick"`
	BeaconTimeout Duration   `toml:"beacon_timeout"`
	Notifications *bool      `toml:"notifications"`
	Thresholds    Thresholds `toml:"thresholds"`
}

const (
	defaultTick          = 30 * time.Second
	defaultBeaconTimeout = 3 * time.Second

	// TokenEnv overrides the token from the file.
	TokenEnv = "CLOCKWATCH_TOKEN"
)

func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "clockwatch", "config.toml")
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read agent config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Token = tok
	}
	cfg.SetDefault()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) SetDefault() {
	if c.Tick.Duration == 0 {
		c.Tick.Duration = defaultTick
	}
	if c.BeaconTimeout.Duration == 0 {
		c.BeaconTimeout.Duration = defaultBeaconTimeout
	}
	if c.Notifications == nil {
		enabled := true
		c.Notifications = &enabled
	}
}

func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q is not an http(s) url", c.ServerURL)
	}
	if c.Token == "" {
		return fmt.Errorf("token is required (or set %s)", TokenEnv)
	}
	return nil
}

func (c Config) NotificationsEnabled() bool {
	return c.Notifications == nil || *c.Notifications
}

// IdleThresholds applies the [thresholds] overrides to the standard values.
func (c Config) IdleThresholds() idle.Thresholds {
	th := idle.DefaultThresholds()
	if v := c.Thresholds.FirstIdle.Duration; v > 0 {
		th.FirstIdle = v
	}
	if v := c.Thresholds.PrivilegedFirstIdle.Duration; v > 0 {
		th.PrivilegedFirstIdle = v
	}
	if v := c.Thresholds.RepeatIdle.Duration; v > 0 {
		th.RepeatIdle = v
	}
	if v := c.Thresholds.Countdown.Duration; v > 0 {
		th.Countdown = v
	}
	return th
}
