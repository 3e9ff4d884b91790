// Package config holds the per-profile config.toml and the small global
// file that names the default profile.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mzahid/dialdesk/internal/timefmt"
)

// Global represents the top-level ~/.dialdesk/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Config represents a profile's config.toml.
type Config struct {
	Twilio  Twilio  `toml:"twilio"`
	Display Display `toml:"display"`
	Sync    Sync    `toml:"sync"`
	Server  Server  `toml:"server"`
	Stream  Stream  `toml:"stream"`
}

// Twilio holds the provider account credentials.
type Twilio struct {
	AccountSID  string `toml:"account_sid"`
	AuthToken   string `toml:"auth_token"`
	PhoneNumber string `toml:"phone_number"`
}

// Display controls how timestamps are rendered.
type Display struct {
	Timezone string `toml:"timezone"`
}

// Sync controls the polling loop.
type Sync struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// Server controls the local HTTP API.
type Server struct {
	ListenAddr string `toml:"listen_addr"`
}

// Stream controls the push event stream.
type Stream struct {
	URL string `toml:"url"`
}

// Default returns a config with every non-credential field filled in.
func Default() *Config {
	return &Config{
		Display: Display{Timezone: timefmt.DefaultTimezone},
		Sync:    Sync{PollIntervalSeconds: 5},
		Server:  Server{ListenAddr: "127.0.0.1:8385"},
	}
}

// Load reads a profile config from the given path and applies defaults
// for anything left unset. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
// The file carries credentials, so it is written 0600.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadGlobal reads the top-level config. Missing file is not an error; it
// just means every default applies.
func LoadGlobal(path string) (*Global, error) {
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		if os.IsNotExist(err) {
			return &Global{}, nil
		}
		return nil, err
	}
	return &g, nil
}

// SaveGlobal writes the top-level config.
func SaveGlobal(path string, g *Global) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(g)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv overlays environment variables onto cfg. Env wins over file so
// credentials can stay out of the profile entirely.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		c.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		c.Twilio.PhoneNumber = v
	}
	if v := os.Getenv("DIALDESK_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("DIALDESK_STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv("DIALDESK_TIMEZONE"); v != "" {
		c.Display.Timezone = v
	}
}

// Validate reports whether the config is complete enough to reach the
// provider.
func (c *Config) Validate() error {
	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		return fmt.Errorf("twilio credentials not configured")
	}
	if c.Twilio.PhoneNumber == "" {
		return fmt.Errorf("twilio phone number not configured")
	}
	return nil
}

// PollInterval returns the sync interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if c.Display.Timezone == "" {
		c.Display.Timezone = timefmt.DefaultTimezone
	}
	if c.Sync.PollIntervalSeconds <= 0 {
		c.Sync.PollIntervalSeconds = 5
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8385"
	}
}
