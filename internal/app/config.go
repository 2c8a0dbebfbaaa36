package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"securechat/internal/protocol/devicekeys"
	"securechat/internal/protocol/ratchet"
	"securechat/internal/store"
	"securechat/internal/wire"
)

// ConfigFilename is looked up inside the home directory.
const ConfigFilename = "config.yaml"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home           string        `yaml:"-"`                // config directory, e.g. $HOME/.securechat
	User           string        `yaml:"user"`             // our contact id on the relay
	RelayURL       string        `yaml:"relay_url"`        // relay base URL, e.g. http://127.0.0.1:8080
	OneTimePreKeys int           `yaml:"one_time_prekeys"` // pool size at init
	MaxSkip        uint32        `yaml:"max_skip"`
	MaxMessageKeys int           `yaml:"max_message_keys"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	WireFormat     string        `yaml:"wire_format"` // json or cbor
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	DeviceKDF      string        `yaml:"device_kdf"` // scrypt or argon2id
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig(home string) Config {
	return Config{
		Home:           home,
		OneTimePreKeys: devicekeys.MinOneTimePreKeys,
		MaxSkip:        ratchet.DefaultMaxSkip,
		MaxMessageKeys: ratchet.DefaultMaxMessageKeys,
		LogLevel:       "warn",
		LogFormat:      "text",
		WireFormat:     "json",
		HTTPTimeout:    15 * time.Second,
		DeviceKDF:      store.KDFScrypt,
	}
}

// LoadConfig reads home/config.yaml over the defaults. A missing file is not
// an error.
func LoadConfig(home string) (Config, error) {
	cfg := DefaultConfig(home)
	b, err := os.ReadFile(filepath.Join(home, ConfigFilename))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", ConfigFilename, err)
	}
	cfg.Home = home
	return cfg, cfg.Validate()
}

// SaveConfig writes cfg to home/config.yaml unless one already exists.
func SaveConfig(cfg Config) error {
	path := filepath.Join(cfg.Home, ConfigFilename)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate rejects settings the protocol packages cannot honour.
func (c Config) Validate() error {
	if c.OneTimePreKeys < devicekeys.MinOneTimePreKeys {
		return fmt.Errorf("one_time_prekeys must be at least %d", devicekeys.MinOneTimePreKeys)
	}
	if c.MaxSkip == 0 {
		return errors.New("max_skip must be positive")
	}
	if c.MaxMessageKeys < int(c.MaxSkip) {
		return errors.New("max_message_keys must be at least max_skip")
	}
	if _, err := wire.ForFormat(c.WireFormat); err != nil {
		return err
	}
	if _, err := store.KDFParamsFor(c.DeviceKDF); err != nil {
		return err
	}
	if c.HTTPTimeout < 0 {
		return errors.New("http_timeout must not be negative")
	}
	return nil
}
