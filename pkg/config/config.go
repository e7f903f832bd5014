// Kunhua Huang 2026

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ecstasoy/handshake/pkg/transport"
)

// EnvAddress overrides both server.address and client.address when set.
const EnvAddress = "HANDSHAKE_ADDRESS"

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Address        string   `yaml:"address"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	MaxMessageSize int      `yaml:"max_message_size"`
	Once           bool     `yaml:"once"`
	MetricsAddress string   `yaml:"metrics_address"`
	RateLimit      float64  `yaml:"rate_limit"` // requests per second, 0 disables
	Burst          int      `yaml:"burst"`
}

type ClientConfig struct {
	Address        string   `yaml:"address"`
	Mode           string   `yaml:"mode"` // request-reply/fire-and-forget
	EmptyPayload   bool     `yaml:"empty_payload"`
	DialTimeout    Duration `yaml:"dial_timeout"`
	Timeout        Duration `yaml:"timeout"`
	MaxMessageSize int      `yaml:"max_message_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // text/json
}

type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "tcp://*:5555",
			MaxMessageSize: transport.DefaultMaxMessageSize,
		},
		Client: ClientConfig{
			Address:        "tcp://localhost:5555",
			Mode:           "request-reply",
			DialTimeout:    Duration{5 * time.Second},
			MaxMessageSize: transport.DefaultMaxMessageSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path on top of Default. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if addr := strings.TrimSpace(os.Getenv(EnvAddress)); addr != "" {
		c.Server.Address = addr
		c.Client.Address = addr
	}
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := transport.ParseEndpoint(c.Server.Address); err != nil {
		errs = append(errs, fmt.Errorf("server.address: %w", err))
	}
	if _, err := transport.ParseEndpoint(c.Client.Address); err != nil {
		errs = append(errs, fmt.Errorf("client.address: %w", err))
	}

	switch strings.ToLower(c.Client.Mode) {
	case "", "request-reply", "fire-and-forget":
	default:
		errs = append(errs, fmt.Errorf("client.mode: unknown mode %q", c.Client.Mode))
	}

	if c.Server.MaxMessageSize < 0 || c.Client.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max_message_size must not be negative"))
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.burst must not be negative"))
	}
	if c.Server.ReadTimeout.Duration < 0 || c.Server.WriteTimeout.Duration < 0 ||
		c.Client.DialTimeout.Duration < 0 || c.Client.Timeout.Duration < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
