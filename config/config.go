package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/pkg/retry"
)

// Duration wraps time.Duration with YAML support for values like "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete host configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	NATS     NATSConfig     `yaml:"nats,omitempty"`
}

// PipelineConfig describes one pipeline: its plugin instances and the host
// policies driving their pumps.
type PipelineConfig struct {
	Name       string           `yaml:"name"`
	Inputs     []InstanceConfig `yaml:"inputs"`
	Processors []InstanceConfig `yaml:"processors,omitempty"`
	Outputs    []InstanceConfig `yaml:"outputs"`

	// QueueCapacity bounds every inter-stage queue.
	QueueCapacity int `yaml:"queue_capacity,omitempty"`

	// Connect is the retry budget for generic connect failures. A plugin
	// that keeps failing past this budget closes its connection fatally.
	Connect ConnectConfig `yaml:"connect,omitempty"`

	// CallTimeout bounds each Connect/Read/Write/Process call.
	CallTimeout Duration `yaml:"call_timeout,omitempty"`

	// TimeoutAsDisconnect classifies a call deadline expiry as a lost
	// connection instead of a fatal call error.
	TimeoutAsDisconnect bool `yaml:"timeout_as_disconnect,omitempty"`
}

// InstanceConfig describes one plugin instance
type InstanceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`

	// ReadRate paces an input's Read calls in reads per second.
	// Zero means unpaced. Ignored for processors and outputs.
	ReadRate float64 `yaml:"read_rate,omitempty"`

	// Params are passed verbatim to the driver factory.
	Params map[string]any `yaml:"params,omitempty"`
}

// ConnectConfig is the capped exponential backoff budget for reconnects
type ConnectConfig struct {
	MaxAttempts  int      `yaml:"max_attempts,omitempty"`
	InitialDelay Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     Duration `yaml:"max_delay,omitempty"`
	Multiplier   float64  `yaml:"multiplier,omitempty"`
}

// RetryConfig converts the connect budget to the retry framework's Config.
// Jitter is always enabled for reconnect storms.
func (c ConnectConfig) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: c.InitialDelay.Std(),
		MaxDelay:     c.MaxDelay.Std(),
		Multiplier:   c.Multiplier,
		AddJitter:    true,
	}
}

// MetricsConfig controls the /metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// NATSConfig controls the optional pipeline event stream
type NATSConfig struct {
	URL string `yaml:"url,omitempty"`
}

// DefaultConfig returns a configuration with production defaults and no
// plugin instances.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			QueueCapacity: 16,
			Connect: ConnectConfig{
				MaxAttempts:  10,
				InitialDelay: Duration(100 * time.Millisecond),
				MaxDelay:     Duration(5 * time.Second),
				Multiplier:   2.0,
			},
			CallTimeout: Duration(30 * time.Second),
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Load reads and validates a YAML configuration file, layering it over the
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural and policy constraints.
func (c *Config) Validate() error {
	p := &c.Pipeline
	if p.Name == "" {
		return invalid("pipeline name is required")
	}
	if len(p.Inputs) == 0 {
		return invalid("pipeline %q needs at least one input", p.Name)
	}
	if len(p.Outputs) == 0 {
		return invalid("pipeline %q needs at least one output", p.Name)
	}
	if p.QueueCapacity < 1 {
		return invalid("queue_capacity must be >= 1, got %d", p.QueueCapacity)
	}
	if p.CallTimeout < 0 {
		return invalid("call_timeout cannot be negative")
	}
	if p.Connect.MaxAttempts < 1 {
		return invalid("connect.max_attempts must be >= 1, got %d", p.Connect.MaxAttempts)
	}
	if p.Connect.InitialDelay <= 0 {
		return invalid("connect.initial_delay must be positive")
	}
	if p.Connect.Multiplier < 1 {
		return invalid("connect.multiplier must be >= 1, got %g", p.Connect.Multiplier)
	}
	if p.Connect.MaxDelay < p.Connect.InitialDelay {
		return invalid("connect.max_delay must be >= connect.initial_delay")
	}

	seen := make(map[string]bool)
	check := func(role string, instances []InstanceConfig, allowRate bool) error {
		for _, inst := range instances {
			if inst.Name == "" {
				return invalid("%s instance needs a name", role)
			}
			if inst.Driver == "" {
				return invalid("%s instance %q needs a driver", role, inst.Name)
			}
			if seen[inst.Name] {
				return invalid("duplicate instance name %q", inst.Name)
			}
			seen[inst.Name] = true
			if inst.ReadRate < 0 {
				return invalid("instance %q read_rate cannot be negative", inst.Name)
			}
			if inst.ReadRate > 0 && !allowRate {
				return invalid("instance %q: read_rate only applies to inputs", inst.Name)
			}
		}
		return nil
	}

	if err := check("input", p.Inputs, true); err != nil {
		return err
	}
	if err := check("processor", p.Processors, false); err != nil {
		return err
	}
	if err := check("output", p.Outputs, false); err != nil {
		return err
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return invalid("metrics port %d out of range", c.Metrics.Port)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf(format, args...), "config", "Validate", "check pipeline config")
}
