// Package config loads dolyd configuration from a YAML file, DOLY_*
// environment variables and built-in defaults, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-doly/internal/tracing"
	"github.com/teslashibe/go-doly/pkg/robot"
)

// EnvPrefix prefixes every environment override, e.g. DOLY_WEB_ADDR.
const EnvPrefix = "DOLY"

// LogConfig configures the global logger. Format is "text" or "json";
// empty follows GO_ENV.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	UpdateInterval time.Duration `mapstructure:"update_interval" yaml:"update_interval"`
}

// SimConfig configures the simulated driver used when no hardware is
// attached.
type SimConfig struct {
	Latency time.Duration `mapstructure:"latency" yaml:"latency"`
	Steps   int           `mapstructure:"steps" yaml:"steps"`
}

// Config is the full dolyd configuration. Robot settings sit at the top
// level of the file.
type Config struct {
	Log          LogConfig      `mapstructure:"log" yaml:"log"`
	robot.Config `mapstructure:",squash" yaml:",inline"`
	Web          WebConfig      `mapstructure:"web" yaml:"web"`
	Tracing      tracing.Config `mapstructure:"tracing" yaml:"tracing"`
	Sim          SimConfig      `mapstructure:"sim" yaml:"sim"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Config: robot.DefaultConfig(),
		Web: WebConfig{
			Enabled:        true,
			Addr:           ":8090",
			UpdateInterval: 200 * time.Millisecond,
		},
		Tracing: tracing.DefaultConfig(),
		Sim: SimConfig{
			Latency: 20 * time.Millisecond,
			Steps:   10,
		},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if err := c.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		errs = append(errs, errors.New("web: addr is required"))
	}
	if c.Sim.Steps < 1 {
		errs = append(errs, fmt.Errorf("sim: steps must be positive, got %d", c.Sim.Steps))
	}
	return errors.Join(errs...)
}

// Find returns the config file to use: path if given, then $DOLY_CONFIG,
// then ./doly.yaml, then ~/.config/doly/config.yaml. It returns "" when
// none exists.
func Find(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
		return env
	}
	candidates := []string{"doly.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "doly", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Loader reads configuration through a private viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader for the file at path. An empty path loads
// defaults and environment only.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}
	return &Loader{v: v}, nil
}

// File returns the config file in use, or "".
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Config decodes and validates the current configuration.
func (l *Loader) Config() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Watch calls fn with the reloaded configuration each time the file
// changes. Invalid edits are passed as an error and the previous
// configuration stays in effect.
func (l *Loader) Watch(fn func(Config, error)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.Config())
	})
	l.v.WatchConfig()
}

// Load is NewLoader followed by Config.
func Load(path string) (Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return Config{}, err
	}
	return l.Config()
}

// Dump renders cfg as YAML.
func Dump(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return data, nil
}

// setDefaults registers every default key so environment overrides apply
// to keys missing from the file.
func setDefaults(v *viper.Viper) error {
	data, err := Dump(Default())
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("config: defaults: %w", err)
	}
	walk(v, "", tree)
	return nil
}

func walk(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			walk(v, key, sub)
			continue
		}
		v.SetDefault(key, value)
	}
}
