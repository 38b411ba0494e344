// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ik5/atomix/bus"
	"github.com/ik5/atomix/engine"
	"github.com/ik5/atomix/voice"
)

// EnvPrefix prefixes environment overrides, e.g. ATOMIX_ENGINE_SAMPLING_RATE.
const EnvPrefix = "ATOMIX"

// Config holds all configuration of the atomix tool.
type Config struct {
	Engine     EngineConfig       `mapstructure:"engine"`
	Voices     VoicesConfig       `mapstructure:"voices"`
	BusSetting *bus.Setting       `mapstructure:"bus_setting"`
	Fader      engine.FaderConfig `mapstructure:"fader"`
	Output     OutputConfig       `mapstructure:"output"`
	Logging    LoggingConfig      `mapstructure:"logging"`
}

// EngineConfig holds the engine initialization values.
type EngineConfig struct {
	ServerFrequency   int               `mapstructure:"server_frequency"`
	SamplingRate      int               `mapstructure:"sampling_rate"`
	NumBuses          int               `mapstructure:"num_buses"`
	OutputChannels    int               `mapstructure:"output_channels"`
	SpeakerMapping    string            `mapstructure:"speaker_mapping"`
	Renderer          string            `mapstructure:"renderer"`
	ServerMode        string            `mapstructure:"server_mode"`
	MaxRacks          int               `mapstructure:"max_racks"`
	MaxVirtualVoices  int               `mapstructure:"max_virtual_voices"`
	RetainedPlaybacks int               `mapstructure:"retained_playbacks"`
	Categories        []engine.Category `mapstructure:"categories"`
}

// VoicesConfig holds voice pools and limit groups.
type VoicesConfig struct {
	Pools       []PoolConfig       `mapstructure:"pools"`
	LimitGroups []LimitGroupConfig `mapstructure:"limit_groups"`
}

type PoolConfig struct {
	Name            string `mapstructure:"name"`
	NumVoices       int    `mapstructure:"num_voices"`
	MaxChannels     int    `mapstructure:"max_channels"`
	MaxSamplingRate int    `mapstructure:"max_sampling_rate"`
}

type LimitGroupConfig struct {
	Name      string `mapstructure:"name"`
	MaxVoices int    `mapstructure:"max_voices"`
}

// OutputConfig selects the device backend used by the play command.
type OutputConfig struct {
	Backend  string `mapstructure:"backend"` // oto or beep
	Format   string `mapstructure:"format"`  // float32 or int16
	BufferMS int    `mapstructure:"buffer_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.server_frequency", engine.DefaultServerFrequency)
	v.SetDefault("engine.sampling_rate", engine.DefaultSamplingRate)
	v.SetDefault("engine.num_buses", bus.DefaultNumBuses)
	v.SetDefault("engine.output_channels", 2)
	v.SetDefault("engine.speaker_mapping", bus.MappingStereo.String())
	v.SetDefault("engine.renderer", engine.RendererNative.String())
	v.SetDefault("engine.server_mode", engine.ServerOnDemand.String())
	v.SetDefault("engine.max_racks", engine.DefaultMaxRacks)
	v.SetDefault("engine.max_virtual_voices", engine.DefaultMaxVirtualVoices)
	v.SetDefault("engine.retained_playbacks", engine.DefaultRetainedPlaybacks)

	v.SetDefault("fader.fade_in_time_ms", 0)
	v.SetDefault("fader.fade_out_time_ms", 0)

	v.SetDefault("output.backend", "oto")
	v.SetDefault("output.format", "float32")
	v.SetDefault("output.buffer_ms", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig loads configuration from file and environment variables. An
// empty file searches ./config.yaml, $HOME/.atomix and /etc/atomix, and a
// missing file leaves defaults and environment in place.
func LoadConfig(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.atomix")
		v.AddConfigPath("/etc/atomix")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		logrus.Debug("No config file found, using defaults and environment variables")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("Using config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// Validate checks every field that LoadConfig cannot check by type alone.
func (c *Config) Validate() error {
	if _, err := bus.ParseMapping(c.Engine.SpeakerMapping); err != nil {
		return &ConfigError{Field: "engine.speaker_mapping", Message: err.Error()}
	}
	if _, err := parseRenderer(c.Engine.Renderer); err != nil {
		return &ConfigError{Field: "engine.renderer", Message: err.Error()}
	}
	if _, err := parseServerMode(c.Engine.ServerMode); err != nil {
		return &ConfigError{Field: "engine.server_mode", Message: err.Error()}
	}

	for i, p := range c.Voices.Pools {
		if p.NumVoices < 0 || p.MaxChannels <= 0 || p.MaxSamplingRate <= 0 {
			return &ConfigError{
				Field:   fmt.Sprintf("voices.pools[%d]", i),
				Message: "pool needs max channels and max sampling rate, and no negative voice count",
			}
		}
	}
	for i, g := range c.Voices.LimitGroups {
		if g.Name == "" || g.MaxVoices < 0 {
			return &ConfigError{
				Field:   fmt.Sprintf("voices.limit_groups[%d]", i),
				Message: "limit group needs a name and a non-negative ceiling",
			}
		}
	}

	if c.Fader.FadeInTimeMS < 0 || c.Fader.FadeOutTimeMS < 0 {
		return &ConfigError{Field: "fader", Message: "fade times must not be negative"}
	}

	switch c.Output.Backend {
	case "oto", "beep":
	default:
		return &ConfigError{Field: "output.backend", Message: fmt.Sprintf("unknown backend %q", c.Output.Backend)}
	}
	switch c.Output.Format {
	case "float32", "int16":
	default:
		return &ConfigError{Field: "output.format", Message: fmt.Sprintf("unknown sample format %q", c.Output.Format)}
	}
	if c.Output.BufferMS <= 0 {
		return &ConfigError{Field: "output.buffer_ms", Message: "buffer must be positive"}
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return &ConfigError{Field: "logging.level", Message: err.Error()}
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown log format %q", c.Logging.Format)}
	}

	ec, err := c.EngineConfig(nil)
	if err != nil {
		return &ConfigError{Field: "engine", Message: err.Error()}
	}
	if err := ec.Validate(); err != nil {
		return &ConfigError{Field: "engine", Message: err.Error()}
	}

	return nil
}

// EngineConfig converts the loaded values to an engine configuration using
// log for diagnostics.
func (c *Config) EngineConfig(log *logrus.Logger) (engine.Config, error) {
	mapping, err := bus.ParseMapping(c.Engine.SpeakerMapping)
	if err != nil {
		return engine.Config{}, err
	}
	renderer, err := parseRenderer(c.Engine.Renderer)
	if err != nil {
		return engine.Config{}, err
	}
	mode, err := parseServerMode(c.Engine.ServerMode)
	if err != nil {
		return engine.Config{}, err
	}

	pools := make([]voice.Pool, 0, len(c.Voices.Pools))
	for _, p := range c.Voices.Pools {
		pools = append(pools, voice.Pool{
			Name:            p.Name,
			NumVoices:       p.NumVoices,
			MaxChannels:     p.MaxChannels,
			MaxSamplingRate: p.MaxSamplingRate,
		})
	}
	groups := make([]voice.LimitGroup, 0, len(c.Voices.LimitGroups))
	for _, g := range c.Voices.LimitGroups {
		groups = append(groups, voice.LimitGroup{Name: g.Name, MaxVoices: g.MaxVoices})
	}

	return engine.Config{
		ServerFrequency:   c.Engine.ServerFrequency,
		SamplingRate:      c.Engine.SamplingRate,
		NumBuses:          c.Engine.NumBuses,
		OutputChannels:    c.Engine.OutputChannels,
		SpeakerMapping:    mapping,
		Renderer:          renderer,
		MaxRacks:          c.Engine.MaxRacks,
		ServerMode:        mode,
		VoicePools:        pools,
		LimitGroups:       groups,
		MaxVirtualVoices:  c.Engine.MaxVirtualVoices,
		RetainedPlaybacks: c.Engine.RetainedPlaybacks,
		Categories:        c.Engine.Categories,
		Logger:            log,
	}, nil
}

func parseRenderer(s string) (engine.Renderer, error) {
	for _, r := range []engine.Renderer{engine.RendererNative, engine.RendererObject} {
		if strings.EqualFold(r.String(), s) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown renderer %q", s)
}

func parseServerMode(s string) (engine.ServerMode, error) {
	for _, m := range []engine.ServerMode{engine.ServerManual, engine.ServerOnDemand} {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown server mode %q", s)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
