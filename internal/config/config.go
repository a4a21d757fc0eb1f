package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TRAINCRAFT_HTTP_ADDR.
const EnvPrefix = "TRAINCRAFT"

// Config is the server runtime configuration. Simulation tuning lives in
// configs/tuning.yaml and is not part of it.
type Config struct {
	WorldID   string `mapstructure:"worldId"`
	ConfigDir string `mapstructure:"configDir"`
	DataDir   string `mapstructure:"dataDir"`

	// Resume names a snapshot to load instead of spawning from railway.yaml.
	Resume string `mapstructure:"resume"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Index     IndexConfig     `mapstructure:"index"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Influx    InfluxConfig    `mapstructure:"influx"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// AdminLoopbackOnly restricts /admin/v1/* to loopback clients.
	AdminLoopbackOnly bool `mapstructure:"adminLoopbackOnly"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type IndexConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path defaults to <dataDir>/worlds/<worldId>/index/world.sqlite.
	Path string `mapstructure:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
}

type InfluxConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	SampleEvery   int           `mapstructure:"sampleEvery"`
	FlushInterval time.Duration `mapstructure:"flushInterval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worldId", "rail-1")
	v.SetDefault("configDir", "./configs")
	v.SetDefault("dataDir", "./data")
	v.SetDefault("resume", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.adminLoopbackOnly", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)

	v.SetDefault("index.enabled", true)
	v.SetDefault("index.path", "")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.serviceName", "traincraft-server")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "traincraft")
	v.SetDefault("influx.bucket", "trains")
	v.SetDefault("influx.sampleEvery", 20)
	v.SetDefault("influx.flushInterval", "1s")
}

// Load reads the YAML config at path over the defaults and applies TRAINCRAFT_*
// environment overrides. An empty path uses defaults and the environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.WorldID) == "" {
		return fmt.Errorf("config: worldId must not be empty")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("config: http.addr must not be empty")
	}
	if c.Influx.Enabled {
		if c.Influx.URL == "" || c.Influx.Bucket == "" || c.Influx.Org == "" {
			return fmt.Errorf("config: influx.url, influx.org and influx.bucket are required when influx is enabled")
		}
		if c.Influx.SampleEvery <= 0 {
			return fmt.Errorf("config: influx.sampleEvery must be > 0")
		}
	}
	return nil
}
