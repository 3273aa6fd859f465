// Package config loads the service configuration from configs/config.yml,
// REPAIR_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "REPAIR"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Log    LogConfig    `mapstructure:"log"`
	WS     WSConfig     `mapstructure:"ws"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Seed   SeedConfig   `mapstructure:"seed"`
}

type ServerConfig struct {
	Port              string        `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// WSConfig bounds each websocket client: outbound queue length and the
// command rate it may sustain.
type WSConfig struct {
	QueueSize  int     `mapstructure:"queue_size"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

type HTTPConfig struct {
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SeedConfig points at reference data loaded into an empty database.
type SeedConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("db.path", "app.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("ws.queue_size", 64)
	v.SetDefault("ws.rate_per_sec", 20)
	v.SetDefault("ws.burst", 40)

	v.SetDefault("http.rate_per_sec", 50)
	v.SetDefault("http.burst", 100)

	v.SetDefault("cache.ttl", time.Minute)

	v.SetDefault("seed.path", "")
}

// Load parses args (without the program name) and builds the configuration.
// A missing configs/config.yml is not an error; a missing --config file is.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("repair_tracker", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to the config file")
	fs.String("port", "", "HTTP listen port")
	fs.String("db", "", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("server.port", fs.Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("db.path", fs.Lookup("db")); err != nil {
		return nil, err
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Server.Port == "":
		return errors.New("config: server.port is empty")
	case c.DB.Path == "":
		return errors.New("config: db.path is empty")
	case c.WS.QueueSize <= 0:
		return fmt.Errorf("config: ws.queue_size must be positive, got %d", c.WS.QueueSize)
	case c.WS.RatePerSec <= 0 || c.HTTP.RatePerSec <= 0:
		return errors.New("config: rate limits must be positive")
	}
	return nil
}
