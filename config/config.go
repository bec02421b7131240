package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	StrategyRandom     = "random"
	StrategyRoundRobin = "round-robin"
)

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ListenConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

type HostConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

type ServiceConfig struct {
	Domain     string       `mapstructure:"domain"`
	LBStrategy string       `mapstructure:"lb-strategy"`
	Hosts      []HostConfig `mapstructure:"hosts"`
}

// ProxyConfig is the routing table plus the cache validity window in seconds.
// A CacheValid of zero or less disables the response cache.
type ProxyConfig struct {
	Listen          ListenConfig    `mapstructure:"listen"`
	CacheValid      int             `mapstructure:"cache_valid"`
	UpstreamTimeout string          `mapstructure:"upstream_timeout"`
	Services        []ServiceConfig `mapstructure:"services"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Admin   AdminConfig   `mapstructure:"admin"`
}

// Load reads the configuration from path. An empty path searches for
// proxy.yaml in ./config and the working directory. Environment variables
// override file values, with dots replaced by underscores
// (PROXY_CACHE_VALID overrides proxy.cache_valid).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("proxy.listen.address", "127.0.0.1")
	v.SetDefault("proxy.listen.port", 8080)
	v.SetDefault("proxy.cache_valid", 0)
	v.SetDefault("proxy.upstream_timeout", "10s")
	v.SetDefault("admin.address", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("proxy")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ListenAddr joins the proxy listen address and port.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Proxy.Listen.Address, strconv.Itoa(c.Proxy.Listen.Port))
}

// CacheTTL converts cache_valid to a duration. Non-positive values mean the
// cache is disabled.
func (c *Config) CacheTTL() time.Duration {
	if c.Proxy.CacheValid <= 0 {
		return 0
	}
	return time.Duration(c.Proxy.CacheValid) * time.Second
}

// UpstreamTimeout returns the bound applied to every upstream fetch. It is
// only meaningful on a validated config.
func (c *Config) UpstreamTimeout() time.Duration {
	d, err := time.ParseDuration(c.Proxy.UpstreamTimeout)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Proxy,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProxyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Listen, validation.By(validateListen)),
					validation.Field(&pc.UpstreamTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&pc.Services,
						validation.Required,
						validation.Length(1, 0),
						validation.Each(validation.By(validateServiceConfig)),
					),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Address, validation.By(validateHostPort)),
				)
			}),
		),
	)
}

func validateListen(value interface{}) error {
	lc, ok := value.(ListenConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ListenConfig")
	}

	if lc.Address != "" {
		if err := is.Host.Validate(lc.Address); err != nil {
			return validation.NewError("validation_invalid_host", "invalid listen address")
		}
	}

	return validatePort(lc.Port)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	// an empty admin address disables the listener
	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be greater than zero")
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return validation.NewError("validation_invalid_port", "port must be between 1 and 65535")
	}
	return nil
}

func validateServiceConfig(value interface{}) error {
	svc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}

	return validation.ValidateStruct(&svc,
		validation.Field(&svc.Domain, validation.Required),
		validation.Field(&svc.LBStrategy,
			validation.In(StrategyRandom, StrategyRoundRobin).Error("must be random or round-robin"),
		),
		validation.Field(&svc.Hosts,
			validation.Required.Error("must list at least one host"),
			validation.Each(validation.By(validateHostConfig)),
		),
	)
}

func validateHostConfig(value interface{}) error {
	host, ok := value.(HostConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a HostConfig")
	}

	if host.Address == "" {
		return validation.NewError("validation_empty_address", "host address cannot be empty")
	}

	if err := is.Host.Validate(host.Address); err != nil {
		return validation.NewError("validation_invalid_host", "invalid host address")
	}

	return validatePort(host.Port)
}
