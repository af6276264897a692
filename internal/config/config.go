package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"garden-relay/internal/types"
)

// Config представляет конфигурацию приложения
type Config struct {
	Host string `yaml:"host" env:"RELAY_HOST"`
	Port int    `yaml:"port" env:"RELAY_PORT"`

	// gRPC health, 0 - выключен
	GRPCPort int `yaml:"grpc_port" env:"RELAY_GRPC_PORT"`

	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	CORS      CORSConfig      `yaml:"cors"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Detection DetectionConfig `yaml:"detection"`
}

// ServerConfig - таймауты HTTP сервера
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"RELAY_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"RELAY_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"RELAY_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"RELAY_SHUTDOWN_TIMEOUT"`
}

// LoggingConfig - уровень и формат логов
type LoggingConfig struct {
	Level  string `yaml:"level" env:"RELAY_LOG_LEVEL"`
	Format string `yaml:"format" env:"RELAY_LOG_FORMAT"`
}

// CORSConfig - список origin, которым разрешено обращаться к relay
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"RELAY_CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// UpstreamConfig - доступ к видеоплатформе
type UpstreamConfig struct {
	APIAddress     string        `yaml:"api_address" env:"RELAY_UPSTREAM_API_ADDRESS"`
	ClientID       string        `yaml:"client_id" env:"RELAY_UPSTREAM_CLIENT_ID"`
	PrivateKeyPath string        `yaml:"private_key_path" env:"RELAY_UPSTREAM_PRIVATE_KEY_PATH"`
	Timeout        time.Duration `yaml:"timeout" env:"RELAY_UPSTREAM_TIMEOUT"`
}

// LoadConfig загружает конфигурацию из файла и накладывает переменные окружения.
// Пустой path означает только значения по умолчанию и окружение.
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &types.ConfigurationError{Field: "config file", Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &types.ConfigurationError{Field: "config file", Err: fmt.Errorf("parse %s: %w", path, err)}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, &types.ConfigurationError{Field: "environment", Err: err}
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = DefaultAllowedOrigins(cfg.Host)
	}

	return cfg, nil
}

// GetDefaultConfig возвращает конфигурацию по умолчанию
func GetDefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     3001,
		GRPCPort: 0,
		Server: ServerConfig{
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			Timeout: 15 * time.Second,
		},
		Detection: DetectionConfig{
			Backend:      BackendHosted,
			MaxBodyBytes: 72 << 20,
			Timeout:      30 * time.Second,
		},
	}
}

// DefaultAllowedOrigins повторяет пару origin фронтенда: localhost и хост relay на порту 3000
func DefaultAllowedOrigins(host string) []string {
	origins := []string{"http://localhost:3000"}
	if host != "" && host != "localhost" {
		origins = append(origins, fmt.Sprintf("http://%s:3000", host))
	}
	return origins
}

// Address возвращает адрес HTTP сервера
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate проверяет обязательные поля. Все ошибки - ConfigurationError.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, &types.ConfigurationError{Field: "port", Err: fmt.Errorf("out of range: %d", c.Port)})
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, &types.ConfigurationError{Field: "grpc_port", Err: fmt.Errorf("out of range: %d", c.GRPCPort)})
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		errs = append(errs, &types.ConfigurationError{Field: "cors.allowed_origins", Err: errors.New("at least one origin is required")})
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if origin == "*" {
			errs = append(errs, &types.ConfigurationError{Field: "cors.allowed_origins", Err: errors.New("wildcard origin is not allowed")})
		}
	}

	if c.Upstream.APIAddress == "" {
		errs = append(errs, &types.ConfigurationError{Field: "upstream.api_address", Err: errors.New("required")})
	} else if u, err := url.Parse(c.Upstream.APIAddress); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &types.ConfigurationError{Field: "upstream.api_address", Err: fmt.Errorf("not an absolute URL: %q", c.Upstream.APIAddress)})
	}
	if c.Upstream.ClientID == "" {
		errs = append(errs, &types.ConfigurationError{Field: "upstream.client_id", Err: errors.New("required")})
	}
	if c.Upstream.PrivateKeyPath == "" {
		errs = append(errs, &types.ConfigurationError{Field: "upstream.private_key_path", Err: errors.New("required")})
	}

	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
