package config

import (
	"errors"
	"fmt"
	"time"

	"garden-relay/internal/types"
)

const (
	BackendHosted  = "hosted"
	BackendProcess = "process"
)

// DetectionConfig - выбор и настройки детектора сорняков
type DetectionConfig struct {
	Backend      string        `yaml:"backend" env:"RELAY_DETECTION_BACKEND"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"RELAY_DETECTION_MAX_BODY_BYTES"`
	Timeout      time.Duration `yaml:"timeout" env:"RELAY_DETECTION_TIMEOUT"`

	Hosted  HostedConfig  `yaml:"hosted"`
	Process ProcessConfig `yaml:"process"`
}

// HostedConfig - внешний HTTP сервис инференса
type HostedConfig struct {
	Endpoint string `yaml:"endpoint" env:"RELAY_DETECTION_HOSTED_ENDPOINT"`
	// APIKey только из окружения или секрета, в файле не хранить
	APIKey string `yaml:"api_key" env:"RELAY_DETECTION_HOSTED_API_KEY"`
}

// ProcessConfig - локальный исполняемый детектор.
// Command - исполняемый файл и его аргументы, пути входа и выхода дописываются в конец.
type ProcessConfig struct {
	Command []string `yaml:"command" env:"RELAY_DETECTION_PROCESS_COMMAND" envSeparator:" "`
	TempDir string   `yaml:"temp_dir" env:"RELAY_DETECTION_PROCESS_TEMP_DIR"`
}

// Validate проверяет настройки выбранного бэкенда
func (d *DetectionConfig) Validate() error {
	var errs []error

	if d.MaxBodyBytes <= 0 {
		errs = append(errs, &types.ConfigurationError{Field: "detection.max_body_bytes", Err: fmt.Errorf("must be positive: %d", d.MaxBodyBytes)})
	}
	if d.Timeout <= 0 {
		errs = append(errs, &types.ConfigurationError{Field: "detection.timeout", Err: fmt.Errorf("must be positive: %s", d.Timeout)})
	}

	switch d.Backend {
	case BackendHosted:
		if d.Hosted.Endpoint == "" {
			errs = append(errs, &types.ConfigurationError{Field: "detection.hosted.endpoint", Err: errors.New("required")})
		}
		if d.Hosted.APIKey == "" {
			errs = append(errs, &types.ConfigurationError{Field: "detection.hosted.api_key", Err: errors.New("required")})
		}
	case BackendProcess:
		if len(d.Process.Command) == 0 || d.Process.Command[0] == "" {
			errs = append(errs, &types.ConfigurationError{Field: "detection.process.command", Err: errors.New("required")})
		}
	default:
		errs = append(errs, &types.ConfigurationError{
			Field: "detection.backend",
			Err:   fmt.Errorf("unknown backend %q, expected %q or %q", d.Backend, BackendHosted, BackendProcess),
		})
	}

	return errors.Join(errs...)
}
