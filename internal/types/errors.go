package types

import (
	"fmt"
	"strings"
)

// ConfigurationError - фатальная ошибка конфигурации, процесс не должен стартовать
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration: %s", e.Field)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamError - ошибка видеоплатформы (не 2xx или сетевой сбой)
type UpstreamError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upstream %s failed", e.Operation)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError - ошибка по вине клиента, отдается как 400
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ForwarderError - сбой внешнего детектора (HTTP или процесс)
type ForwarderError struct {
	Backend    string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ForwarderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s detector failed", e.Backend)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func (e *ForwarderError) Unwrap() error { return e.Err }

// Truncate обрезает диагностический текст, чтобы не тащить в ответ мегабайты
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
