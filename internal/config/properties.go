package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Properties are process-level overrides: environment variables or
// command-line flags. They take precedence over persisted options.
type Properties interface {
	// Property returns the value for key. Empty values count as absent.
	Property(key string) (string, bool)
}

// EnvProperties snapshots OTEL_* environment variables at construction.
type EnvProperties struct {
	k *koanf.Koanf
}

// NewEnvProperties loads the OTEL_ environment variables.
func NewEnvProperties() (*EnvProperties, error) {
	k := koanf.New(".")
	// Keys are kept verbatim: OTEL_EXPORTER_OTLP_ENDPOINT stays as is.
	if err := k.Load(env.Provider("OTEL_", ".", func(s string) string {
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return &EnvProperties{k: k}, nil
}

// Property implements Properties.
func (p *EnvProperties) Property(key string) (string, bool) {
	if p == nil || p.k == nil {
		return "", false
	}
	v := strings.TrimSpace(p.k.String(key))
	return v, v != ""
}

// MapProperties is a fixed set of overrides, typically from CLI flags.
type MapProperties map[string]string

// Property implements Properties.
func (m MapProperties) Property(key string) (string, bool) {
	v := strings.TrimSpace(m[key])
	return v, v != ""
}

// Chain consults each Properties in order and returns the first hit.
type Chain []Properties

// Property implements Properties.
func (c Chain) Property(key string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.Property(key); ok {
			return v, true
		}
	}
	return "", false
}
