package config

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Loader resolves Telemetry from layered sources.
//
// Precedence per setting (highest to lowest):
//  1. Properties (environment variables, CLI flags)
//  2. Store (persisted options)
//  3. Hardcoded defaults
//
// Invalid protocol or timeout values are skipped in favor of the next layer
// and reported as warnings; Load never fails.
type Loader struct {
	Properties Properties
	Store      OptionStore
	Logger     *zap.Logger
}

// Load returns the resolved settings.
func (l *Loader) Load() Telemetry {
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cfg := NewDefault()

	if v, ok := l.lookup(KeyServiceName); ok {
		cfg.ServiceName = v
	}
	if v, ok := l.lookup(KeyEndpoint); ok {
		cfg.Endpoint = v
	}
	if v, ok := l.lookup(KeyHeaders); ok {
		cfg = cfg.WithHeaders(ParseHeaders(v))
	}

	for _, v := range l.candidates(KeyProtocol) {
		p, err := ParseProtocol(v)
		if err != nil {
			log.Warn("ignoring invalid OTLP protocol", zap.String("value", v), zap.Error(err))
			continue
		}
		cfg.Protocol = p
		break
	}

	for _, v := range l.candidates(KeyTimeout) {
		d, err := ParseTimeout(v)
		if err != nil {
			log.Warn("ignoring invalid OTLP timeout", zap.String("value", v), zap.Error(err))
			continue
		}
		cfg.Timeout = d
		break
	}

	return cfg
}

// lookup returns the highest-precedence non-empty value for key.
func (l *Loader) lookup(key string) (string, bool) {
	c := l.candidates(key)
	if len(c) == 0 {
		return "", false
	}
	return c[0], true
}

// candidates returns the non-empty values for key, highest precedence first.
func (l *Loader) candidates(key string) []string {
	var out []string
	if l.Properties != nil {
		if v, ok := l.Properties.Property(key); ok {
			out = append(out, v)
		}
	}
	if l.Store != nil {
		if v := strings.TrimSpace(l.Store.ReadOption(key, "")); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Save persists every setting of cfg. The running process keeps using its
// current settings; the new values apply on the next start.
func Save(store OptionStore, cfg Telemetry) error {
	opts := map[string]string{
		KeyServiceName: cfg.ServiceName,
		KeyEndpoint:    cfg.Endpoint,
		KeyProtocol:    string(cfg.Protocol),
		KeyHeaders:     cfg.HeadersString(),
		KeyTimeout:     FormatTimeout(cfg.Timeout),
	}

	if b, ok := store.(batchSaver); ok {
		return b.SaveOptions(opts)
	}
	for _, k := range Keys {
		if err := store.SaveOption(k, opts[k]); err != nil {
			return err
		}
	}
	return nil
}

// ParseTimeout accepts whole seconds ("10") or a Go duration ("1500ms").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs <= 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(secs) * time.Second, nil
	}
	var d Duration
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	if d.Duration() <= 0 {
		return 0, strconv.ErrRange
	}
	return d.Duration(), nil
}

// FormatTimeout renders whole seconds as an integer, anything else as a Go
// duration string.
func FormatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10)
	}
	return d.String()
}
