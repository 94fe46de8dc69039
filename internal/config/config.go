// Package config resolves the telemetry settings for jobtrace.
//
// Settings are layered: process-level properties (environment variables,
// command-line flags) win over options persisted in the config file, which
// win over hardcoded defaults. A resolved Telemetry value is immutable; a
// configuration change produces and persists a new value that takes effect
// on the next start.
package config

import (
	"fmt"
	"maps"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Option keys, shared by the environment, the persisted store and the CLI.
const (
	KeyServiceName = "OTEL_SERVICE_NAME"
	KeyEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	KeyProtocol    = "OTEL_EXPORTER_OTLP_PROTOCOL"
	KeyHeaders     = "OTEL_EXPORTER_OTLP_HEADERS"
	KeyTimeout     = "OTEL_EXPORTER_OTLP_TIMEOUT"
)

// Keys lists every option key in persistence order.
var Keys = []string{KeyServiceName, KeyEndpoint, KeyProtocol, KeyHeaders, KeyTimeout}

// Defaults.
const (
	DefaultServiceName = "default-service"
	DefaultProtocol    = ProtocolGRPC
	DefaultTimeout     = 10 * time.Second
)

// Protocol is the OTLP transport.
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
)

// ParseProtocol validates an OTLP protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolGRPC, ProtocolHTTPProtobuf:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported protocol %q (want grpc or http/protobuf)", s)
	}
}

// Telemetry holds the resolved exporter settings. Use the With methods to
// derive modified copies; the header map is never shared.
type Telemetry struct {
	ServiceName string
	Endpoint    string
	Protocol    Protocol
	Timeout     time.Duration

	headers map[string]string
}

// NewDefault returns the default settings: no endpoint, so exporting is off.
func NewDefault() Telemetry {
	return Telemetry{
		ServiceName: DefaultServiceName,
		Protocol:    DefaultProtocol,
		Timeout:     DefaultTimeout,
		headers:     map[string]string{},
	}
}

// Headers returns a copy of the exporter headers.
func (t Telemetry) Headers() map[string]string {
	out := make(map[string]string, len(t.headers))
	maps.Copy(out, t.headers)
	return out
}

// HeadersString returns the headers in "k=v,k2=v2" form.
func (t Telemetry) HeadersString() string {
	return FormatHeaders(t.headers)
}

// WithServiceName returns a copy with the service name set.
func (t Telemetry) WithServiceName(name string) Telemetry {
	t.ServiceName = strings.TrimSpace(name)
	t.headers = t.Headers()
	return t
}

// WithEndpoint returns a copy with the collector endpoint set.
func (t Telemetry) WithEndpoint(endpoint string) Telemetry {
	t.Endpoint = strings.TrimSpace(endpoint)
	t.headers = t.Headers()
	return t
}

// WithProtocol returns a copy with the transport protocol set.
func (t Telemetry) WithProtocol(p Protocol) Telemetry {
	t.Protocol = p
	t.headers = t.Headers()
	return t
}

// WithTimeout returns a copy with the export timeout set.
func (t Telemetry) WithTimeout(d time.Duration) Telemetry {
	t.Timeout = d
	t.headers = t.Headers()
	return t
}

// WithHeaders returns a copy carrying its own copy of h.
func (t Telemetry) WithHeaders(h map[string]string) Telemetry {
	t.headers = make(map[string]string, len(h))
	maps.Copy(t.headers, h)
	return t
}

// Enabled reports whether an endpoint is configured.
func (t Telemetry) Enabled() bool {
	return t.Endpoint != ""
}

// Validate checks the settings used to build exporters, endpoint included.
func (t Telemetry) Validate() error {
	if err := t.ValidateSettings(); err != nil {
		return err
	}
	return t.ValidateEndpoint()
}

// ValidateSettings checks everything but the endpoint.
func (t Telemetry) ValidateSettings() error {
	if t.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if _, err := ParseProtocol(string(t.Protocol)); err != nil {
		return err
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", t.Timeout)
	}
	return nil
}

// ValidateEndpoint checks the collector endpoint. An empty endpoint is
// valid and disables export.
func (t Telemetry) ValidateEndpoint() error {
	if t.Enabled() && strings.Contains(t.Endpoint, "://") {
		u, err := url.Parse(t.Endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", t.Endpoint, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint scheme must be http or https, got %q", u.Scheme)
		}
	}
	return nil
}

// URLPath returns the request path for signal ("traces", "metrics" or
// "logs") when the endpoint URL carries a path prefix, as for a collector
// behind a gateway. ok is false when the exporter default applies.
func (t Telemetry) URLPath(signal string) (path string, ok bool) {
	if !strings.Contains(t.Endpoint, "://") {
		return "", false
	}
	u, err := url.Parse(t.Endpoint)
	if err != nil {
		return "", false
	}
	prefix := strings.TrimRight(u.Path, "/")
	if prefix == "" {
		return "", false
	}
	return prefix + "/v1/" + signal, true
}

// HostPort returns the endpoint without scheme or path, as the OTLP
// exporters expect.
func (t Telemetry) HostPort() string {
	if u, err := url.Parse(t.Endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return t.Endpoint
}

// Insecure reports whether the exporter should skip TLS. An explicit scheme
// decides; without one, only local endpoints are plaintext.
func (t Telemetry) Insecure() bool {
	switch {
	case strings.HasPrefix(t.Endpoint, "https://"):
		return false
	case strings.HasPrefix(t.Endpoint, "http://"):
		return true
	default:
		return isLocalEndpoint(t.Endpoint)
	}
}

// String renders the settings with header values redacted.
func (t Telemetry) String() string {
	names := make([]string, 0, len(t.headers))
	for k := range t.headers {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + Secret(t.headers[k]).String()
	}
	return fmt.Sprintf("service=%s endpoint=%q protocol=%s timeout=%s headers=[%s]",
		t.ServiceName, t.Endpoint, t.Protocol, t.Timeout, strings.Join(parts, ","))
}

// isLocalEndpoint checks if the endpoint is a local address.
func isLocalEndpoint(endpoint string) bool {
	host := endpoint

	// Handle IPv6 addresses (may be bracketed like [::1]:4317)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}
	}

	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(endpoint, "::1")
}
