package observability

import (
	"strings"
	"time"
)

// Exporter protocols
const (
	ProtocolStdout = "stdout"
	ProtocolHTTP   = "http"
	ProtocolGRPC   = "grpc"
)

const (
	defaultSampleRate     = 1.0
	defaultExportInterval = 30 * time.Second
	defaultBatchTimeout   = 5 * time.Second
)

// Config configures trace and metric export.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Protocol is stdout, http or grpc. Stdout ignores Endpoint.
	Protocol string
	// Endpoint is host:port for grpc and host:port or a URL for http.
	Endpoint string
	Insecure bool

	// SampleRate is the ratio of root traces recorded, within [0, 1].
	SampleRate     float64
	ExportInterval time.Duration
}

// applyDefaults fills zero values. A zero sample rate is treated as unset.
func (c *Config) applyDefaults() {
	if c.Protocol == "" {
		c.Protocol = ProtocolStdout
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = defaultExportInterval
	}
}

// Validate checks an enabled configuration.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	switch c.Protocol {
	case ProtocolStdout:
		return nil
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return ErrInvalidProtocol
	}
	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	hasScheme := strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://")
	if c.Protocol == ProtocolGRPC && hasScheme {
		return ErrInvalidEndpointFormat
	}
	return nil
}

// httpEndpoint splits an http endpoint into host:port and whether it asked for TLS.
func httpEndpoint(endpoint string, insecure bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), insecure
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), true
	default:
		return endpoint, insecure
	}
}
