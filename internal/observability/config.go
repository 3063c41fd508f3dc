package observability

import (
	"strings"

	"github.com/smallbiznis/opensmile/internal/config"
)

// Config is the observability view of the process configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func NewConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "opensmile"
	}
	protocol := cfg.OTLPProtocol
	if protocol == "" {
		protocol = "grpc"
	}
	return Config{
		ServiceName:          name,
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: cfg.OTLPEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    cfg.OtelSamplingRatio,
	}
}

// Debug enables development encoders and gin debug mode. Production never
// runs in debug, whatever LOG_LEVEL says, so request bodies stay out of logs.
func (c Config) Debug() bool {
	switch c.Environment {
	case "production":
		return false
	case "dev", "development", "local", "test":
		return true
	}
	return c.LogLevel == "debug"
}
