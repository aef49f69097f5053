package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names. Flat upper-case names, matching the
// deployment convention of the surrounding platform.
const (
	EnvNATSURL         = "NATSURL"
	EnvNATSStream      = "NATSSTREAM"
	EnvConsumerName    = "CONSUMERNAME"
	EnvMaxConcurrency  = "MAXCONCURRENCY"
	EnvMongoURI        = "MONGODBURI"
	EnvMongoDatabase   = "MONGODBDATABASE"
	EnvWorkflowIDs     = "WORKFLOWIDS"
	EnvOutputTopic     = "OUTPUTTOPIC"
	EnvMetricsPort     = "METRICSPORT"
	EnvServerHostname  = "SERVERHOSTNAME"
	EnvServerPort      = "SERVERPORT"
	EnvInputTopic      = "INPUTTOPIC"
	EnvPublishTimeout  = "PUBLISHTIMEOUTMS"
	EnvDefaultTenant   = "DEFAULTTENANT"
	EnvDefaultOrigin   = "DEFAULTORIGIN"
)

// Loader reads configuration with layered precedence: defaults, then an
// optional YAML file, then environment variables.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadProcessor loads and validates the processor configuration.
// path may be empty to skip the file layer.
func (l *Loader) LoadProcessor(path string) (*ProcessorConfig, error) {
	cfg := DefaultProcessorConfig()

	if err := l.loadFile(path, &cfg); err != nil {
		return nil, err
	}

	applyEnvString(EnvNATSURL, &cfg.NATS.URL)
	applyEnvString(EnvNATSStream, &cfg.NATS.Stream)
	applyEnvString(EnvConsumerName, &cfg.ConsumerName)
	applyEnvString(EnvMongoURI, &cfg.Mongo.URI)
	applyEnvString(EnvMongoDatabase, &cfg.Mongo.Database)
	applyEnvString(EnvOutputTopic, &cfg.OutputTopic)
	if err := applyEnvInt64(EnvMaxConcurrency, &cfg.MaxConcurrency); err != nil {
		return nil, err
	}
	if err := applyEnvInt(EnvMetricsPort, &cfg.MetricsPort); err != nil {
		return nil, err
	}
	if raw := os.Getenv(EnvWorkflowIDs); raw != "" {
		cfg.WorkflowIDs = splitCommaList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}
	return &cfg, nil
}

// LoadIngress loads and validates the ingress configuration.
func (l *Loader) LoadIngress(path string) (*IngressConfig, error) {
	cfg := DefaultIngressConfig()

	if err := l.loadFile(path, &cfg); err != nil {
		return nil, err
	}

	applyEnvString(EnvServerHostname, &cfg.Server.Hostname)
	applyEnvString(EnvNATSURL, &cfg.NATS.URL)
	applyEnvString(EnvNATSStream, &cfg.NATS.Stream)
	applyEnvString(EnvInputTopic, &cfg.InputTopic)
	applyEnvString(EnvDefaultTenant, &cfg.DefaultTenant)
	applyEnvString(EnvDefaultOrigin, &cfg.DefaultOrigin)
	if err := applyEnvInt(EnvServerPort, &cfg.Server.Port); err != nil {
		return nil, err
	}
	if raw := os.Getenv(EnvPublishTimeout); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvPublishTimeout, err)
		}
		cfg.PublishTimeout = Duration(time.Duration(ms) * time.Millisecond)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ingress config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) loadFile(path string, out any) error {
	if path == "" {
		l.logger.Debug("no config file given, using defaults and environment")
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("config file not found, using defaults and environment", "path", path)
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	l.logger.Debug("loaded config file", "path", path)
	return nil
}

func applyEnvString(name string, target *string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

func applyEnvInt(name string, target *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*target = v
	return nil
}

func applyEnvInt64(name string, target *int64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*target = v
	return nil
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
