// Package config provides layered configuration for the processor and
// ingress binaries: defaults, then an optional YAML file, then
// environment variables, validated last.
package config

import (
	"fmt"
	"time"
)

// NATSConfig locates the broker.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"`
}

// MongoConfig locates the workflow document store.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// ServerConfig binds the ingress HTTP listener.
type ServerConfig struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
}

// ProcessorConfig configures the worker runtime binary.
type ProcessorConfig struct {
	NATS           NATSConfig  `yaml:"nats"`
	Mongo          MongoConfig `yaml:"mongo"`
	ConsumerName   string      `yaml:"consumer_name"`
	MaxConcurrency int64       `yaml:"max_concurrency"`
	WorkflowIDs    []string    `yaml:"workflow_ids"`
	OutputTopic    string      `yaml:"output_topic"`
	MetricsPort    int         `yaml:"metrics_port"`
}

// IngressConfig configures the HTTP frontend binary.
type IngressConfig struct {
	Server         ServerConfig `yaml:"server"`
	NATS           NATSConfig   `yaml:"nats"`
	InputTopic     string       `yaml:"input_topic"`
	PublishTimeout Duration     `yaml:"publish_timeout"`
	DefaultTenant  string       `yaml:"default_tenant"`
	DefaultOrigin  string       `yaml:"default_origin"`
}

// Duration is a yaml-friendly time.Duration.
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax ("5s", "1500ms").
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultProcessorConfig returns the processor defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Stream: "PAYFLOW",
		},
		ConsumerName:   "payflow-processor",
		MaxConcurrency: 1,
		OutputTopic:    "message.updates",
		MetricsPort:    0,
	}
}

// DefaultIngressConfig returns the ingress defaults.
func DefaultIngressConfig() IngressConfig {
	return IngressConfig{
		Server: ServerConfig{
			Hostname: "127.0.0.1",
			Port:     8080,
		},
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Stream: "PAYFLOW",
		},
		InputTopic:     "message.incoming",
		PublishTimeout: Duration(5 * time.Second),
		DefaultTenant:  "tenant1",
		DefaultOrigin:  "api",
	}
}

// Validate checks the processor config for startup-fatal mistakes.
func (c *ProcessorConfig) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats url is required")
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("nats stream is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer name is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongodb uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongodb database is required")
	}
	if len(c.WorkflowIDs) == 0 {
		return fmt.Errorf("at least one workflow id is required")
	}
	if c.OutputTopic == "" {
		return fmt.Errorf("output topic is required")
	}
	return nil
}

// Validate checks the ingress config for startup-fatal mistakes.
func (c *IngressConfig) Validate() error {
	if c.Server.Hostname == "" {
		return fmt.Errorf("server hostname is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats url is required")
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("nats stream is required")
	}
	if c.InputTopic == "" {
		return fmt.Errorf("input topic is required")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive")
	}
	return nil
}
