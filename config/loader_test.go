package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader() *Loader {
	return NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// setProcessorEnv supplies the fields that have no default and would
// otherwise fail validation.
func setProcessorEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvMongoURI, "mongodb://127.0.0.1:27017")
	t.Setenv(EnvMongoDatabase, "payflow")
	t.Setenv(EnvWorkflowIDs, "wf-1")
}

func TestLoadProcessorDefaults(t *testing.T) {
	setProcessorEnv(t)

	cfg, err := testLoader().LoadProcessor("")
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "PAYFLOW", cfg.NATS.Stream)
	assert.Equal(t, "payflow-processor", cfg.ConsumerName)
	assert.Equal(t, int64(1), cfg.MaxConcurrency)
	assert.Equal(t, "message.updates", cfg.OutputTopic)
	assert.Equal(t, []string{"wf-1"}, cfg.WorkflowIDs)
}

func TestLoadProcessorEnvOverrides(t *testing.T) {
	setProcessorEnv(t)
	t.Setenv(EnvNATSURL, "nats://broker:4222")
	t.Setenv(EnvConsumerName, "payflow-eu")
	t.Setenv(EnvMaxConcurrency, "8")
	t.Setenv(EnvOutputTopic, "payments.processed")
	t.Setenv(EnvWorkflowIDs, "wf-1, wf-2 ,,wf-3")

	cfg, err := testLoader().LoadProcessor("")
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "payflow-eu", cfg.ConsumerName)
	assert.Equal(t, int64(8), cfg.MaxConcurrency)
	assert.Equal(t, "payments.processed", cfg.OutputTopic)
	assert.Equal(t, []string{"wf-1", "wf-2", "wf-3"}, cfg.WorkflowIDs)
}

func TestLoadProcessorFileLayer(t *testing.T) {
	setProcessorEnv(t)

	path := filepath.Join(t.TempDir(), "processor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats:
  url: nats://from-file:4222
consumer_name: from-file
max_concurrency: 4
`), 0o600))

	cfg, err := testLoader().LoadProcessor(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://from-file:4222", cfg.NATS.URL)
	assert.Equal(t, "from-file", cfg.ConsumerName)
	assert.Equal(t, int64(4), cfg.MaxConcurrency)
	// Untouched fields keep their defaults.
	assert.Equal(t, "PAYFLOW", cfg.NATS.Stream)
}

func TestLoadProcessorEnvBeatsFile(t *testing.T) {
	setProcessorEnv(t)
	t.Setenv(EnvConsumerName, "from-env")

	path := filepath.Join(t.TempDir(), "processor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consumer_name: from-file\n"), 0o600))

	cfg, err := testLoader().LoadProcessor(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ConsumerName)
}

func TestLoadProcessorMissingFileFallsBack(t *testing.T) {
	setProcessorEnv(t)

	cfg, err := testLoader().LoadProcessor(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "payflow-processor", cfg.ConsumerName)
}

func TestLoadProcessorValidation(t *testing.T) {
	tests := []struct {
		name string
		mut  func(t *testing.T)
	}{
		{"missing mongo uri", func(t *testing.T) { t.Setenv(EnvMongoURI, "") }},
		{"missing workflow ids", func(t *testing.T) { t.Setenv(EnvWorkflowIDs, "") }},
		{"zero concurrency", func(t *testing.T) { t.Setenv(EnvMaxConcurrency, "0") }},
		{"bad concurrency", func(t *testing.T) { t.Setenv(EnvMaxConcurrency, "lots") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setProcessorEnv(t)
			tt.mut(t)
			_, err := testLoader().LoadProcessor("")
			require.Error(t, err)
		})
	}
}

func TestLoadIngressDefaults(t *testing.T) {
	cfg, err := testLoader().LoadIngress("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Hostname)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "message.incoming", cfg.InputTopic)
	assert.Equal(t, Duration(5*time.Second), cfg.PublishTimeout)
	assert.Equal(t, "tenant1", cfg.DefaultTenant)
	assert.Equal(t, "api", cfg.DefaultOrigin)
}

func TestLoadIngressEnvOverrides(t *testing.T) {
	t.Setenv(EnvServerHostname, "0.0.0.0")
	t.Setenv(EnvServerPort, "9090")
	t.Setenv(EnvInputTopic, "payments.sepa")
	t.Setenv(EnvPublishTimeout, "1500")
	t.Setenv(EnvDefaultTenant, "acme-bank")

	cfg, err := testLoader().LoadIngress("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Hostname)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "payments.sepa", cfg.InputTopic)
	assert.Equal(t, Duration(1500*time.Millisecond), cfg.PublishTimeout)
	assert.Equal(t, "acme-bank", cfg.DefaultTenant)
}

func TestLoadIngressValidation(t *testing.T) {
	t.Setenv(EnvServerPort, "70000")
	_, err := testLoader().LoadIngress("")
	require.Error(t, err)
}

func TestDurationYAML(t *testing.T) {
	var cfg IngressConfig
	path := filepath.Join(t.TempDir(), "ingress.yaml")
	require.NoError(t, os.WriteFile(path, []byte("publish_timeout: 750ms\n"), 0o600))
	require.NoError(t, testLoader().loadFile(path, &cfg))
	assert.Equal(t, Duration(750*time.Millisecond), cfg.PublishTimeout)

	require.NoError(t, os.WriteFile(path, []byte("publish_timeout: fast\n"), 0o600))
	assert.Error(t, testLoader().loadFile(path, &cfg))
}
