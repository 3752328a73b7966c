package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
telegram:
  token: "123:abc"
providers:
  endpoints:
    - name: "primary"
      base_url: "https://api.example.com/v1"
      api_key: "k1"
      model: "gpt-test"
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q, want %q", cfg.Telegram.Token, "123:abc")
	}
	if cfg.Logger.Level != DefaultLogLevel {
		t.Errorf("logger level = %q, want default %q", cfg.Logger.Level, DefaultLogLevel)
	}
	if cfg.RateLimit.Cooldown != DefaultCooldown {
		t.Errorf("cooldown = %v, want default %v", cfg.RateLimit.Cooldown, DefaultCooldown)
	}
	if cfg.Delivery.MaxChunkSize != DefaultMaxChunkSize {
		t.Errorf("max chunk size = %d, want default %d", cfg.Delivery.MaxChunkSize, DefaultMaxChunkSize)
	}
	if cfg.Delivery.PaceInterval != DefaultPaceInterval {
		t.Errorf("pace interval = %v, want default %v", cfg.Delivery.PaceInterval, DefaultPaceInterval)
	}
	if cfg.Messages.Welcome != DefaultMessages.Welcome {
		t.Errorf("welcome message = %q, want default", cfg.Messages.Welcome)
	}

	// Endpoint defaults are filled per element after unmarshal.
	if len(cfg.Providers.Endpoints) != 1 {
		t.Fatalf("got %d endpoints, want 1", len(cfg.Providers.Endpoints))
	}
	ep := cfg.Providers.Endpoints[0]
	if ep.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("connect timeout = %v, want default %v", ep.ConnectTimeout, DefaultConnectTimeout)
	}
	if ep.TotalTimeout != DefaultTotalTimeout {
		t.Errorf("total timeout = %v, want default %v", ep.TotalTimeout, DefaultTotalTimeout)
	}
	if ep.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want default %d", ep.MaxRetries, DefaultMaxRetries)
	}
	if ep.BackoffBase != DefaultBackoffBase {
		t.Errorf("backoff base = %v, want default %v", ep.BackoffBase, DefaultBackoffBase)
	}
}

func TestLoadConfigExplicitValues(t *testing.T) {
	content := minimalConfig + `
rate_limit:
  cooldown: 30s
delivery:
  max_chunk_size: 2000
  pace_interval: 1s
`
	cfg, err := LoadConfig(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.RateLimit.Cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", cfg.RateLimit.Cooldown)
	}
	if cfg.Delivery.MaxChunkSize != 2000 {
		t.Errorf("max chunk size = %d, want 2000", cfg.Delivery.MaxChunkSize)
	}
	if cfg.Delivery.PaceInterval != time.Second {
		t.Errorf("pace interval = %v, want 1s", cfg.Delivery.PaceInterval)
	}
}

func TestLoadConfigZeroMaxRetries(t *testing.T) {
	content := `
telegram:
  token: "123:abc"
providers:
  endpoints:
    - name: "primary"
      base_url: "https://api.example.com/v1"
      model: "gpt-test"
      max_retries: 0
    - name: "secondary"
      base_url: "https://api.example.org/v1"
      model: "gpt-test"
`
	cfg, err := LoadConfig(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// An explicit zero means no retries and must not be promoted to the
	// default; an absent key still gets the default.
	if got := cfg.Providers.Endpoints[0].MaxRetries; got != 0 {
		t.Errorf("explicit max_retries 0 became %d", got)
	}
	if got := cfg.Providers.Endpoints[1].MaxRetries; got != DefaultMaxRetries {
		t.Errorf("unset max_retries = %d, want default %d", got, DefaultMaxRetries)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing token",
			content: `
providers:
  endpoints:
    - name: "primary"
      base_url: "https://api.example.com/v1"
      model: "gpt-test"
`,
		},
		{
			name: "no endpoints",
			content: `
telegram:
  token: "123:abc"
providers:
  endpoints: []
`,
		},
		{
			name: "endpoint without base url",
			content: `
telegram:
  token: "123:abc"
providers:
  endpoints:
    - name: "primary"
      model: "gpt-test"
`,
		},
		{
			name: "bad log level",
			content: minimalConfig + `
logger:
  level: "verbose"
`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfigFile(t, tt.content)); err == nil {
				t.Error("LoadConfig should fail validation")
			}
		})
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfigFile(t, "telegram: [unclosed")); err == nil {
		t.Error("LoadConfig should fail on malformed YAML")
	}
}
