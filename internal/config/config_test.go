// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:3000"

auth:
  api_secret: "super-secret"

webhook:
  url: "https://example.com/wa-events"
  timeout: "5s"
  max_in_flight: 16

whatsapp:
  driver: "sim"
  store_dir: "./sessions"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:3000" {
		t.Errorf("HTTPAddr = %q, want 0.0.0.0:3000", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.APISecret != "super-secret" {
		t.Errorf("APISecret = %q, want super-secret", cfg.Auth.APISecret)
	}
	if cfg.Webhook.URL != "https://example.com/wa-events" {
		t.Errorf("Webhook.URL = %q", cfg.Webhook.URL)
	}
	if cfg.Webhook.Timeout != 5*time.Second {
		t.Errorf("Webhook.Timeout = %v, want 5s", cfg.Webhook.Timeout)
	}
	if cfg.Webhook.MaxInFlight != 16 {
		t.Errorf("Webhook.MaxInFlight = %d, want 16", cfg.Webhook.MaxInFlight)
	}
	if cfg.WhatsApp.Driver != "sim" {
		t.Errorf("WhatsApp.Driver = %q, want sim", cfg.WhatsApp.Driver)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_API_SECRET", "expanded-secret")

	configPath := writeConfig(t, `
auth:
  api_secret: "${TEST_API_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Auth.APISecret != "expanded-secret" {
		t.Errorf("APISecret = %q, want expanded-secret", cfg.Auth.APISecret)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  api_secret: "s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.HTTPAddr != ":3000" {
		t.Errorf("default HTTPAddr = %q, want :3000", cfg.Server.HTTPAddr)
	}
	if cfg.Webhook.Timeout != 10*time.Second {
		t.Errorf("default Webhook.Timeout = %v, want 10s", cfg.Webhook.Timeout)
	}
	if cfg.Webhook.MaxInFlight != 32 {
		t.Errorf("default Webhook.MaxInFlight = %d, want 32", cfg.Webhook.MaxInFlight)
	}
	if cfg.WhatsApp.Driver != "whatsmeow" {
		t.Errorf("default WhatsApp.Driver = %q, want whatsmeow", cfg.WhatsApp.Driver)
	}
}

func TestLoad_MissingAPISecret(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":3000"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded without api_secret, want error")
	}
	if !strings.Contains(err.Error(), "api_secret") {
		t.Errorf("error %q does not mention api_secret", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  api_secret: "s"
webhook:
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded with invalid duration, want error")
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  api_secret: "s"
whatsapp:
  driver: "venom"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded with unknown driver, want error")
	}
}

func TestLoad_TailscaleRequiresHostname(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  api_secret: "s"
tailscale:
  enabled: true
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded without tailscale hostname, want error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded for missing file, want error")
	}
}
