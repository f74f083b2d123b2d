package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyWorkerConfigDefaults(t *testing.T) {
	cfg := EmptyWorkerConfig()

	if got := cfg.GetListen(); got != ":8080" {
		t.Errorf("GetListen() = %q, want :8080", got)
	}
	if got := cfg.GetGRPCListen(); got != "" {
		t.Errorf("GetGRPCListen() = %q, want empty", got)
	}
	if got := cfg.GetDBPath(); got != "assay.db" {
		t.Errorf("GetDBPath() = %q, want assay.db", got)
	}
	if got := cfg.GetArtifactRoot(); got != "artifacts" {
		t.Errorf("GetArtifactRoot() = %q, want artifacts", got)
	}
	if got := cfg.GetRedisAddr(); got != "" {
		t.Errorf("GetRedisAddr() = %q, want empty", got)
	}
	if got := cfg.GetQueueName(); got != "jobs:default" {
		t.Errorf("GetQueueName() = %q, want jobs:default", got)
	}
	if got := cfg.GetPollInterval(); got != time.Second {
		t.Errorf("GetPollInterval() = %v, want 1s", got)
	}
	if got := cfg.GetFeatureSet(); got != "core_v1" {
		t.Errorf("GetFeatureSet() = %q, want core_v1", got)
	}
	if got := cfg.GetMaxUploadBytes(); got != 10*1024*1024 {
		t.Errorf("GetMaxUploadBytes() = %d, want 10MB", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should be valid: %v", err)
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	path := writeConfig(t, "worker.json", `{
  "listen": "127.0.0.1:9000",
  "grpc_listen": ":9001",
  "db_path": "/var/lib/assay/assay.db",
  "redis_addr": "localhost:6379",
  "redis_db": 2,
  "queue_name": "jobs:high",
  "poll_interval": "250ms",
  "max_upload_bytes": 1024
}`)

	cfg, err := LoadWorkerConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetListen(); got != "127.0.0.1:9000" {
		t.Errorf("GetListen() = %q", got)
	}
	if got := cfg.GetGRPCListen(); got != ":9001" {
		t.Errorf("GetGRPCListen() = %q", got)
	}
	if got := cfg.GetDBPath(); got != "/var/lib/assay/assay.db" {
		t.Errorf("GetDBPath() = %q", got)
	}
	if got := cfg.GetRedisAddr(); got != "localhost:6379" {
		t.Errorf("GetRedisAddr() = %q", got)
	}
	if got := cfg.GetRedisDB(); got != 2 {
		t.Errorf("GetRedisDB() = %d", got)
	}
	if got := cfg.GetQueueName(); got != "jobs:high" {
		t.Errorf("GetQueueName() = %q", got)
	}
	if got := cfg.GetPollInterval(); got != 250*time.Millisecond {
		t.Errorf("GetPollInterval() = %v", got)
	}
	if got := cfg.GetMaxUploadBytes(); got != 1024 {
		t.Errorf("GetMaxUploadBytes() = %d", got)
	}
	// Omitted fields keep their defaults.
	if got := cfg.GetArtifactRoot(); got != "artifacts" {
		t.Errorf("GetArtifactRoot() = %q, want default", got)
	}
}

func TestLoadWorkerConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "worker.yaml", `{}`, ".json extension"},
		{"bad json", "worker.json", `{"listen":`, "failed to parse config JSON"},
		{"bad poll interval", "worker.json", `{"poll_interval":"soon"}`, "invalid poll_interval"},
		{"negative poll interval", "worker.json", `{"poll_interval":"-1s"}`, "poll_interval must be positive"},
		{"negative redis db", "worker.json", `{"redis_db":-1}`, "redis_db must be non-negative"},
		{"zero upload limit", "worker.json", `{"max_upload_bytes":0}`, "max_upload_bytes must be positive"},
		{"blank queue", "worker.json", `{"queue_name":"  "}`, "queue_name must not be blank"},
		{"unknown feature set", "worker.json", `{"feature_set":"core_v2"}`, "unsupported feature_set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadWorkerConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWorkerConfig_MissingFile(t *testing.T) {
	_, err := LoadWorkerConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to stat config file") {
		t.Errorf("expected stat error, got %v", err)
	}
}

func TestLoadWorkerConfig_TooLarge(t *testing.T) {
	big := `{"listen":"` + strings.Repeat("x", 1024*1024) + `"}`
	path := writeConfig(t, "big.json", big)
	_, err := LoadWorkerConfig(path)
	if err == nil || !strings.Contains(err.Error(), "config file too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestOverrides(t *testing.T) {
	cfg := EmptyWorkerConfig()
	cfg.SetListen(":1")
	cfg.SetGRPCListen(":2")
	cfg.SetDBPath("x.db")
	cfg.SetArtifactRoot("/tmp/a")
	cfg.SetRedisAddr("r:6379")
	cfg.SetRedisDB(3)
	cfg.SetMaxUploadBytes(5)

	if cfg.GetListen() != ":1" || cfg.GetGRPCListen() != ":2" || cfg.GetDBPath() != "x.db" ||
		cfg.GetArtifactRoot() != "/tmp/a" || cfg.GetRedisAddr() != "r:6379" ||
		cfg.GetRedisDB() != 3 || cfg.GetMaxUploadBytes() != 5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
