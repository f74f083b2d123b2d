// Package config loads the worker configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultListen         = ":8080"
	DefaultDBPath         = "assay.db"
	DefaultArtifactRoot   = "artifacts"
	DefaultQueueName      = "jobs:default"
	DefaultPollInterval   = time.Second
	DefaultFeatureSet     = "core_v1"
	DefaultMaxUploadBytes = 10 * 1024 * 1024
)

// WorkerConfig is the on-disk configuration of the feature worker. Every
// field is optional; command-line flags override whatever the file sets.
type WorkerConfig struct {
	// Listeners
	Listen     *string `json:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty"` // empty disables the gRPC server

	// Storage
	DBPath       *string `json:"db_path,omitempty"`
	ArtifactRoot *string `json:"artifact_root,omitempty"`

	// Queue; an empty redis_addr disables the consumer loop
	RedisAddr     *string `json:"redis_addr,omitempty"`
	RedisPassword *string `json:"redis_password,omitempty"`
	RedisDB       *int    `json:"redis_db,omitempty"`
	QueueName     *string `json:"queue_name,omitempty"`
	PollInterval  *string `json:"poll_interval,omitempty"` // duration string like "1s"

	// Extraction
	FeatureSet     *string `json:"feature_set,omitempty"`
	MaxUploadBytes *int64  `json:"max_upload_bytes,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrInt64(v int64) *int64    { return &v }

// EmptyWorkerConfig returns a WorkerConfig with all fields set to nil.
func EmptyWorkerConfig() *WorkerConfig {
	return &WorkerConfig{}
}

// LoadWorkerConfig loads a WorkerConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to defaults through the Get* methods.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyWorkerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *WorkerConfig) Validate() error {
	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}

	if c.RedisDB != nil && *c.RedisDB < 0 {
		return fmt.Errorf("redis_db must be non-negative, got %d", *c.RedisDB)
	}

	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}

	if c.QueueName != nil && strings.TrimSpace(*c.QueueName) == "" {
		return fmt.Errorf("queue_name must not be blank")
	}

	if c.FeatureSet != nil && *c.FeatureSet != DefaultFeatureSet {
		return fmt.Errorf("unsupported feature_set %q (only %q is implemented)", *c.FeatureSet, DefaultFeatureSet)
	}

	return nil
}

// GetListen returns the HTTP listen address or the default.
func (c *WorkerConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC listen address; empty means disabled.
func (c *WorkerConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ""
	}
	return *c.GRPCListen
}

// GetDBPath returns the SQLite database path or the default.
func (c *WorkerConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetArtifactRoot returns the artifact directory or the default.
func (c *WorkerConfig) GetArtifactRoot() string {
	if c.ArtifactRoot == nil || *c.ArtifactRoot == "" {
		return DefaultArtifactRoot
	}
	return *c.ArtifactRoot
}

// GetRedisAddr returns the Redis address; empty means no queue consumer.
func (c *WorkerConfig) GetRedisAddr() string {
	if c.RedisAddr == nil {
		return ""
	}
	return *c.RedisAddr
}

// GetRedisPassword returns the Redis password, empty by default.
func (c *WorkerConfig) GetRedisPassword() string {
	if c.RedisPassword == nil {
		return ""
	}
	return *c.RedisPassword
}

// GetRedisDB returns the Redis logical database number.
func (c *WorkerConfig) GetRedisDB() int {
	if c.RedisDB == nil {
		return 0
	}
	return *c.RedisDB
}

// GetQueueName returns the Redis list key jobs are popped from.
func (c *WorkerConfig) GetQueueName() string {
	if c.QueueName == nil || *c.QueueName == "" {
		return DefaultQueueName
	}
	return *c.QueueName
}

// GetPollInterval parses and returns the PollInterval as a time.Duration.
func (c *WorkerConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval // default on parse error
	}
	return d
}

// GetFeatureSet returns the feature set name computed by the worker.
func (c *WorkerConfig) GetFeatureSet() string {
	if c.FeatureSet == nil || *c.FeatureSet == "" {
		return DefaultFeatureSet
	}
	return *c.FeatureSet
}

// GetMaxUploadBytes returns the largest artifact body accepted over HTTP.
func (c *WorkerConfig) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return DefaultMaxUploadBytes
	}
	return *c.MaxUploadBytes
}

// SetListen, SetDBPath and friends apply command-line overrides.
func (c *WorkerConfig) SetListen(v string)       { c.Listen = ptrString(v) }
func (c *WorkerConfig) SetGRPCListen(v string)   { c.GRPCListen = ptrString(v) }
func (c *WorkerConfig) SetDBPath(v string)       { c.DBPath = ptrString(v) }
func (c *WorkerConfig) SetArtifactRoot(v string) { c.ArtifactRoot = ptrString(v) }
func (c *WorkerConfig) SetRedisAddr(v string)    { c.RedisAddr = ptrString(v) }
func (c *WorkerConfig) SetRedisDB(v int)         { c.RedisDB = ptrInt(v) }
func (c *WorkerConfig) SetMaxUploadBytes(v int64) {
	c.MaxUploadBytes = ptrInt64(v)
}
