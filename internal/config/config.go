// Package config reads the YAML session configuration used by the storesync CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/vmaark/storesync/internal/protocol"
	"github.com/vmaark/storesync/types"
)

const (
	DefaultURI               = "http://localhost:3000"
	DefaultTablesFile        = "tables.yaml"
	DefaultLogLevel          = logrus.InfoLevel
	DefaultCompression       = protocol.CompressionGzip
	DefaultRetryAttempts     = 1
	DefaultUnknownTableDedup = 128
)

func nillableStrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RetryYAMLConfig controls how often the initial connection is attempted.
type RetryYAMLConfig struct {
	MaxAttempts *int    `yaml:"max_attempts,omitempty"`
	BackoffStr  *string `yaml:"backoff,omitempty"`
}

// YAMLConfig is the on-disk session configuration. Unset fields fall back to
// the defaults above. Values may reference environment variables as ${VAR}
// or ${VAR:-default}; a bare $ is kept literally.
type YAMLConfig struct {
	URIStr               *string          `yaml:"uri,omitempty"`
	StoreAddressStr      *string          `yaml:"store_address,omitempty"`
	TokenStr             *string          `yaml:"token,omitempty"`
	TablesFileStr        *string          `yaml:"tables_file,omitempty"`
	Tables               []string         `yaml:"tables,omitempty"`
	FromBlockNum         *uint64          `yaml:"from_block,omitempty"`
	CompressionStr       *string          `yaml:"compression,omitempty"`
	LogLevelStr          *string          `yaml:"log_level,omitempty"`
	UnknownTableDedupNum *int             `yaml:"unknown_table_dedup,omitempty"`
	ConnectRetry         *RetryYAMLConfig `yaml:"connect_retry,omitempty"`
}

// NewYAMLConfig parses configFileData. Unknown keys are an error.
func NewYAMLConfig(configFileData []byte) (*YAMLConfig, error) {
	var cfg YAMLConfig
	expanded, err := expandEnv(string(configFileData))
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	if cfg.LogLevelStr != nil {
		level := strings.ToLower(*cfg.LogLevelStr)
		cfg.LogLevelStr = &level
	}
	return &cfg, nil
}

// FromFile reads and validates the config at path. A relative tables_file is
// resolved against the config file's directory.
func FromFile(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, err := NewYAMLConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	tables := cfg.TablesFile()
	if !filepath.IsAbs(tables) {
		cfg.TablesFileStr = nillableStrPtr(filepath.Join(filepath.Dir(path), tables))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

func (cfg YAMLConfig) URI() string {
	if cfg.URIStr == nil || *cfg.URIStr == "" {
		return DefaultURI
	}
	return *cfg.URIStr
}

func (cfg YAMLConfig) StoreAddress() string {
	if cfg.StoreAddressStr == nil {
		return ""
	}
	return *cfg.StoreAddressStr
}

func (cfg YAMLConfig) Token() string {
	if cfg.TokenStr == nil {
		return ""
	}
	return *cfg.TokenStr
}

func (cfg YAMLConfig) TablesFile() string {
	if cfg.TablesFileStr == nil || *cfg.TablesFileStr == "" {
		return DefaultTablesFile
	}
	return *cfg.TablesFileStr
}

func (cfg YAMLConfig) FromBlock() uint64 {
	if cfg.FromBlockNum == nil {
		return 0
	}
	return *cfg.FromBlockNum
}

func (cfg YAMLConfig) Compression() protocol.Compression {
	if cfg.CompressionStr == nil {
		return DefaultCompression
	}
	switch strings.ToLower(*cfg.CompressionStr) {
	case "none":
		return protocol.CompressionNone
	case "gzip":
		return protocol.CompressionGzip
	default:
		return protocol.Compression(*cfg.CompressionStr)
	}
}

func (cfg YAMLConfig) LogLevel() logrus.Level {
	if cfg.LogLevelStr == nil {
		return DefaultLogLevel
	}
	level, err := logrus.ParseLevel(*cfg.LogLevelStr)
	if err != nil {
		return DefaultLogLevel
	}
	return level
}

func (cfg YAMLConfig) UnknownTableDedup() int {
	if cfg.UnknownTableDedupNum == nil {
		return DefaultUnknownTableDedup
	}
	return *cfg.UnknownTableDedupNum
}

// Retry returns the connect attempt count and the pause between attempts.
func (cfg YAMLConfig) Retry() (int, time.Duration) {
	attempts, backoff := DefaultRetryAttempts, time.Duration(0)
	if cfg.ConnectRetry == nil {
		return attempts, backoff
	}
	if cfg.ConnectRetry.MaxAttempts != nil {
		attempts = *cfg.ConnectRetry.MaxAttempts
	}
	if cfg.ConnectRetry.BackoffStr != nil {
		// Validate rejects unparsable durations.
		backoff, _ = time.ParseDuration(*cfg.ConnectRetry.BackoffStr)
	}
	return attempts, backoff
}

// Validate checks the fields that have no usable default.
func (cfg YAMLConfig) Validate() error {
	if cfg.StoreAddress() == "" {
		return fmt.Errorf("store_address is required")
	}
	if _, err := types.ParseAddress(cfg.StoreAddress()); err != nil {
		return fmt.Errorf("store_address: %w", err)
	}
	if cfg.LogLevelStr != nil {
		if _, err := logrus.ParseLevel(*cfg.LogLevelStr); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c := cfg.Compression(); c != protocol.CompressionNone && c != protocol.CompressionGzip {
		return fmt.Errorf("compression: unsupported value %q", c)
	}
	if cfg.UnknownTableDedupNum != nil && *cfg.UnknownTableDedupNum <= 0 {
		return fmt.Errorf("unknown_table_dedup must be positive")
	}
	if cfg.ConnectRetry != nil {
		if cfg.ConnectRetry.MaxAttempts != nil && *cfg.ConnectRetry.MaxAttempts <= 0 {
			return fmt.Errorf("connect_retry.max_attempts must be positive")
		}
		if cfg.ConnectRetry.BackoffStr != nil {
			if _, err := time.ParseDuration(*cfg.ConnectRetry.BackoffStr); err != nil {
				return fmt.Errorf("connect_retry.backoff: %w", err)
			}
		}
	}
	return nil
}

// String renders the config as YAML with the token masked.
func (cfg YAMLConfig) String() string {
	if cfg.TokenStr != nil && *cfg.TokenStr != "" {
		cfg.TokenStr = nillableStrPtr("********")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "Failed to marshal as yaml: " + err.Error()
	}
	return string(data)
}
