// Package config loads the YAML configuration of a content store process.
//
// Example document:
//
//	log:
//	  level: info
//	  format: json
//	datastore:
//	  name: s3
//	  options:
//	    bucket_name: assets
//	    access_key_id: ${AWS_ACCESS_KEY_ID}
//	    secret_access_key: ${AWS_SECRET_ACCESS_KEY}
//	    region: eu-west-1
//	server:
//	  addr: ":8080"
//
// ${VAR} references are expanded from the environment before parsing.
// The datastore options are kept as a raw node and decoded by the data
// store that is selected by name.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/logger"
)

const (
	DefaultDataStore       = "s3"
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the top-level configuration document.
type Config struct {
	Log       logger.Config   `yaml:"log"`
	DataStore DataStoreConfig `yaml:"datastore"`
	Server    ServerConfig    `yaml:"server"`
}

// DataStoreConfig selects a data store and carries its options.
type DataStoreConfig struct {
	Name    string    `yaml:"name"`
	Options yaml.Node `yaml:"options"`
}

// Decode fills v from the options node. Missing options leave v untouched.
func (d *DataStoreConfig) Decode(v any) error {
	if d.Options.Kind == 0 {
		return nil
	}
	return d.Options.Decode(v)
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
	}
	return Parse(data)
}

// Parse expands environment references in data, parses it and applies
// defaults. The result is validated.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.DataStore.Name == "" {
		c.DataStore.Name = DefaultDataStore
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks settings that can be checked without a data store.
func (c *Config) Validate() error {
	var problems []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		problems = append(problems, fmt.Errorf("log.level %q is not one of debug, info, warn, error, fatal", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Errorf("log.format %q is not one of json, console", c.Log.Format))
	}
	if k := c.DataStore.Options.Kind; k != 0 && k != yaml.MappingNode {
		problems = append(problems, errors.New("datastore.options must be a mapping"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		problems = append(problems, errors.New("server timeouts must not be negative"))
	}

	if len(problems) > 0 {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid config", errors.Join(problems...))
	}
	return nil
}
