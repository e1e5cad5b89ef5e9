package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional yaml configuration file for the sync command.
// Flags set explicitly on the command line take precedence over file
// values.
type Config struct {
	MongoDBURI  string   `yaml:"mongodb_uri"`
	TenantIDs   []string `yaml:"tenant_ids"`
	TenantLimit string   `yaml:"tenant_limit"`
	Mode        string   `yaml:"mode"`
	Journal     string   `yaml:"journal"`
}

// LoadConfig reads and parses a yaml config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig fills sync options from a config file for every flag the
// user did not set explicitly. changed reports whether a flag was set
// on the command line.
func applyConfig(opts *SyncOptions, cfg Config, changed func(name string) bool) {
	if !changed("mongodb-uri") && cfg.MongoDBURI != "" {
		opts.MongoDBURI = cfg.MongoDBURI
	}
	if !changed("tenant-id") && len(cfg.TenantIDs) > 0 {
		opts.TenantIDs = cfg.TenantIDs
	}
	if !changed("tenant-limit") && cfg.TenantLimit != "" {
		opts.TenantLimit = cfg.TenantLimit
	}
	if !changed("mode") && cfg.Mode != "" {
		opts.Mode = cfg.Mode
	}
	if !changed("journal") && cfg.Journal != "" {
		opts.Journal = cfg.Journal
	}
}
