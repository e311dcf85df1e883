package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile is a named environment configuration loaded from
// profile_<name>.yaml. Values here override Config defaults.
type DeploymentProfile struct {
	Name      string          `yaml:"name" json:"name"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Workflow  WorkflowConfig  `yaml:"workflow" json:"workflow"`
	Archive   ArchiveConfig   `yaml:"archive" json:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Approval  ApprovalConfig  `yaml:"approval" json:"approval"`
}

// StoreConfig selects the manifest store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "postgres" | "sqlite" | "memory"
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// WorkflowConfig selects the instance store backend.
type WorkflowConfig struct {
	Backend      string `yaml:"backend" json:"backend"` // "memory" | "redis"
	RedisAddr    string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisDB      int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
	HistoryLimit int    `yaml:"history_limit,omitempty" json:"history_limit,omitempty"`
}

// ArchiveConfig selects the bundle object store.
type ArchiveConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "fs" | "s3" | "gcs"
	Bucket  string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region  string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix  string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	Insecure   bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// ApprovalConfig tunes approval token issuance.
type ApprovalConfig struct {
	TokenTTLMinutes int `yaml:"token_ttl_minutes,omitempty" json:"token_ttl_minutes,omitempty"`
}

// LoadProfile reads profile_<name>.yaml from the profiles directory.
func LoadProfile(profilesDir, name string) (*DeploymentProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return &profile, nil
}

// LoadAllProfiles reads every profile_*.yaml under the directory,
// keyed by profile name.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.Name == "" {
			base := filepath.Base(path)
			profile.Name = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Name] = &profile
	}
	return profiles, nil
}
