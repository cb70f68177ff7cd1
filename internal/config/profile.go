package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the on-disk CLI configuration. Empty fields leave the
// environment-derived values untouched.
type Profile struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
	Admin   *bool  `yaml:"admin"`
}

// LoadProfile reads a YAML profile. A missing file yields an empty profile.
func LoadProfile(path string) (Profile, error) {
	var profile Profile
	if path == "" {
		return profile, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile, nil
		}
		return profile, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(content, &profile); err != nil {
		return profile, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return profile, nil
}

// Apply overlays the profile onto cfg.
func (p Profile) Apply(cfg *ClientConfig) error {
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	if p.Token != "" {
		cfg.Token = p.Token
	}
	if p.Timeout != "" {
		timeout, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return fmt.Errorf("invalid profile timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if p.Admin != nil {
		cfg.Admin = *p.Admin
	}
	return nil
}
