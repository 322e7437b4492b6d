package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML settings document on top of Defaults and validates
// it. Unknown keys and values of the wrong type are rejected.
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if len(bytes.TrimSpace(data)) != 0 {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
		}
		if doc != nil {
			if err := validateDocument(doc); err != nil {
				return Settings{}, err
			}
			if err := yaml.Unmarshal(data, &s); err != nil {
				return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
			}
		}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses the settings file at path.
func Load(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path is provided by the user
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	s, err := Parse(b)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes s as YAML to path, creating parent directories.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for user data directories
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
