// Package config holds the user facing settings of a store and resolves
// them to a base directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/filekv/internal/cipher"
	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/serial"
)

// AppName is the directory created under the user cache and config
// directories.
const AppName = "filekv"

// PathType selects how the base directory is resolved.
type PathType string

const (
	// PathRoot is the current working directory.
	PathRoot PathType = "root"
	// PathAssets is the working area root, see Settings.WorkingArea.
	PathAssets PathType = "assets"
	// PathCustom is Settings.Path.
	PathCustom PathType = "custom"
	// PathDefault is the per-user cache directory.
	PathDefault PathType = "default"
	// PathPersistent is the per-user configuration directory.
	PathPersistent PathType = "persistent"
)

// PathTypes lists the valid PathType values.
var PathTypes = []PathType{PathRoot, PathAssets, PathCustom, PathDefault, PathPersistent}

// ParsePathType parses a case insensitive PathType name.
func ParsePathType(s string) (PathType, error) {
	p := PathType(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range PathTypes {
		if p == v {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid path type %q", s)
}

// Settings configures a store.
type Settings struct {
	AutoSave      bool     `json:"auto_save,omitempty" yaml:"auto_save,omitempty" jsonschema:"description=Persist the document after every mutation"`
	Encryption    bool     `json:"encryption,omitempty" yaml:"encryption,omitempty" jsonschema:"description=Encrypt the file with AES-CBC"`
	Key           string   `json:"key,omitempty" yaml:"key,omitempty" jsonschema:"description=Cipher key; 16 or 24 or 32 bytes"`
	Path          string   `json:"path,omitempty" yaml:"path,omitempty" jsonschema:"description=Base directory when path_type is custom"`
	PathType      PathType `json:"path_type,omitempty" yaml:"path_type,omitempty" jsonschema:"enum=root,enum=assets,enum=custom,enum=default,enum=persistent"`
	WorkingArea   string   `json:"working_area,omitempty" yaml:"working_area,omitempty" jsonschema:"description=Base directory when path_type is assets"`
	Extension     string   `json:"extension,omitempty" yaml:"extension,omitempty" jsonschema:"pattern=^[A-Za-z0-9_.-]+$"`
	Serializer    string   `json:"serializer,omitempty" yaml:"serializer,omitempty" jsonschema:"enum=json,enum=yaml,enum=strict"`
	CacheReads    bool     `json:"cache_reads,omitempty" yaml:"cache_reads,omitempty" jsonschema:"description=Only reload after an external change settled"`
	QuietPeriodMS int      `json:"quiet_period_ms,omitempty" yaml:"quiet_period_ms,omitempty" jsonschema:"minimum=1"`
	LockRetries   int      `json:"lock_retries,omitempty" yaml:"lock_retries,omitempty" jsonschema:"minimum=1"`
	// LockDelayMS is always encoded: 0 is valid and differs from the default.
	LockDelayMS   int      `json:"lock_delay_ms" yaml:"lock_delay_ms" jsonschema:"minimum=0"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Key:           cipher.DefaultKey,
		PathType:      PathPersistent,
		Extension:     "json",
		Serializer:    "json",
		QuietPeriodMS: 1000,
		LockRetries:   3,
		LockDelayMS:   100,
	}
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if _, err := ParsePathType(string(s.PathType)); err != nil {
		return err
	}
	if s.PathType == PathCustom && s.Path == "" {
		return errors.New("path is required when path_type is custom")
	}
	ext := s.ext()
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return fmt.Errorf("invalid extension %q", s.Extension)
	}
	if _, err := serial.Lookup(s.Serializer); err != nil {
		return err
	}
	if s.Encryption && !cipher.ValidKey(s.Key) {
		return errs.Newf(errs.CodeCipherInit, "key must be 16, 24 or 32 bytes, got %d", len(s.Key))
	}
	if s.QuietPeriodMS < 1 {
		return fmt.Errorf("quiet_period_ms must be positive, got %d", s.QuietPeriodMS)
	}
	if s.LockRetries < 1 {
		return fmt.Errorf("lock_retries must be positive, got %d", s.LockRetries)
	}
	if s.LockDelayMS < 0 {
		return fmt.Errorf("lock_delay_ms must not be negative, got %d", s.LockDelayMS)
	}
	return nil
}

func (s *Settings) ext() string {
	return strings.TrimPrefix(s.Extension, ".")
}

// FileName returns name with the configured extension.
func (s *Settings) FileName(name string) string {
	return name + "." + s.ext()
}

// QuietPeriod returns the settle delay of the file monitor.
func (s *Settings) QuietPeriod() time.Duration {
	return time.Duration(s.QuietPeriodMS) * time.Millisecond
}

// LockDelay returns the pause between lock probe attempts.
func (s *Settings) LockDelay() time.Duration {
	return time.Duration(s.LockDelayMS) * time.Millisecond
}

// BaseDir resolves PathType to a directory.
func (s *Settings) BaseDir() (string, error) {
	switch s.PathType {
	case PathRoot:
		return os.Getwd()
	case PathAssets:
		if s.WorkingArea != "" {
			return filepath.Abs(s.WorkingArea)
		}
		return os.Getwd()
	case PathCustom:
		if s.Path == "" {
			return "", errors.New("path is required when path_type is custom")
		}
		return filepath.Abs(s.Path)
	case PathDefault:
		d, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to find cache directory: %w", err)
		}
		return filepath.Join(d, AppName), nil
	case PathPersistent, "":
		d, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to find config directory: %w", err)
		}
		return filepath.Join(d, AppName), nil
	}
	return "", fmt.Errorf("invalid path type %q", s.PathType)
}
