package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds a helper invocation when the manifest does not set one.
const DefaultTimeout = 10 * time.Second

// Kind is the capability a manifest provides.
type Kind string

const (
	KindValidator Kind = "validator"
	KindHandler   Kind = "handler"
)

// Manifest describes an external helper program.
type Manifest struct {
	Kind        Kind              `yaml:"kind" json:"kind"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Timeout     string            `yaml:"timeout" json:"timeout"`
	Description string            `yaml:"description" json:"description"`
}

// LoadManifest reads a helper manifest (YAML or JSON) and validates it.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read helper manifest: %w", err)
	}

	var m Manifest
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Validate checks the manifest fields.
func (m Manifest) Validate() error {
	var errs []error
	switch m.Kind {
	case KindValidator, KindHandler:
	case "":
		errs = append(errs, errors.New("kind is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown kind %q", m.Kind))
	}
	if m.Command == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if m.Timeout != "" {
		if d, err := time.ParseDuration(m.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("invalid timeout %q", m.Timeout))
		}
	}
	return errors.Join(errs...)
}

// TimeoutDuration returns the invocation timeout.
func (m Manifest) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(m.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}
