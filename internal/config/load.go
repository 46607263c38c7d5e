package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// ErrConfigValidation is a sentinel that wraps config validation failures
// (as opposed to TOML syntax or filesystem errors).
var ErrConfigValidation = errors.New("config validation failed")

var expandPath = homedir.Expand

// Load reads the settings file at path. An empty path returns Default.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		if err := cfg.expand("defaults"); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(messages.ConfigMissingFileFmt, path, err)
	}
	return Parse(data, path)
}

// Parse decodes TOML data over Default, rejects unknown keys, validates the
// result and expands ~ in paths. source is used in error messages.
func Parse(data []byte, source string) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf(messages.ConfigInvalidConfigFmt, source, err)
	}
	if err := decodeStrict(data); err != nil {
		return nil, fmt.Errorf("%w: "+messages.ConfigUnrecognizedKeysFmt, ErrConfigValidation, source, err)
	}
	if err := cfg.Validate(source); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	if err := cfg.expand(source); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict re-decodes data with unknown-field rejection; toml.Unmarshal ignores them.
func decodeStrict(data []byte) error {
	var cfg Config
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(&cfg)
}

// Validate ensures the settings can drive a run.
func (c *Config) Validate(source string) error {
	if strings.TrimSpace(c.Charm.Binary) == "" {
		return fmt.Errorf(messages.ConfigCharmBinaryRequired, source)
	}
	if len(c.Harness.Command) == 0 || strings.TrimSpace(c.Harness.Command[0]) == "" {
		return fmt.Errorf(messages.ConfigHarnessCommandMissing, source)
	}
	if strings.TrimSpace(c.State.SignatureFile) == "" {
		return fmt.Errorf(messages.ConfigSignatureRequired, source)
	}
	return nil
}

func (c *Config) expand(source string) error {
	paths := []*string{
		&c.Harness.Command[0],
		&c.Harness.ArtifactsDir,
		&c.Harness.FakeOutput,
		&c.Harness.MockResultsDir,
		&c.Harness.EnvFile,
		&c.State.SignatureFile,
		&c.State.WorkRoot,
	}
	for _, p := range paths {
		expanded, err := expandPath(*p)
		if err != nil {
			return fmt.Errorf(messages.ConfigExpandPathFmt, source, *p, err)
		}
		*p = expanded
	}
	return nil
}
