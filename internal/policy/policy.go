// Package policy loads the per-charm upgrade rules of a bundle from its ci-info.yaml.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// FileName is the policy document looked up next to bundle.yaml.
const FileName = "ci-info.yaml"

// ErrMalformed wraps every policy parse or validation failure.
var ErrMalformed = errors.New(messages.PolicyMalformed)

// UpgradePolicy describes how one charm is upgraded and released.
type UpgradePolicy struct {
	FromChannel string `yaml:"from-channel"`
	ToChannel   string `yaml:"to-channel"`
	Release     bool   `yaml:"release"`
}

// BundlePolicy describes whether and where the bundle itself is released.
type BundlePolicy struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	Release   bool   `yaml:"release"`
	ToChannel string `yaml:"to-channel"`
}

// Location returns the store location of the bundle, e.g. cs:~ns/name.
func (b BundlePolicy) Location() string {
	return fmt.Sprintf("cs:~%s/%s", b.Namespace, b.Name)
}

type document struct {
	CharmUpgrade map[string]UpgradePolicy `yaml:"charm-upgrade"`
	Bundle       BundlePolicy             `yaml:"bundle"`
}

// Store maps bare charm names to their upgrade policy.
// The zero value is a valid empty store that manages nothing.
type Store struct {
	source string
	charms map[string]UpgradePolicy
	bundle BundlePolicy
}

// Load reads the policy document.
// When override is set the file must exist and be well formed. Otherwise
// defaultPath is used if present; an absent default yields an empty store.
func Load(override string, defaultPath string) (*Store, error) {
	if strings.TrimSpace(override) != "" {
		data, err := os.ReadFile(override)
		if err != nil {
			return nil, fmt.Errorf("%w: "+messages.PolicyReadFmt, ErrMalformed, override, err)
		}
		return Parse(data, override)
	}
	data, err := os.ReadFile(defaultPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Store{source: defaultPath}, nil
		}
		return nil, fmt.Errorf("%w: "+messages.PolicyReadFmt, ErrMalformed, defaultPath, err)
	}
	return Parse(data, defaultPath)
}

// Parse decodes and validates a policy document. source is used in error messages.
func Parse(data []byte, source string) (*Store, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: "+messages.PolicyParseFmt, ErrMalformed, source, err)
	}
	if err := validate(doc, source); err != nil {
		return nil, err
	}
	charms := make(map[string]UpgradePolicy, len(doc.CharmUpgrade))
	for name, p := range doc.CharmUpgrade {
		charms[name] = p
	}
	return &Store{source: source, charms: charms, bundle: doc.Bundle}, nil
}

func validate(doc document, source string) error {
	for _, name := range sortedKeys(doc.CharmUpgrade) {
		p := doc.CharmUpgrade[name]
		if strings.TrimSpace(p.FromChannel) == "" {
			return fmt.Errorf("%w: "+messages.PolicyFromChannelRequiredFmt, ErrMalformed, source, name)
		}
		if p.Release && strings.TrimSpace(p.ToChannel) == "" {
			return fmt.Errorf("%w: "+messages.PolicyToChannelRequiredFmt, ErrMalformed, source, name)
		}
	}
	if !doc.Bundle.Release {
		return nil
	}
	required := []struct {
		field string
		value string
	}{
		{"namespace", doc.Bundle.Namespace},
		{"name", doc.Bundle.Name},
		{"to-channel", doc.Bundle.ToChannel},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: "+messages.PolicyBundleFieldRequiredFmt, ErrMalformed, source, r.field)
		}
	}
	return nil
}

// Lookup returns the policy for a bare charm name. ok is false when the charm is not managed.
func (s *Store) Lookup(bareName string) (UpgradePolicy, bool) {
	if s == nil {
		return UpgradePolicy{}, false
	}
	p, ok := s.charms[bareName]
	return p, ok
}

// Bundle returns the bundle-level policy.
func (s *Store) Bundle() BundlePolicy {
	if s == nil {
		return BundlePolicy{}
	}
	return s.bundle
}

// Managed returns the sorted bare names that have a policy.
func (s *Store) Managed() []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.charms)
}

// Empty reports whether the store manages neither charms nor a bundle release.
func (s *Store) Empty() bool {
	return s == nil || (len(s.charms) == 0 && !s.bundle.Release)
}

// Source returns the path the store was loaded from.
func (s *Store) Source() string {
	if s == nil {
		return ""
	}
	return s.source
}

func sortedKeys(m map[string]UpgradePolicy) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
