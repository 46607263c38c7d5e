// Package bundle holds the typed view of a bundle.yaml working copy.
//
// A Document exposes only the sanctioned operations: list the charms bound to
// each service and repoint a service at another revision. Every change is written
// back to disk immediately so later steps (signature, tests, push) see it.
package bundle

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"gopkg.in/yaml.v3"

	"github.com/conn-castle/bundlebuilder/internal/charmref"
	"github.com/conn-castle/bundlebuilder/internal/fsutil"
	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/source"
)

// FileName is the bundle document inside the bundle directory.
const FileName = "bundle.yaml"

// ErrMalformed wraps every bundle read or parse failure.
var ErrMalformed = errors.New(messages.BundleMalformed)

var writeFile = fsutil.WriteFileAtomic

// serviceKeys are the accepted top-level service mappings, in lookup order.
var serviceKeys = []string{"applications", "services"}

// Component is one service slot and the charm it is bound to.
type Component struct {
	Service string
	Ref     charmref.Reference
}

type service struct {
	name  string
	charm *yaml.Node
}

// Document is a parsed bundle.yaml owned by a single run.
type Document struct {
	path     string
	root     yaml.Node
	services []service
	baseline []byte
	upgraded bool
}

// Fetch clones branch of repoURL into dir and opens subdir/bundle.yaml.
// Clone failures wrap source.ErrFetch; parse failures wrap ErrMalformed.
func Fetch(ctx context.Context, cloner source.Cloner, dir string, repoURL string, branch string, subdir string) (*Document, error) {
	if err := cloner.Clone(ctx, repoURL, branch, dir); err != nil {
		return nil, err
	}
	return Open(filepath.Join(dir, subdir, FileName))
}

// Open reads and parses the bundle document at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: "+messages.BundleReadFmt, ErrMalformed, path, err)
	}
	return parse(data, path)
}

func parse(data []byte, path string) (*Document, error) {
	doc := &Document{path: path}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, fmt.Errorf("%w: "+messages.BundleParseFmt, ErrMalformed, path, err)
	}
	if doc.root.Kind != yaml.DocumentNode || len(doc.root.Content) == 0 || doc.root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: "+messages.BundleNotMappingFmt, ErrMalformed, path)
	}
	// Node parsing accepts duplicate keys; a full decode does not.
	var value any
	if err := doc.root.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: "+messages.BundleParseFmt, ErrMalformed, path, err)
	}
	services := lookupServices(doc.root.Content[0])
	if services == nil {
		return nil, fmt.Errorf("%w: "+messages.BundleMissingServicesFmt, ErrMalformed, path)
	}
	for i := 0; i+1 < len(services.Content); i += 2 {
		name := services.Content[i].Value
		body := services.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: "+messages.BundleServiceInvalidFmt, ErrMalformed, path, name)
		}
		charm := ownCharm(body)
		if charm == nil || charm.Kind != yaml.ScalarNode || charm.Value == "" {
			return nil, fmt.Errorf("%w: "+messages.BundleCharmMissingFmt, ErrMalformed, path, name)
		}
		doc.services = append(doc.services, service{name: name, charm: charm})
	}
	baseline, err := doc.encode()
	if err != nil {
		return nil, fmt.Errorf("%w: "+messages.BundleEncodeFmt, ErrMalformed, path, err)
	}
	doc.baseline = baseline
	return doc, nil
}

func lookupServices(top *yaml.Node) *yaml.Node {
	for _, key := range serviceKeys {
		if node := mappingValue(top, key); node != nil && node.Kind == yaml.MappingNode {
			return node
		}
	}
	return nil
}

// ownCharm returns the charm value of a service body. An aliased charm is
// replaced by a private copy so repointing one service leaves the others alone.
func ownCharm(body *yaml.Node) *yaml.Node {
	for i := 0; i+1 < len(body.Content); i += 2 {
		if body.Content[i].Value != "charm" {
			continue
		}
		node := body.Content[i+1]
		if node.Kind == yaml.AliasNode && node.Alias != nil {
			copied := *node.Alias
			copied.Anchor = ""
			body.Content[i+1] = &copied
			node = &copied
		}
		return node
	}
	return nil
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// Path returns the bundle.yaml location.
func (d *Document) Path() string {
	return d.path
}

// Dir returns the directory holding bundle.yaml; this is what gets tested and pushed.
func (d *Document) Dir() string {
	return filepath.Dir(d.path)
}

// Upgraded reports whether any service was repointed since the document was opened.
func (d *Document) Upgraded() bool {
	return d.upgraded
}

// Components lists every service and its current charm in document order.
func (d *Document) Components() []Component {
	out := make([]Component, 0, len(d.services))
	for _, s := range d.services {
		out = append(out, Component{Service: s.name, Ref: charmref.Parse(s.charm.Value)})
	}
	return out
}

// Replace repoints every service bound to current at next.
// It reports whether anything changed; changes are written to disk before returning.
func (d *Document) Replace(current string, next string) (bool, error) {
	changed := false
	for _, s := range d.services {
		if s.charm.Value == current && s.charm.Value != next {
			s.charm.Value = next
			changed = true
		}
	}
	return changed, d.commit(changed)
}

// ReplaceService repoints one service at next.
func (d *Document) ReplaceService(name string, next string) (bool, error) {
	for _, s := range d.services {
		if s.name != name {
			continue
		}
		if s.charm.Value == next {
			return false, nil
		}
		s.charm.Value = next
		return true, d.commit(true)
	}
	return false, fmt.Errorf(messages.BundleUnknownServiceFmt, name)
}

func (d *Document) commit(changed bool) error {
	if !changed {
		return nil
	}
	d.upgraded = true
	data, err := d.encode()
	if err != nil {
		return fmt.Errorf(messages.BundleEncodeFmt, d.path, err)
	}
	if err := writeFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf(messages.BundleWriteFmt, d.path, err)
	}
	return nil
}

func (d *Document) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Canonical serializes the decoded document with sorted mapping keys, so
// comments, indentation and key order of the source do not affect it.
func (d *Document) Canonical() ([]byte, error) {
	var value any
	if err := d.root.Decode(&value); err != nil {
		return nil, err
	}
	return yaml.Marshal(value)
}

// Signature returns the hex SHA-1 of Canonical.
func (d *Document) Signature() (string, error) {
	data, err := d.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Diff returns a unified diff between the document as opened and its current
// content, or "" when nothing changed.
func (d *Document) Diff() string {
	current, err := d.encode()
	if err != nil {
		return ""
	}
	return udiff.Unified(FileName+" (fetched)", FileName+" (upgraded)", string(d.baseline), string(current))
}
