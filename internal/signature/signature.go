// Package signature remembers the last bundle state that triggered a build so the
// same state never triggers twice.
package signature

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/conn-castle/bundlebuilder/internal/fsutil"
	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// DefaultPath is the signature file used when none is configured.
const DefaultPath = "last_bundle.signature"

var writeFile = fsutil.WriteFileAtomic

// Subject is the part of a bundle document the tracker needs.
type Subject interface {
	Upgraded() bool
	Signature() (string, error)
}

// Locker serializes access to the signature file across processes.
// Lock returns the function that releases the lock.
type Locker interface {
	Lock() (func() error, error)
}

// Tracker persists one signature per tracked bundle. Callers choose a Path that
// disambiguates concurrent targets; without a Locker, at most one run per Path
// may be active at a time.
type Tracker struct {
	Path   string
	Locker Locker
}

// ShouldTrigger reports whether doc describes a state no build has been triggered for.
// A document without upgrades never triggers and leaves the record untouched.
// A triggering call persists the new signature before returning.
func (t Tracker) ShouldTrigger(doc Subject) (trigger bool, err error) {
	if !doc.Upgraded() {
		return false, nil
	}
	current, err := doc.Signature()
	if err != nil {
		return false, fmt.Errorf(messages.SignatureHashFmt, err)
	}
	if t.Locker != nil {
		release, lockErr := t.Locker.Lock()
		if lockErr != nil {
			return false, lockErr
		}
		defer func() {
			if releaseErr := release(); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	last, found, err := t.Last()
	if err != nil {
		return false, err
	}
	if found && last == current {
		return false, nil
	}
	if err := t.store(current); err != nil {
		return false, err
	}
	return true, nil
}

// Last returns the persisted signature. found is false when no build was triggered yet.
func (t Tracker) Last() (string, bool, error) {
	data, err := os.ReadFile(t.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf(messages.SignatureReadFmt, t.path(), err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

func (t Tracker) store(digest string) error {
	if err := writeFile(t.path(), []byte(digest), 0o644); err != nil {
		return fmt.Errorf(messages.SignatureWriteFmt, t.path(), err)
	}
	return nil
}

func (t Tracker) path() string {
	if strings.TrimSpace(t.Path) == "" {
		return DefaultPath
	}
	return t.Path
}
