// Package workspace owns the ephemeral working directory of one run.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

var (
	osMkdirTemp = os.MkdirTemp
	osRemoveAll = os.RemoveAll
)

// Workspace is an exclusively owned temporary directory. Close removes it;
// callers defer Close right after New so every exit path cleans up.
type Workspace struct {
	dir    string
	closed bool
}

// New creates a fresh working directory under root (the system temp dir when empty).
func New(root string) (*Workspace, error) {
	dir, err := osMkdirTemp(root, "bundlebuilder-*")
	if err != nil {
		return nil, fmt.Errorf(messages.WorkspaceCreateFmt, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins elem onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Close removes the workspace. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	if err := osRemoveAll(w.dir); err != nil {
		return fmt.Errorf(messages.WorkspaceRemoveFmt, w.dir, err)
	}
	return nil
}
