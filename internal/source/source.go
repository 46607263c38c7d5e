// Package source clones bundle repositories with go-git.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// ErrFetch wraps every clone or checkout failure.
var ErrFetch = errors.New(messages.SourceFetchFailed)

// Cloner clones one branch of a repository into a directory.
type Cloner interface {
	Clone(ctx context.Context, repoURL string, branch string, dir string) error
}

// GitCloner clones with go-git so no git binary is required.
type GitCloner struct {
	// Progress receives the remote's sideband progress. Nil discards.
	Progress io.Writer
}

var plainClone = git.PlainCloneContext

// Clone checks out branch of repoURL into dir. Like `git clone --branch`, branch
// may name a tag when no branch of that name exists.
func (c GitCloner) Clone(ctx context.Context, repoURL string, branch string, dir string) error {
	if strings.TrimSpace(repoURL) == "" {
		return fmt.Errorf("%w: %s", ErrFetch, messages.SourceRepoRequired)
	}
	if strings.TrimSpace(branch) == "" {
		return fmt.Errorf("%w: %s", ErrFetch, messages.SourceBranchRequired)
	}
	err := c.cloneRef(ctx, repoURL, plumbing.NewBranchReferenceName(branch), dir)
	if err != nil && missingRef(err) {
		if resetErr := resetDir(dir); resetErr != nil {
			return fmt.Errorf("%w: "+messages.SourceCloneIntoFmt, ErrFetch, dir, resetErr)
		}
		err = c.cloneRef(ctx, repoURL, plumbing.NewTagReferenceName(branch), dir)
	}
	if err != nil {
		return fmt.Errorf("%w: "+messages.SourceCloneFmt, ErrFetch, repoURL, branch, err)
	}
	return nil
}

func (c GitCloner) cloneRef(ctx context.Context, repoURL string, ref plumbing.ReferenceName, dir string) error {
	_, err := plainClone(ctx, dir, false, &git.CloneOptions{
		URL:           repoURL,
		ReferenceName: ref,
		SingleBranch:  true,
		Progress:      c.Progress,
	})
	return err
}

// resetDir empties dir after a failed clone attempt.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func missingRef(err error) bool {
	return errors.Is(err, git.NoMatchingRefSpecError{}) || errors.Is(err, plumbing.ErrReferenceNotFound)
}
