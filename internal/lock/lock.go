// Package lock provides an advisory, exclusive file lock used to serialize runs
// that share a signature file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

var flockFn = unix.Flock
var lockSleep = time.Sleep

// DefaultWaitTimeout bounds how long Acquire waits for a held lock.
const DefaultWaitTimeout = 30 * time.Second

const pollEvery = 100 * time.Millisecond

// FileLocker acquires flock-based locks on a path.
type FileLocker struct {
	Path    string
	Timeout time.Duration
}

// handle is a held lock.
type handle struct {
	file *os.File
}

// ForSignature returns a locker on the companion lock file of a signature path.
func ForSignature(signaturePath string) *FileLocker {
	return &FileLocker{Path: signaturePath + ".lock", Timeout: DefaultWaitTimeout}
}

// Lock opens or creates the lock file and acquires an exclusive lock on it.
// The returned release function unlocks and closes the file.
func (l *FileLocker) Lock() (func() error, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return nil, errors.New(messages.LockPathRequired)
	}
	h, err := acquire(l.Path, l.timeout())
	if err != nil {
		return nil, err
	}
	return h.release, nil
}

func (l *FileLocker) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultWaitTimeout
	}
	return l.Timeout
}

func acquire(path string, timeout time.Duration) (*handle, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf(messages.LockOpenFmt, path, err)
	}
	if err := lockFile(file, timeout); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf(messages.LockAcquireFmt, path, err)
	}
	return &handle{file: file}, nil
}

func (h *handle) release() error {
	if h == nil || h.file == nil {
		return nil
	}
	if err := flockFn(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		_ = h.file.Close()
		return err
	}
	return h.file.Close()
}

func lockFile(file *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf(messages.LockTimeoutFmt, timeout)
		}
		lockSleep(pollEvery)
	}
}
