package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes an executable /bin/sh script with body and returns its path.
// t is the active test; dir is the output directory; name is the executable file name.
func WriteScript(t *testing.T, dir string, name string, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// WriteStubWithExit writes an executable shell stub that exits with the provided code.
func WriteStubWithExit(t *testing.T, dir string, name string, exitCode int) string {
	t.Helper()
	return WriteScript(t, dir, name, fmt.Sprintf("exit %d", exitCode))
}

// WriteArgLogger writes a stub that appends its working directory and arguments,
// one invocation per line, to logPath and exits with exitCode.
func WriteArgLogger(t *testing.T, dir string, name string, logPath string, exitCode int) string {
	t.Helper()
	body := fmt.Sprintf("echo \"$(pwd) $*\" >> %q\nexit %d", logPath, exitCode)
	return WriteScript(t, dir, name, body)
}

// ReadLines returns the non-empty lines of path, or nil when it does not exist.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var lines []string
	start := 0
	for i, b := range data {
		if b != '\n' {
			continue
		}
		if i > start {
			lines = append(lines, string(data[start:i]))
		}
		start = i + 1
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
