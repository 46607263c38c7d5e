// Package harness runs the bundle test suite: the cloud-weather-report helper
// for real runs, or a recorded results archive replayed into the artifacts tree.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/process"
)

// DefaultCommand is the helper invocation used on the CI hosts.
var DefaultCommand = []string{"/var/lib/jenkins/scripts/cwr-helpers.sh", "run_cwr_in_container"}

// DefaultArtifactsDir is the root the CI server serves build artifacts from.
const DefaultArtifactsDir = "/srv/artifacts"

// DefaultMockResultsDir holds the recorded archives selected by scenario name.
const DefaultMockResultsDir = "/var/lib/jenkins/mock-results"

// BuildEnvVar carries the build id to the helper.
const BuildEnvVar = "BUILD_NUMBER"

var osMkdirAll = os.MkdirAll

// CWR runs `<command...> "<env> <env>..." <job> <dir>`.
type CWR struct {
	Command []string
	JobName string
	// Env is added to the helper's environment.
	Env    []string
	Runner process.Runner
}

// Test runs the helper once for all envs and fails on a non-zero exit.
func (h CWR) Test(ctx context.Context, dir string, buildID string, envs []string) error {
	if strings.TrimSpace(h.JobName) == "" {
		return errors.New(messages.HarnessJobNameRequired)
	}
	if len(envs) == 0 {
		return errors.New(messages.HarnessNoEnvironments)
	}
	command := h.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	args := append([]string{}, command[1:]...)
	args = append(args, strings.Join(envs, " "), h.JobName, dir)
	env := append([]string{}, h.Env...)
	env = append(env, BuildEnvVar+"="+buildID)
	_, err := h.Runner.Run(ctx, process.Command{Name: command[0], Args: args, Env: env})
	return err
}

// FakeOutput unpacks Archive into <ArtifactsDir>/<job>/<build>/ instead of running
// tests. The run passes only when the archive path names a passing scenario.
type FakeOutput struct {
	Archive      string
	ArtifactsDir string
	JobName      string
	Runner       process.Runner
}

// Test extracts the archive and reports the scenario outcome.
func (h FakeOutput) Test(ctx context.Context, _ string, buildID string, _ []string) error {
	if strings.TrimSpace(h.JobName) == "" {
		return errors.New(messages.HarnessJobNameRequired)
	}
	root := h.ArtifactsDir
	if root == "" {
		root = DefaultArtifactsDir
	}
	out := filepath.Join(root, h.JobName, buildID)
	if err := osMkdirAll(out, 0o755); err != nil {
		return fmt.Errorf(messages.HarnessArtifactDirFmt, out, err)
	}
	cmd := process.Command{Name: "tar", Args: []string{"-zxvf", h.Archive, "-C", out + string(filepath.Separator)}}
	if _, err := h.Runner.Run(ctx, cmd); err != nil {
		return err
	}
	if !strings.Contains(h.Archive, messages.HarnessFakeOutputPassTag) {
		return fmt.Errorf(messages.HarnessFakeFailureFmt, h.Archive)
	}
	return nil
}

// ScenarioArchive maps a scenario name such as "output-results/pass" to its archive.
func ScenarioArchive(mockDir string, scenario string) string {
	if mockDir == "" {
		mockDir = DefaultMockResultsDir
	}
	return filepath.Join(mockDir, scenario+".tar.gz")
}
