// Package process runs external commands synchronously, streaming their output while
// capturing it, and offers a recording runner that stands in for real execution
// during dry runs.
package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// Command is an external program invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string
	// AllowFailure returns non-zero exits as a Result instead of an *ExitError.
	AllowFailure bool
}

// String renders the command line for logs and dry-run echoes.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	// Output holds stdout and stderr interleaved in arrival order.
	Output string
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError reports a command that exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Output  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf(messages.ProcessFailedFmt, e.Command, e.Code)
}
