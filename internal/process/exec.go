package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

var execCommandContext = exec.CommandContext

// ExecRunner runs commands on the host.
type ExecRunner struct {
	// Out receives the "Running" banner and every output line as it arrives.
	// Nil discards.
	Out io.Writer
}

// Run starts cmd, streams its combined output and waits for it to exit.
// There is no internal timeout; bound the call through ctx.
func (r ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return Result{ExitCode: -1}, errors.New(messages.ProcessEmptyCommand)
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	_, _ = fmt.Fprintf(out, messages.ProcessRunningFmt, cmd.String())

	c := execCommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	pipe, err := c.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf(messages.ProcessStartFailedFmt, cmd.String(), err)
	}
	c.Stderr = c.Stdout
	if err := c.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf(messages.ProcessStartFailedFmt, cmd.String(), err)
	}

	var captured strings.Builder
	readErr := stream(pipe, out, &captured)
	waitErr := c.Wait()

	result := Result{ExitCode: 0, Output: captured.String()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			result.ExitCode = -1
			return result, fmt.Errorf(messages.ProcessStartFailedFmt, cmd.String(), waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	if readErr != nil {
		return result, fmt.Errorf(messages.ProcessReadOutputFmt, cmd.String(), readErr)
	}
	if result.ExitCode != 0 && !cmd.AllowFailure {
		return result, &ExitError{Command: cmd.String(), Code: result.ExitCode, Output: result.Output}
	}
	return result, nil
}

// stream copies r to out and captured line by line.
func stream(r io.Reader, out io.Writer, captured *strings.Builder) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			captured.WriteString(line)
			_, _ = io.WriteString(out, line)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
