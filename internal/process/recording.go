package process

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// RecordingRunner records commands instead of running them.
type RecordingRunner struct {
	// Out receives a "dry-run:" echo per command. Nil discards.
	Out io.Writer
	// Respond optionally scripts the result for a command. Without it every
	// command succeeds with empty output.
	Respond func(cmd Command) (Result, error)

	mu    sync.Mutex
	calls []Command
}

// Run records cmd and returns the scripted result.
func (r *RecordingRunner) Run(_ context.Context, cmd Command) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Out != nil {
		_, _ = fmt.Fprintf(r.Out, messages.ProcessDryRunFmt, cmd.String())
	}
	if r.Respond != nil {
		return r.Respond(cmd)
	}
	return Result{}, nil
}

// Calls returns a copy of the recorded commands in call order.
func (r *RecordingRunner) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}
