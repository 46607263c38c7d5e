package coordinator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// Operations recorded in dry-run mode.
const (
	OpPublish = "publish"
	OpPush    = "push"
	OpGrant   = "grant"
	OpTest    = "test"
)

// Call is one skipped mutation.
type Call struct {
	Op   string
	Args []string
}

func (c Call) String() string {
	return c.Op + " " + strings.Join(c.Args, " ")
}

// Recorder collects skipped calls.
type Recorder struct {
	log   *zap.Logger
	calls []Call
}

func (r *Recorder) record(op string, args ...string) {
	r.calls = append(r.calls, Call{Op: op, Args: args})
	r.log.Info(messages.CoordinatorLogDryRun, zap.String("op", op), zap.Strings("args", args))
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// dryRepository forwards queries and records mutations.
type dryRepository struct {
	Repository
	rec *Recorder
}

func (d dryRepository) Publish(_ context.Context, revision string, channel string) error {
	d.rec.record(OpPublish, revision, channel)
	return nil
}

// Push returns location as the revision since nothing was uploaded.
func (d dryRepository) Push(_ context.Context, dir string, location string) (string, error) {
	d.rec.record(OpPush, dir, location)
	return location, nil
}

func (d dryRepository) Grant(_ context.Context, revision string) error {
	d.rec.record(OpGrant, revision)
	return nil
}

type dryHarness struct {
	rec *Recorder
}

func (d dryHarness) Test(_ context.Context, dir string, buildID string, envs []string) error {
	d.rec.record(OpTest, append([]string{dir, buildID}, envs...)...)
	return nil
}
