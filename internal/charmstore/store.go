// Package charmstore talks to the charm store through the charm CLI.
package charmstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/process"
)

// DefaultBinary is the charm CLI looked up on PATH.
const DefaultBinary = "charm"

// UnpublishedChannel holds pushed revisions that were not released yet.
const UnpublishedChannel = "unpublished"

// Everyone is the ACL principal that makes an entity public.
const Everyone = "everyone"

// Store implements the coordinator repository on top of the charm CLI.
type Store struct {
	Binary string
	// Runner executes read-only commands (show).
	Runner process.Runner
	// Mutator executes release, push and grant. Nil means Runner.
	Mutator process.Runner
}

// New returns a Store that runs every command through runner.
func New(binary string, runner process.Runner) *Store {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Store{Binary: binary, Runner: runner}
}

// WithEchoedMutations returns a copy whose mutating commands are only echoed to out.
// Queries keep hitting the real store.
func (s *Store) WithEchoedMutations(out io.Writer) *Store {
	clone := *s
	clone.Mutator = &process.RecordingRunner{Out: out}
	return &clone
}

type showOutput struct {
	ID struct {
		ID string `yaml:"Id"`
	} `yaml:"id"`
}

// LatestRevision returns the fully qualified id of the newest revision of name in channel.
func (s *Store) LatestRevision(ctx context.Context, name string, channel string) (string, error) {
	result, err := s.Runner.Run(ctx, s.command("show", name, "-c", channel, "id"))
	if err != nil {
		return "", err
	}
	return parseShowID(name, result.Output)
}

// Publish releases revision to channel.
func (s *Store) Publish(ctx context.Context, revision string, channel string) error {
	_, err := s.mutator().Run(ctx, s.command("release", revision, "--channel", channel))
	return err
}

// Push uploads the bundle or charm in dir to location and returns the pushed revision id.
func (s *Store) Push(ctx context.Context, dir string, location string) (string, error) {
	if _, err := s.mutator().Run(ctx, s.command("push", dir, location)); err != nil {
		return "", err
	}
	return s.LatestRevision(ctx, location, UnpublishedChannel)
}

// Grant makes revision readable by everyone.
func (s *Store) Grant(ctx context.Context, revision string) error {
	_, err := s.mutator().Run(ctx, s.command("grant", revision, Everyone))
	return err
}

func (s *Store) mutator() process.Runner {
	if s.Mutator != nil {
		return s.Mutator
	}
	return s.Runner
}

func (s *Store) command(args ...string) process.Command {
	return process.Command{Name: s.Binary, Args: args}
}

func parseShowID(name string, output string) (string, error) {
	var parsed showOutput
	if err := yaml.Unmarshal([]byte(output), &parsed); err != nil {
		return "", fmt.Errorf(messages.StoreShowOutputFmt, name, err)
	}
	id := strings.TrimSpace(parsed.ID.ID)
	if id == "" {
		return "", fmt.Errorf(messages.StoreShowMissingID, name)
	}
	return id, nil
}
