// Package coordinator drives one bundle run: fetch, upgrade scan, trigger
// decision, test and the cascading release of charms and the bundle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/conn-castle/bundlebuilder/internal/bundle"
	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/policy"
	"github.com/conn-castle/bundlebuilder/internal/signature"
	"github.com/conn-castle/bundlebuilder/internal/source"
	"github.com/conn-castle/bundlebuilder/internal/workspace"
)

var (
	// ErrUpgradeLookup marks a failed latest-revision query during the upgrade scan.
	ErrUpgradeLookup = errors.New(messages.CoordinatorUpgradeLookup)
	// ErrTestFailed marks a failing or unrunnable test harness. Nothing is released after it.
	ErrTestFailed = errors.New(messages.CoordinatorTestFailed)
	// ErrRelease marks a failed publish, push or grant after a passing test.
	ErrRelease = errors.New(messages.CoordinatorReleaseFailed)
)

// State names a step of BuildAndRelease. It is logged on every transition.
type State string

const (
	StateFetched             State = "FETCHED"
	StateUpgradeScan         State = "UPGRADE_SCAN"
	StateTesting             State = "TESTING"
	StateTestFailed          State = "TEST_FAILED"
	StateReleasingComponents State = "RELEASING_COMPONENTS"
	StateReleasingBundle     State = "RELEASING_BUNDLE"
	StateDone                State = "DONE"
)

// Repository is the charm store.
type Repository interface {
	// LatestRevision returns the fully qualified id of the newest revision of name in channel.
	LatestRevision(ctx context.Context, name string, channel string) (string, error)
	// Publish releases an existing revision to channel.
	Publish(ctx context.Context, revision string, channel string) error
	// Push uploads dir to location and returns the new revision id.
	Push(ctx context.Context, dir string, location string) (string, error)
	// Grant makes revision publicly readable.
	Grant(ctx context.Context, revision string) error
}

// TestHarness tests a bundle working copy against target environments.
// A nil error is a passing outcome.
type TestHarness interface {
	Test(ctx context.Context, dir string, buildID string, envs []string) error
}

// Target identifies the tracked bundle.
type Target struct {
	Repo   string
	Branch string
	Subdir string
}

func (t Target) String() string {
	return t.Repo + "@" + t.Branch + ":" + t.Subdir
}

// Deps are the external collaborators of a Coordinator.
type Deps struct {
	Repository Repository
	Cloner     source.Cloner
	Harness    TestHarness
	Logger     *zap.Logger
}

// Options tune a Coordinator.
type Options struct {
	// DryRun records publish, push, grant and test calls instead of running them.
	// Latest-revision queries still reach the repository.
	DryRun bool
	// PolicyOverride is an explicit ci-info.yaml path; it must exist.
	PolicyOverride string
	// SignaturePath is where the last triggering signature is stored.
	SignaturePath string
	// Locker optionally guards the signature file.
	Locker signature.Locker
	// WorkRoot is the parent of the per-run working directory.
	WorkRoot string
}

// Coordinator runs the pipeline for one target per call. It is not safe for concurrent use.
type Coordinator struct {
	repo     Repository
	cloner   source.Cloner
	harness  TestHarness
	log      *zap.Logger
	opts     Options
	recorder *Recorder
}

// New validates deps and returns a Coordinator. In dry-run mode the repository
// mutations and the harness are replaced by recording no-ops. Harness may be nil
// for a Coordinator that only runs Check.
func New(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Repository == nil {
		return nil, errors.New(messages.CoordinatorRepositoryNeeded)
	}
	if deps.Cloner == nil {
		return nil, errors.New(messages.CoordinatorClonerNeeded)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		repo:    deps.Repository,
		cloner:  deps.Cloner,
		harness: deps.Harness,
		log:     log,
		opts:    opts,
	}
	if opts.DryRun {
		c.recorder = &Recorder{log: log}
		c.repo = dryRepository{Repository: deps.Repository, rec: c.recorder}
		c.harness = dryHarness{rec: c.recorder}
	}
	return c, nil
}

// Recording returns the calls skipped in dry-run mode, oldest first.
// It is nil when DryRun is off.
func (c *Coordinator) Recording() []Call {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.Calls()
}

// Result describes what a run left behind.
type Result struct {
	// Triggered is the check decision. BuildAndRelease leaves it false.
	Triggered bool
	// Diff is the unified diff of bundle.yaml between fetch and the end of the run.
	Diff string
	// Released lists the charm revisions released, in release order.
	Released []string
	// Bundle is the pushed bundle revision, empty when the bundle was not released.
	Bundle string
}

// Check fetches target, applies the upgrade pass and reports whether a build
// should be triggered. It never tests or releases anything.
func (c *Coordinator) Check(ctx context.Context, target Target) (result Result, err error) {
	ws, err := workspace.New(c.opts.WorkRoot)
	if err != nil {
		return Result{}, err
	}
	defer c.closeWorkspace(ws, &err)

	doc, rules, err := c.prepare(ctx, ws, target)
	if err != nil {
		return Result{}, err
	}
	if err := c.upgrade(ctx, doc, rules); err != nil {
		return Result{}, err
	}
	tracker := signature.Tracker{Path: c.opts.SignaturePath, Locker: c.opts.Locker}
	triggered, err := tracker.ShouldTrigger(doc)
	if err != nil {
		return Result{}, err
	}
	c.log.Info(messages.CoordinatorLogTrigger,
		zap.String("bundle", target.String()),
		zap.Bool("upgraded", doc.Upgraded()),
		zap.Bool("trigger", triggered),
	)
	return Result{Triggered: triggered, Diff: doc.Diff()}, nil
}

// BuildAndRelease fetches target, applies the upgrade pass, tests the result
// and, when the test passes, releases charms and the bundle as the policy asks.
// A failing test releases nothing.
func (c *Coordinator) BuildAndRelease(ctx context.Context, target Target, buildID string, envs []string) (result Result, err error) {
	if c.harness == nil {
		return Result{}, errors.New(messages.CoordinatorHarnessNeeded)
	}
	ws, err := workspace.New(c.opts.WorkRoot)
	if err != nil {
		return Result{}, err
	}
	defer c.closeWorkspace(ws, &err)

	log := c.log.With(zap.String("bundle", target.String()), zap.String("build", buildID))
	doc, rules, err := c.prepare(ctx, ws, target)
	if err != nil {
		return Result{}, err
	}
	enter(log, StateFetched)

	enter(log, StateUpgradeScan)
	if err := c.upgrade(ctx, doc, rules); err != nil {
		return Result{}, err
	}

	enter(log, StateTesting)
	if err := c.harness.Test(ctx, doc.Dir(), buildID, envs); err != nil {
		enter(log, StateTestFailed)
		return Result{Diff: doc.Diff()}, fmt.Errorf("%w: "+messages.CoordinatorHarnessFmt, ErrTestFailed, target.String(), err)
	}

	enter(log, StateReleasingComponents)
	released, err := c.releaseComponents(ctx, log, doc, rules)
	result = Result{Released: released}
	if err != nil {
		result.Diff = doc.Diff()
		return result, err
	}

	enter(log, StateReleasingBundle)
	if bp := rules.Bundle(); bp.Release {
		rev, err := c.releaseBundle(ctx, doc, bp)
		if err != nil {
			result.Diff = doc.Diff()
			return result, err
		}
		result.Bundle = rev
		log.Info(messages.CoordinatorLogBundlePush, zap.String("revision", rev), zap.String("channel", bp.ToChannel))
	}

	enter(log, StateDone)
	result.Diff = doc.Diff()
	return result, nil
}

func (c *Coordinator) prepare(ctx context.Context, ws *workspace.Workspace, target Target) (*bundle.Document, *policy.Store, error) {
	doc, err := bundle.Fetch(ctx, c.cloner, ws.Path("source"), target.Repo, target.Branch, target.Subdir)
	if err != nil {
		return nil, nil, err
	}
	rules, err := policy.Load(c.opts.PolicyOverride, filepath.Join(doc.Dir(), policy.FileName))
	if err != nil {
		return nil, nil, err
	}
	fields := []zap.Field{zap.String("bundle", doc.Path()), zap.String("policy", rules.Source())}
	if rules.Empty() {
		c.log.Warn(messages.CoordinatorLogNoPolicy, fields...)
	} else {
		c.log.Debug(messages.CoordinatorLogPolicy, append(fields, zap.Strings("managed", rules.Managed()))...)
	}
	return doc, rules, nil
}

// upgrade moves every managed service to the newest revision in its from-channel.
func (c *Coordinator) upgrade(ctx context.Context, doc *bundle.Document, rules *policy.Store) error {
	for _, comp := range doc.Components() {
		fields := []zap.Field{zap.String("service", comp.Service), zap.String("charm", comp.Ref.Provided())}
		if comp.Ref.HasRevision() {
			fields = append(fields, zap.String("revision", comp.Ref.Revision()))
		}
		if comp.Ref.Ambiguous() {
			c.log.Warn(messages.CoordinatorLogAmbiguous, fields...)
		}
		rule, ok := rules.Lookup(comp.Ref.BareName())
		if !ok {
			c.log.Debug(messages.CoordinatorLogUnmanaged, fields...)
			continue
		}
		latest, err := c.repo.LatestRevision(ctx, comp.Ref.NamespacedName(), rule.FromChannel)
		if err != nil {
			return fmt.Errorf("%w: "+messages.CoordinatorLatestFmt, ErrUpgradeLookup, comp.Ref.NamespacedName(), rule.FromChannel, err)
		}
		changed, err := doc.ReplaceService(comp.Service, latest)
		if err != nil {
			return fmt.Errorf(messages.CoordinatorReplaceFmt, comp.Service, latest, err)
		}
		if changed {
			c.log.Info(messages.CoordinatorLogUpgrade, append(fields, zap.String("latest", latest), zap.String("channel", rule.FromChannel))...)
		} else {
			c.log.Debug(messages.CoordinatorLogCurrent, fields...)
		}
	}
	return nil
}

// releaseComponents publishes every charm whose policy asks for it and repoints
// the bundle at the revision the to-channel reports afterwards. A charm bound
// to several services is released once.
func (c *Coordinator) releaseComponents(ctx context.Context, log *zap.Logger, doc *bundle.Document, rules *policy.Store) ([]string, error) {
	done := map[string]string{}
	var released []string
	for _, comp := range doc.Components() {
		rule, ok := rules.Lookup(comp.Ref.BareName())
		if !ok || !rule.Release {
			continue
		}
		name := comp.Ref.NamespacedName()
		revision, seen := done[name]
		if !seen {
			var err error
			revision, err = c.releaseCharm(ctx, name, rule)
			if err != nil {
				return released, err
			}
			done[name] = revision
			released = append(released, revision)
			log.Info(messages.CoordinatorLogPublished, zap.String("charm", name), zap.String("revision", revision), zap.String("channel", rule.ToChannel))
		}
		if _, err := doc.ReplaceService(comp.Service, revision); err != nil {
			return released, fmt.Errorf("%w: "+messages.CoordinatorReplaceFmt, ErrRelease, comp.Service, revision, err)
		}
	}
	return released, nil
}

func (c *Coordinator) releaseCharm(ctx context.Context, name string, rule policy.UpgradePolicy) (string, error) {
	latest, err := c.repo.LatestRevision(ctx, name, rule.FromChannel)
	if err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorLatestFmt, ErrRelease, name, rule.FromChannel, err)
	}
	if err := c.repo.Publish(ctx, latest, rule.ToChannel); err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorPublishFmt, ErrRelease, latest, rule.ToChannel, err)
	}
	// The store decides which revision lands in the to-channel; trust it.
	released, err := c.repo.LatestRevision(ctx, name, rule.ToChannel)
	if err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorLatestFmt, ErrRelease, name, rule.ToChannel, err)
	}
	if err := c.repo.Grant(ctx, released); err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorGrantFmt, ErrRelease, released, err)
	}
	return released, nil
}

func (c *Coordinator) releaseBundle(ctx context.Context, doc *bundle.Document, bp policy.BundlePolicy) (string, error) {
	location := bp.Location()
	rev, err := c.repo.Push(ctx, doc.Dir(), location)
	if err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorPushFmt, ErrRelease, location, err)
	}
	if err := c.repo.Publish(ctx, rev, bp.ToChannel); err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorPublishFmt, ErrRelease, rev, bp.ToChannel, err)
	}
	if err := c.repo.Grant(ctx, rev); err != nil {
		return "", fmt.Errorf("%w: "+messages.CoordinatorGrantFmt, ErrRelease, rev, err)
	}
	return rev, nil
}

func (c *Coordinator) closeWorkspace(ws *workspace.Workspace, err *error) {
	if closeErr := ws.Close(); closeErr != nil {
		c.log.Warn(messages.CoordinatorLogCleanupFail, zap.String("dir", ws.Dir()), zap.Error(closeErr))
		if *err == nil {
			*err = closeErr
		}
	}
}

func enter(log *zap.Logger, state State) {
	log.Info(messages.CoordinatorLogState, zap.String("state", string(state)))
}
