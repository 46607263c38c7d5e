package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conn-castle/bundlebuilder/internal/bundle"
	"github.com/conn-castle/bundlebuilder/internal/charmref"
	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/policy"
	"github.com/conn-castle/bundlebuilder/internal/source"
)

const subdir = "bundles/demo"

const demoBundle = `services:
  app:
    charm: cs:~myns/app-3
    num_units: 1
  db:
    charm: cs:mysql-58
`

const releasePolicy = `charm-upgrade:
  app:
    from-channel: edge
    to-channel: stable
    release: true
bundle:
  namespace: myns
  name: demo
  release: true
  to-channel: stable
`

// fakeCloner lays out files under dir/subdir as if a repository had been cloned.
type fakeCloner struct {
	files  map[string]string
	err    error
	clones int
}

func (f *fakeCloner) Clone(_ context.Context, _ string, _ string, dir string) error {
	f.clones++
	if f.err != nil {
		return f.err
	}
	for name, content := range f.files {
		path := filepath.Join(dir, subdir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// fakeRepo keeps the newest revision per "name@channel".
type fakeRepo struct {
	latest     map[string]string
	lookupErr  error
	publishErr error
	// promote maps a published revision to what the to-channel reports afterwards.
	promote map[string]string

	queries   []string
	published []string
	granted   []string
	pushed    []string
	pushedDoc string
}

func newFakeRepo(latest map[string]string) *fakeRepo {
	return &fakeRepo{latest: latest, promote: map[string]string{}}
}

func (r *fakeRepo) LatestRevision(_ context.Context, name string, channel string) (string, error) {
	key := name + "@" + channel
	r.queries = append(r.queries, key)
	if r.lookupErr != nil {
		return "", r.lookupErr
	}
	rev, ok := r.latest[key]
	if !ok {
		return "", errors.New("no revision for " + key)
	}
	return rev, nil
}

func (r *fakeRepo) Publish(_ context.Context, revision string, channel string) error {
	r.published = append(r.published, revision+"@"+channel)
	if r.publishErr != nil {
		return r.publishErr
	}
	landed := revision
	if to, ok := r.promote[revision]; ok {
		landed = to
	}
	r.latest[charmref.Parse(revision).NamespacedName()+"@"+channel] = landed
	return nil
}

func (r *fakeRepo) Push(_ context.Context, dir string, location string) (string, error) {
	r.pushed = append(r.pushed, location)
	data, err := os.ReadFile(filepath.Join(dir, bundle.FileName))
	if err != nil {
		return "", err
	}
	r.pushedDoc = string(data)
	return location + "-1", nil
}

func (r *fakeRepo) Grant(_ context.Context, revision string) error {
	r.granted = append(r.granted, revision)
	return nil
}

type fakeHarness struct {
	err   error
	runs  int
	seen  string
	envs  []string
	build string
}

func (h *fakeHarness) Test(_ context.Context, dir string, buildID string, envs []string) error {
	h.runs++
	data, err := os.ReadFile(filepath.Join(dir, bundle.FileName))
	if err != nil {
		return err
	}
	h.seen = string(data)
	h.build = buildID
	h.envs = envs
	return h.err
}

type fixture struct {
	cloner  *fakeCloner
	repo    *fakeRepo
	harness *fakeHarness
	logger  *zap.Logger
	opts    Options
	target  Target
}

func newFixture(t *testing.T, policyDoc string) *fixture {
	t.Helper()
	files := map[string]string{bundle.FileName: demoBundle}
	if policyDoc != "" {
		files[policy.FileName] = policyDoc
	}
	state := t.TempDir()
	return &fixture{
		cloner: &fakeCloner{files: files},
		repo: newFakeRepo(map[string]string{
			"cs:~myns/app@edge":   "cs:~myns/app-5",
			"cs:~myns/app@stable": "cs:~myns/app-2",
		}),
		harness: &fakeHarness{},
		opts: Options{
			SignaturePath: filepath.Join(state, "last_bundle.signature"),
			WorkRoot:      t.TempDir(),
		},
		target: Target{Repo: "https://example.com/demo.git", Branch: "master", Subdir: subdir},
	}
}

func (f *fixture) coordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New(Deps{Repository: f.repo, Cloner: f.cloner, Harness: f.harness, Logger: f.logger}, f.opts)
	require.NoError(t, err)
	return c
}

func assertWorkRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "working directory left behind")
}

func TestNewRequiresDeps(t *testing.T) {
	repo := newFakeRepo(nil)
	cloner := &fakeCloner{}

	_, err := New(Deps{Cloner: cloner, Harness: &fakeHarness{}}, Options{})
	assert.Error(t, err)
	_, err = New(Deps{Repository: repo, Harness: &fakeHarness{}}, Options{})
	assert.Error(t, err)
	_, err = New(Deps{Repository: repo, Cloner: cloner}, Options{DryRun: true})
	assert.NoError(t, err)
}

func TestCheckWithoutHarness(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	c, err := New(Deps{Repository: f.repo, Cloner: f.cloner}, f.opts)
	require.NoError(t, err)

	result, err := c.Check(context.Background(), f.target)
	require.NoError(t, err)
	assert.True(t, result.Triggered)

	_, err = c.BuildAndRelease(context.Background(), f.target, "1", []string{"aws"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), messages.CoordinatorHarnessNeeded)
	assert.Empty(t, f.repo.published)
}

func TestCheckUpgradesManagedCharm(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	result, err := f.coordinator(t).Check(context.Background(), f.target)
	require.NoError(t, err)

	assert.True(t, result.Triggered)
	assert.Contains(t, result.Diff, "+    charm: cs:~myns/app-5")
	assert.Contains(t, result.Diff, "-    charm: cs:~myns/app-3")
	assert.Equal(t, []string{"cs:~myns/app@edge"}, f.repo.queries)
	assert.Zero(t, f.harness.runs)
	assert.Empty(t, f.repo.published)

	data, err := os.ReadFile(f.opts.SignaturePath)
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(string(data)), 40)
	assertWorkRootEmpty(t, f.opts.WorkRoot)
}

func TestCheckUnmanagedCharmDoesNotTrigger(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  other:\n    from-channel: edge\n")
	result, err := f.coordinator(t).Check(context.Background(), f.target)
	require.NoError(t, err)

	assert.False(t, result.Triggered)
	assert.Empty(t, result.Diff)
	assert.Empty(t, f.repo.queries)
	_, statErr := os.Stat(f.opts.SignaturePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckWithoutPolicyDocument(t *testing.T) {
	f := newFixture(t, "")
	result, err := f.coordinator(t).Check(context.Background(), f.target)
	require.NoError(t, err)
	assert.False(t, result.Triggered)
	assert.Empty(t, f.repo.queries)
}

func TestCheckLogsPolicyAndRevision(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	f.logger = zap.New(core)
	_, err := f.coordinator(t).Check(context.Background(), f.target)
	require.NoError(t, err)

	loaded := logs.FilterMessage(messages.CoordinatorLogPolicy).All()
	require.Len(t, loaded, 1)
	fields := loaded[0].ContextMap()
	assert.Equal(t, []interface{}{"app"}, fields["managed"])
	assert.Equal(t, policy.FileName, filepath.Base(fields["policy"].(string)))
	assert.Equal(t, bundle.FileName, filepath.Base(fields["bundle"].(string)))

	upgraded := logs.FilterMessage(messages.CoordinatorLogUpgrade).All()
	require.Len(t, upgraded, 1)
	assert.Equal(t, "3", upgraded[0].ContextMap()["revision"])
	assert.Zero(t, logs.FilterMessage(messages.CoordinatorLogNoPolicy).Len())
}

func TestCheckWarnsWhenPolicyManagesNothing(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newFixture(t, "")
	f.logger = zap.New(core)
	_, err := f.coordinator(t).Check(context.Background(), f.target)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage(messages.CoordinatorLogNoPolicy).Len())
}

func TestCheckIsIdempotent(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	c := f.coordinator(t)

	first, err := c.Check(context.Background(), f.target)
	require.NoError(t, err)
	second, err := c.Check(context.Background(), f.target)
	require.NoError(t, err)

	assert.True(t, first.Triggered)
	assert.False(t, second.Triggered)
}

func TestCheckRetriggersOnNewRevision(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	c := f.coordinator(t)

	first, err := c.Check(context.Background(), f.target)
	require.NoError(t, err)
	require.True(t, first.Triggered)

	f.repo.latest["cs:~myns/app@edge"] = "cs:~myns/app-6"
	second, err := c.Check(context.Background(), f.target)
	require.NoError(t, err)
	assert.True(t, second.Triggered)

	f.repo.latest["cs:~myns/app@edge"] = "cs:~myns/app-5"
	third, err := c.Check(context.Background(), f.target)
	require.NoError(t, err)
	assert.True(t, third.Triggered, "returning to an earlier state is still a change")
}

func TestCheckLookupFailure(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	f.repo.lookupErr = errors.New("store unavailable")

	_, err := f.coordinator(t).Check(context.Background(), f.target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpgradeLookup)
	assertWorkRootEmpty(t, f.opts.WorkRoot)
}

func TestCheckFetchFailure(t *testing.T) {
	f := newFixture(t, "")
	f.cloner.err = source.ErrFetch

	_, err := f.coordinator(t).Check(context.Background(), f.target)
	assert.ErrorIs(t, err, source.ErrFetch)
	assertWorkRootEmpty(t, f.opts.WorkRoot)
}

func TestCheckMalformedPolicy(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    to-channel: stable\n")
	_, err := f.coordinator(t).Check(context.Background(), f.target)
	assert.ErrorIs(t, err, policy.ErrMalformed)
}

func TestCheckPolicyOverride(t *testing.T) {
	f := newFixture(t, "")
	override := filepath.Join(t.TempDir(), "ci-info.yaml")
	require.NoError(t, os.WriteFile(override, []byte("charm-upgrade:\n  app:\n    from-channel: edge\n"), 0o644))
	f.opts.PolicyOverride = override

	result, err := f.coordinator(t).Check(context.Background(), f.target)
	require.NoError(t, err)
	assert.True(t, result.Triggered)

	f.opts.PolicyOverride = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = f.coordinator(t).Check(context.Background(), f.target)
	assert.ErrorIs(t, err, policy.ErrMalformed)
}

func TestBuildAndReleaseCascade(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, releasePolicy)
	f.repo.promote["cs:~myns/app-5"] = "cs:~myns/app-7"

	result, err := f.coordinator(t).BuildAndRelease(context.Background(), f.target, "42", []string{"aws", "gce"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.harness.runs)
	assert.Contains(t, f.harness.seen, "cs:~myns/app-5", "harness tests the upgraded working copy")
	assert.Equal(t, "42", f.harness.build)
	assert.Equal(t, []string{"aws", "gce"}, f.harness.envs)

	assert.Equal(t, []string{"cs:~myns/app-5@stable", "cs:~myns/demo-1@stable"}, f.repo.published)
	assert.Equal(t, []string{"cs:~myns/app-7", "cs:~myns/demo-1"}, f.repo.granted)
	assert.Equal(t, []string{"cs:~myns/demo"}, f.repo.pushed)

	assert.Contains(t, f.repo.pushedDoc, "charm: cs:~myns/app-7", "bundle points at the post-publish revision")
	assert.NotContains(t, f.repo.pushedDoc, "cs:~myns/app-5")
	assert.Equal(t, []string{"cs:~myns/app-7"}, result.Released)
	assert.Equal(t, "cs:~myns/demo-1", result.Bundle)
	assertWorkRootEmpty(t, f.opts.WorkRoot)
}

func TestBuildAndReleaseTestFailureReleasesNothing(t *testing.T) {
	f := newFixture(t, releasePolicy)
	f.harness.err = errors.New("cwr failed")

	_, err := f.coordinator(t).BuildAndRelease(context.Background(), f.target, "7", []string{"aws"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTestFailed)
	assert.Empty(t, f.repo.published)
	assert.Empty(t, f.repo.granted)
	assert.Empty(t, f.repo.pushed)
	assertWorkRootEmpty(t, f.opts.WorkRoot)
}

func TestBuildAndReleaseWithoutReleasePolicy(t *testing.T) {
	f := newFixture(t, "charm-upgrade:\n  app:\n    from-channel: edge\n")
	result, err := f.coordinator(t).BuildAndRelease(context.Background(), f.target, "1", []string{"aws"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.harness.runs)
	assert.Empty(t, f.repo.published)
	assert.Empty(t, f.repo.granted)
	assert.Empty(t, result.Released)
	assert.Empty(t, result.Bundle)
}

func TestBuildAndReleaseSharedCharmReleasedOnce(t *testing.T) {
	f := newFixture(t, releasePolicy)
	f.cloner.files[bundle.FileName] = `services:
  app:
    charm: cs:~myns/app-3
  app-replica:
    charm: cs:~myns/app-3
`
	result, err := f.coordinator(t).BuildAndRelease(context.Background(), f.target, "9", []string{"aws"})
	require.NoError(t, err)

	assert.Equal(t, []string{"cs:~myns/app-5@stable", "cs:~myns/demo-1@stable"}, f.repo.published)
	assert.Equal(t, []string{"cs:~myns/app-5"}, result.Released)
	assert.Equal(t, 2, strings.Count(f.repo.pushedDoc, "cs:~myns/app-5"))
}

func TestBuildAndReleasePublishFailure(t *testing.T) {
	f := newFixture(t, releasePolicy)
	f.repo.publishErr = errors.New("denied")

	_, err := f.coordinator(t).BuildAndRelease(context.Background(), f.target, "3", []string{"aws"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRelease)
	assert.Empty(t, f.repo.granted)
	assert.Empty(t, f.repo.pushed)
	assertWorkRootEmpty(t, f.opts.WorkRoot)
}

func TestBuildAndReleaseDryRun(t *testing.T) {
	f := newFixture(t, releasePolicy)
	f.opts.DryRun = true
	c := f.coordinator(t)

	result, err := c.BuildAndRelease(context.Background(), f.target, "5", []string{"aws"})
	require.NoError(t, err)

	assert.Zero(t, f.harness.runs)
	assert.Empty(t, f.repo.published)
	assert.Empty(t, f.repo.granted)
	assert.Empty(t, f.repo.pushed)
	assert.Contains(t, f.repo.queries, "cs:~myns/app@edge")
	assert.Contains(t, f.repo.queries, "cs:~myns/app@stable")

	calls := c.Recording()
	ops := make([]string, 0, len(calls))
	for _, call := range calls {
		ops = append(ops, call.Op)
	}
	assert.Equal(t, []string{OpTest, OpPublish, OpGrant, OpPush, OpPublish, OpGrant}, ops)
	assert.Equal(t, []string{"cs:~myns/app-5", "stable"}, calls[1].Args)
	assert.Equal(t, "cs:~myns/demo", result.Bundle)
}

func TestRecordingNilWithoutDryRun(t *testing.T) {
	f := newFixture(t, "")
	assert.Nil(t, f.coordinator(t).Recording())
}
