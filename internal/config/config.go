// Package config loads the optional bundlebuilder settings file.
package config

// Config is the full settings document. Every section is optional; missing
// keys keep the values from Default.
type Config struct {
	Charm   CharmConfig   `toml:"charm"`
	Harness HarnessConfig `toml:"harness"`
	State   StateConfig   `toml:"state"`
	Run     RunConfig     `toml:"run"`
}

// CharmConfig configures the charm store client.
type CharmConfig struct {
	Binary string `toml:"binary"`
	// DryRun echoes release, push and grant instead of running them while
	// store queries and the test harness still run for real.
	DryRun bool `toml:"dry_run"`
}

// HarnessConfig configures the test harness.
type HarnessConfig struct {
	Command        []string `toml:"command"`
	JobName        string   `toml:"job_name"`
	ArtifactsDir   string   `toml:"artifacts_dir"`
	FakeOutput     string   `toml:"fake_output"`
	MockResultsDir string   `toml:"mock_results_dir"`
	EnvFile        string   `toml:"env_file"`
	// DryRun echoes the helper invocation instead of running it.
	DryRun bool `toml:"dry_run"`
	// Scenario is taken from OUTPUT_SCENARIO and names a recorded archive under MockResultsDir.
	Scenario string `toml:"-"`
}

// StateConfig locates persisted and scratch state.
type StateConfig struct {
	SignatureFile string `toml:"signature_file"`
	WorkRoot      string `toml:"work_root"`
}

// RunConfig holds run-wide switches that the CLI flags can also set.
type RunConfig struct {
	DryRun bool `toml:"dry_run"`
	Lock   bool `toml:"lock"`
}

// Environment variables consulted by Resolve.
const (
	EnvJobName        = "JOB_NAME"
	EnvOutputScenario = "OUTPUT_SCENARIO"
)

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Charm: CharmConfig{Binary: "charm"},
		Harness: HarnessConfig{
			Command:        []string{"/var/lib/jenkins/scripts/cwr-helpers.sh", "run_cwr_in_container"},
			ArtifactsDir:   "/srv/artifacts",
			MockResultsDir: "/var/lib/jenkins/mock-results",
		},
		State: StateConfig{SignatureFile: "last_bundle.signature"},
	}
}

// Resolve fills the harness job name and fake scenario from the environment
// when the file leaves them empty. getenv is usually os.Getenv.
func (c *Config) Resolve(getenv func(string) string) {
	if c.Harness.JobName == "" {
		c.Harness.JobName = getenv(EnvJobName)
	}
	if c.Harness.FakeOutput == "" {
		c.Harness.Scenario = getenv(EnvOutputScenario)
	}
}
