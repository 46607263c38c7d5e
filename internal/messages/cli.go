package messages

// CLI messages for user-facing commands.
const (
	// RootUse is the CLI command name.
	RootUse = "bundlebuilder"
	// RootShort is the short description for the root command.
	RootShort = "Check, test and release charm bundles"
	RootLong  = "bundlebuilder upgrades the charms of a bundle to the latest revisions allowed by its\nci-info.yaml policy, decides whether a new build is needed, tests the result and\nreleases the charms and the bundle."

	RootFlagConfig    = "Path to a bundlebuilder TOML settings file"
	RootFlagCIInfo    = "Override the bundle's ci-info.yaml policy file"
	RootFlagSignature = "Path of the file holding the last triggered bundle signature"
	RootFlagDryRun    = "Record store and test harness calls without executing them"
	RootFlagLock      = "Hold an exclusive lock on the signature file for the duration of the run"
	RootFlagVerbose   = "Enable debug logging"

	// VersionCommitFmt formats the commit hash for version display.
	VersionCommitFmt = "commit %s"
	VersionBuildFmt  = "built %s"
	VersionFullFmt   = "%s (%s)"
	VersionTemplate  = "{{.Version}}\n"

	// CheckUse is the check command usage.
	CheckUse   = "check <repo> <branch> <subdir>"
	CheckShort = "Exit 0 when the bundle has upgrades that were not built yet, 1 otherwise"

	CheckTriggerFmt   = "Build should be triggered for %s\n"
	CheckNoTriggerFmt = "No new build needed for %s\n"

	// BuildUse is the build command usage.
	BuildUse   = "build <repo> <branch> <subdir> <build-id> <env>..."
	BuildShort = "Upgrade, test and release the bundle"

	BuildDoneFmt         = "Bundle %s tested and released (build %s)\n"
	BuildReleasedFmt     = "Released %s\n"
	BuildBundleFmt       = "Released bundle %s\n"
	BuildDryRunHeader    = "Dry run, recorded calls:"
	BuildDryRunLine      = "  - %s\n"
	BuildFakeOutputInUse = "harness replays recorded output"

	// JUnitUse is the junit command usage.
	JUnitUse   = "junit <results-dir> <artifact> <build-id>"
	JUnitShort = "Convert a cloud-weather-report report.json into JUnit XML"
	// JUnitNotPassed is logged when the converted report holds failing tests.
	JUnitNotPassed = "report contains tests that did not pass"

	BundleChangesHeader = "Bundle changes:"
)
