package messages

// Coordinator, store and harness messages.
const (
	CoordinatorUpgradeLookup    = "upgrade lookup failed"
	CoordinatorTestFailed       = "test harness failure"
	CoordinatorReleaseFailed    = "release failed"
	CoordinatorRepositoryNeeded = "coordinator repository is required"
	CoordinatorClonerNeeded     = "coordinator cloner is required"
	CoordinatorHarnessNeeded    = "coordinator test harness is required"
	CoordinatorLatestFmt        = "latest revision of %s in %s: %w"
	CoordinatorReplaceFmt       = "update %s to %s: %w"
	CoordinatorHarnessFmt       = "test bundle %s: %w"
	CoordinatorPublishFmt       = "release %s to %s: %w"
	CoordinatorGrantFmt         = "grant %s: %w"
	CoordinatorPushFmt          = "push bundle to %s: %w"

	CoordinatorLogState       = "pipeline state"
	CoordinatorLogUpgrade     = "charm upgraded"
	CoordinatorLogCurrent     = "charm up to date"
	CoordinatorLogUnmanaged   = "charm not managed by policy"
	CoordinatorLogAmbiguous   = "charm name is numeric after stripping the revision; revision split may be wrong"
	CoordinatorLogPublished   = "charm released"
	CoordinatorLogBundlePush  = "bundle released"
	CoordinatorLogDryRun      = "dry-run: skipped"
	CoordinatorLogTrigger     = "trigger decision"
	CoordinatorLogCleanupFail = "workspace cleanup failed"
	CoordinatorLogPolicy      = "upgrade policy loaded"
	CoordinatorLogNoPolicy    = "upgrade policy manages nothing; bundle is left as fetched"

	StoreShowOutputFmt = "parse charm show output for %s: %w"
	StoreShowMissingID = "charm show output for %s has no id"

	HarnessJobNameRequired   = "job name is required (set harness.job_name or JOB_NAME)"
	HarnessNoEnvironments    = "at least one target environment is required"
	HarnessFakeFailureFmt    = "faking a failing test run from %s"
	HarnessArtifactDirFmt    = "create artifact dir %s: %w"
	HarnessFakeOutputPassTag = "output-results/pass"

	ReportReadFmt   = "read report %s: %w"
	ReportParseFmt  = "parse report %s: %w"
	ReportEncodeFmt = "encode junit xml: %w"
)
