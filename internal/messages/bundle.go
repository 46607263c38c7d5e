package messages

// Bundle, policy, source and signature messages.
const (
	SourceFetchFailed        = "fetch failed"
	SourceRepoRequired       = "repository URL is required"
	SourceBranchRequired     = "branch is required"
	SourceCloneFmt           = "clone %s (branch %s): %w"
	SourceCloneIntoFmt       = "clone into %s: %w"
	BundleMalformed          = "malformed bundle"
	BundleReadFmt            = "read %s: %w"
	BundleParseFmt           = "parse %s: %w"
	BundleWriteFmt           = "write %s: %w"
	BundleEncodeFmt          = "encode %s: %w"
	BundleNotMappingFmt      = "%s: top-level document must be a mapping"
	BundleMissingServicesFmt = "%s: missing services or applications mapping"
	BundleServiceInvalidFmt  = "%s: service %q must be a mapping"
	BundleCharmMissingFmt    = "%s: service %q has no charm"
	BundleUnknownServiceFmt  = "unknown service %q"

	PolicyMalformed              = "malformed policy"
	PolicyReadFmt                = "read %s: %w"
	PolicyParseFmt               = "parse %s: %w"
	PolicyFromChannelRequiredFmt = "%s: charm-upgrade.%s.from-channel is required"
	PolicyToChannelRequiredFmt   = "%s: charm-upgrade.%s.to-channel is required when release is true"
	PolicyBundleFieldRequiredFmt = "%s: bundle.%s is required when bundle.release is true"

	SignatureReadFmt  = "read signature %s: %w"
	SignatureWriteFmt = "write signature %s: %w"
	SignatureHashFmt  = "compute bundle signature: %w"
)
