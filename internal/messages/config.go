package messages

// Config messages for settings loading and validation.
const (
	// ConfigMissingFileFmt formats missing config file errors.
	ConfigMissingFileFmt        = "missing config file %s: %w"
	ConfigInvalidConfigFmt      = "invalid config %s: %w"
	ConfigUnrecognizedKeysFmt   = "%s: unrecognized keys: %v"
	ConfigExpandPathFmt         = "%s: expand %s: %w"
	ConfigCharmBinaryRequired   = "%s: charm.binary is required"
	ConfigHarnessCommandMissing = "%s: harness.command must name a helper to run"
	ConfigSignatureRequired     = "%s: state.signature_file is required"

	ConfigMissingEnvFileFmt = "missing env file %s: %w"
	ConfigInvalidEnvFileFmt = "invalid env file %s: %w"

	EnvfileLineErrorFmt      = "line %d: %w"
	EnvfileReadFailedFmt     = "read env content: %w"
	EnvfileMissingEquals     = "missing '='"
	EnvfileEmptyKey          = "empty key"
	EnvfileUnterminatedQuote = "unterminated quoted value"
	EnvfileQuotedSuffix      = "unexpected text after quoted value"
)
