// Package errors provides structured error handling with i18n support.
package errors

// Code is a machine-readable error code.
type Code string

// Category groups codes by the subsystem that raises them.
type Category string

const (
	CategoryCompile Category = "compile"
	CategoryRuntime Category = "runtime"
	CategorySave    Category = "save"
	CategoryAccess  Category = "access"
	CategoryUnknown Category = "unknown"
)

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Compile errors
	CodeMissingStartLabel        Code = "MISSING_START_LABEL"
	CodeDuplicateLabel           Code = "DUPLICATE_LABEL"
	CodeInvalidTarget            Code = "INVALID_TARGET"
	CodeEmptyChoiceOptions       Code = "EMPTY_CHOICE_OPTIONS"
	CodeLimitExceeded            Code = "LIMIT_EXCEEDED"
	CodeMalformedEvent           Code = "MALFORMED_EVENT"
	CodeUnsafeAssetPath          Code = "UNSAFE_ASSET_PATH"
	CodeUnknownAsset             Code = "UNKNOWN_ASSET"
	CodeUnsupportedSchemaVersion Code = "UNSUPPORTED_SCHEMA_VERSION"

	// Runtime errors
	CodeOutOfBounds        Code = "OUT_OF_BOUNDS"
	CodeAwaitingChoice     Code = "AWAITING_CHOICE"
	CodeNotAwaitingChoice  Code = "NOT_AWAITING_CHOICE"
	CodeAlreadyFinished    Code = "ALREADY_FINISHED"
	CodeInvalidChoiceIndex Code = "INVALID_CHOICE_INDEX"
	CodeUndefinedVariable  Code = "UNDEFINED_VARIABLE"
	CodeUnknownCharacter   Code = "UNKNOWN_CHARACTER"
	CodeUnknownLabel       Code = "UNKNOWN_LABEL"

	// Save errors
	CodeNotASaveFile         Code = "NOT_A_SAVE_FILE"
	CodeVersionUnsupported   Code = "VERSION_UNSUPPORTED"
	CodeCorrupt              Code = "CORRUPT"
	CodeScriptMismatch       Code = "SCRIPT_MISMATCH"
	CodeIOFailure            Code = "IO_FAILURE"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeAuthKeyInvalid       Code = "AUTH_KEY_INVALID"
	CodeRecoveryFailed       Code = "RECOVERY_FAILED"
	CodeInvalidSlot          Code = "INVALID_SLOT"
	CodeNotFound             Code = "NOT_FOUND"

	// Access errors
	CodeAccessGrantInvalid  Code = "ACCESS_GRANT_INVALID"
	CodeAccessGrantExpired  Code = "ACCESS_GRANT_EXPIRED"
	CodeAccessGrantMismatch Code = "ACCESS_GRANT_MISMATCH"
)

// Category maps domain codes to the subsystem that reports them.
func (c Code) Category() Category {
	switch c {
	case CodeMissingStartLabel,
		CodeDuplicateLabel,
		CodeInvalidTarget,
		CodeEmptyChoiceOptions,
		CodeLimitExceeded,
		CodeMalformedEvent,
		CodeUnsafeAssetPath,
		CodeUnknownAsset,
		CodeUnsupportedSchemaVersion:
		return CategoryCompile

	case CodeOutOfBounds,
		CodeAwaitingChoice,
		CodeNotAwaitingChoice,
		CodeAlreadyFinished,
		CodeInvalidChoiceIndex,
		CodeUndefinedVariable,
		CodeUnknownCharacter,
		CodeUnknownLabel:
		return CategoryRuntime

	case CodeNotASaveFile,
		CodeVersionUnsupported,
		CodeCorrupt,
		CodeScriptMismatch,
		CodeIOFailure,
		CodeAuthenticationFailed,
		CodeAuthKeyInvalid,
		CodeRecoveryFailed,
		CodeInvalidSlot,
		CodeNotFound:
		return CategorySave

	case CodeAccessGrantInvalid,
		CodeAccessGrantExpired,
		CodeAccessGrantMismatch:
		return CategoryAccess

	default:
		return CategoryUnknown
	}
}
