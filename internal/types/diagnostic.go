package types

// DiagnosticSource is reported as the source of every diagnostic.
const DiagnosticSource = "azure-pipelines"

// Diagnostic codes.
const (
	CodeSyntax            = "syntax"
	CodeDuplicateKey      = "duplicate-key"
	CodeMaxDepth          = "max-depth"
	CodeMultipleDocuments = "multiple-documents"
	CodeTypeMismatch      = "type-mismatch"
	CodeEnumMismatch      = "enum-mismatch"
	CodeUnknownProperty   = "unknown-property"
	CodeMissingProperty   = "missing-property"
	CodeFirstProperty     = "first-property"
	CodePatternMismatch   = "pattern-mismatch"
	CodeLength            = "length"
	CodeRange             = "range"
	CodeItemCount         = "item-count"
	CodeOneOf             = "one-of"
	CodeNotAllowed        = "not-allowed"
	CodeDeprecated        = "deprecated"
)

type Severity string

const (
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
	SeverityHint        Severity = "hint"
	SeverityOff         Severity = "off"
)
