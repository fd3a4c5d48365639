package types

type ResolutionState string

const (
	ResolutionUnresolved ResolutionState = "unresolved"
	ResolutionResolving  ResolutionState = "resolving"
	ResolutionResolved   ResolutionState = "resolved"
	ResolutionError      ResolutionState = "error"
)

type NodeKind string

const (
	NodeScalar   NodeKind = "scalar"
	NodeMapping  NodeKind = "mapping"
	NodeSequence NodeKind = "sequence"
	// NodeOpaque stands for aliases and for content beyond the nesting
	// limit; it matches any schema.
	NodeOpaque NodeKind = "opaque"
)

type ScalarTag string

const (
	TagString  ScalarTag = "string"
	TagInteger ScalarTag = "integer"
	TagFloat   ScalarTag = "number"
	TagBoolean ScalarTag = "boolean"
	TagNull    ScalarTag = "null"
)

type KeyKind string

const (
	KeyLiteral    KeyKind = "literal"
	KeyExpression KeyKind = "expression"
	KeyMalformed  KeyKind = "malformed"
)

type ExpressionKind string

const (
	ExpressionInterpolation ExpressionKind = "interpolation"
	ExpressionEmbedded      ExpressionKind = "embedded"
	ExpressionIf            ExpressionKind = "if"
	ExpressionElseIf        ExpressionKind = "elseif"
	ExpressionElse          ExpressionKind = "else"
	ExpressionEach          ExpressionKind = "each"
	ExpressionInsert        ExpressionKind = "insert"
	ExpressionMacro         ExpressionKind = "macro"
	ExpressionRuntime       ExpressionKind = "runtime"
	ExpressionMalformed     ExpressionKind = "malformed"
)

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)
