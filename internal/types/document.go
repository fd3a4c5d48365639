package types

import "go.lsp.dev/protocol"

// Document is one YAML document of a (possibly multi-document) text.  Root
// is nil for an empty document or one whose syntax could not be parsed.
type Document struct {
	Root   *Node
	Errors []ParseError
	Range  protocol.Range
}

type ParseError struct {
	Range   protocol.Range
	Code    string
	Message string
}

type Node struct {
	Kind  NodeKind
	Range protocol.Range

	Tag        ScalarTag
	Value      string
	Expression *Expression

	Pairs []*KeyValue
	Items []*Node

	// Dynamic is set when the node or anything below it contains a
	// template expression.
	Dynamic bool
}

type KeyValue struct {
	Key        *Node
	KeyKind    KeyKind
	Expression *Expression
	Value      *Node
}

// Expression is a classified `${{ }}` (or macro / runtime) occurrence.  Body
// is the text inside the delimiters; for directives it is what follows the
// directive word (the condition, the `each` collection, ...).
type Expression struct {
	Kind     ExpressionKind
	Body     string
	Variable string
}

// IsDirective reports whether the expression changes document shape
// (conditionals, loops, insertion) rather than producing a value.
func (e *Expression) IsDirective() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ExpressionIf, ExpressionElseIf, ExpressionElse, ExpressionEach, ExpressionInsert:
		return true
	default:
		return false
	}
}

// Name returns the literal key text.
func (kv *KeyValue) Name() string {
	if kv == nil || kv.Key == nil {
		return ""
	}
	return kv.Key.Value
}

// IsDirective reports whether the key is a conditional, loop or insert
// directive.
func (kv *KeyValue) IsDirective() bool {
	return kv != nil && kv.KeyKind == KeyExpression && kv.Expression.IsDirective()
}

type TextDocument struct {
	URI       string
	Content   string
	SchemaURI string
}

// SchemaContributions is the bulk form accepted by the schema registry:
// inline schemas keyed by id and glob associations to schema URIs.
type SchemaContributions struct {
	Schemas            map[string]any
	SchemaAssociations map[string][]string
}

type SchemaAssociation struct {
	URI          string
	FilePatterns []string
	Path         string
}

type SchemaAssociationFile struct {
	SchemaVersion string                            `yaml:"schema_version"`
	Schemas       map[string]SchemaAssociationEntry `yaml:"schemas"`
}

type SchemaAssociationEntry struct {
	FileMatch []string `yaml:"file_match"`
	Path      string   `yaml:"path"`
}

type DocumentDiagnostics struct {
	URI              string
	Diagnostics      []protocol.Diagnostic
	SchemaURI        string
	ResolutionErrors []string
}
