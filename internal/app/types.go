package app

import "github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"

const defaultWorkers = 4

type ValidateRequest struct {
	// Paths are pipeline files or directories to scan.
	Paths            []string
	Patterns         []string
	SchemaURI        string
	AssociationFiles []string
}

type ValidateResult struct {
	Documents    []types.DocumentDiagnostics
	ErrorCount   int
	WarningCount int
}

type ResolveSchemaRequest struct {
	URI string
}

type ResolveSchemaResult struct {
	URI    string
	Schema *types.SchemaNode
	Errors []string
	// State is the registry state after resolving; a root that could not
	// be loaded reports ResolutionError.
	State types.ResolutionState
}

type SchemaSectionRequest struct {
	URI  string
	Path []string
}

type SchemaSectionResult struct {
	URI     string
	Section *types.SchemaNode
	Found   bool
	Errors  []string
}

type LoadSchemaRequest struct {
	URI string
}

type LoadSchemaResult struct {
	URI    string
	Schema *types.SchemaNode
	Errors []string
}
