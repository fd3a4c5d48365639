package core

import (
	"context"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"go.lsp.dev/protocol"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/policies"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// YAMLValidation turns a parsed text document into diagnostics: document
// policy violations, parse errors and schema findings.
type YAMLValidation struct {
	Schemas   *SchemaService
	Validator Validator
	Documents policies.SingleDocumentPolicy
	Severity  policies.SeverityPolicy
}

// ValidationReport is the outcome of validating one document.  Resolution
// errors describe problems with the schema, not with the document, and are
// kept apart from the diagnostics.
type ValidationReport struct {
	Diagnostics      []protocol.Diagnostic
	SchemaURI        string
	ResolutionErrors []string
}

func NewYAMLValidation(schemas *SchemaService, validator Validator, severity policies.SeverityPolicy) YAMLValidation {
	return YAMLValidation{
		Schemas:   schemas,
		Validator: validator,
		Documents: policies.NewSingleDocumentPolicy(),
		Severity:  severity,
	}
}

// DoValidation returns the diagnostics for doc sorted by position.
func (v YAMLValidation) DoValidation(ctx context.Context, doc types.TextDocument, parsed []*types.Document) ([]protocol.Diagnostic, error) {
	report, err := v.Validate(ctx, doc, parsed)
	if err != nil {
		return nil, err
	}
	return report.Diagnostics, nil
}

func (v YAMLValidation) Validate(ctx context.Context, doc types.TextDocument, parsed []*types.Document) (ValidationReport, error) {
	if v.Schemas == nil {
		return ValidationReport{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("validation requires a schema service")
	}
	report := ValidationReport{SchemaURI: doc.SchemaURI}
	if len(parsed) == 0 {
		return report, nil
	}
	if diagnostic, violated := v.Documents.Check(parsed); violated {
		report.Diagnostics = v.Severity.Apply([]protocol.Diagnostic{diagnostic})
		return report, nil
	}

	document := parsed[0]
	var diagnostics []protocol.Diagnostic
	for _, parseErr := range document.Errors {
		severity := protocol.DiagnosticSeverityError
		if parseErr.Code == types.CodeMaxDepth {
			severity = protocol.DiagnosticSeverityWarning
		}
		diagnostics = append(diagnostics, diagnostic(parseErr.Range, severity, parseErr.Code, parseErr.Message))
	}

	if document.Root != nil {
		schema, err := v.schemaFor(ctx, doc)
		if err != nil {
			return ValidationReport{}, err
		}
		if schema != nil {
			report.ResolutionErrors = schema.Errors
			for _, msg := range schema.Errors {
				log.Ctx(ctx).Warn().Str("document", doc.URI).Str("problem", msg).Msg("schema resolution problem")
			}
			diagnostics = append(diagnostics, v.Validator.Validate(document.Root, schema.Schema)...)
		}
	}

	sort.SliceStable(diagnostics, func(i, j int) bool {
		return positionBefore(diagnostics[i].Range.Start, diagnostics[j].Range.Start)
	})
	report.Diagnostics = v.Severity.Apply(diagnostics)
	log.Ctx(ctx).Debug().Str("document", doc.URI).Int("diagnostics", len(report.Diagnostics)).Msg("document validated")
	return report, nil
}

func (v YAMLValidation) schemaFor(ctx context.Context, doc types.TextDocument) (*types.ResolvedSchema, error) {
	if doc.SchemaURI != "" {
		return v.Schemas.GetResolvedSchema(ctx, doc.SchemaURI)
	}
	if doc.URI == "" {
		return nil, nil
	}
	return v.Schemas.GetSchemaForResource(ctx, doc.URI)
}

func positionBefore(a, b protocol.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}
