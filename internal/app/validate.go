package app

import (
	"context"
	"os"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"go.lsp.dev/protocol"
	"golang.org/x/sync/errgroup"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// Validate checks every pipeline file named by the request, directly or by
// scanning directories, and returns one result per file in path order.
func (s Service) Validate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	if len(req.Paths) == 0 {
		return ValidateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("at least one pipeline file or directory is required")
	}
	if err := s.registerAssociations(req.AssociationFiles); err != nil {
		return ValidateResult{}, err
	}
	files, err := s.expandPaths(req.Paths, req.Patterns)
	if err != nil {
		return ValidateResult{}, err
	}
	schemaURI := shared.ToURI(req.SchemaURI)

	results := make([]types.DocumentDiagnostics, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.Workers)
	for i, file := range files {
		group.Go(func() error {
			result, err := s.validateFile(groupCtx, file, schemaURI)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ValidateResult{}, err
	}

	out := ValidateResult{Documents: results}
	for _, result := range results {
		for _, d := range result.Diagnostics {
			switch d.Severity {
			case protocol.DiagnosticSeverityError:
				out.ErrorCount++
			case protocol.DiagnosticSeverityWarning:
				out.WarningCount++
			}
		}
	}
	log.Ctx(ctx).Debug().
		Int("files", len(files)).
		Int("errors", out.ErrorCount).
		Int("warnings", out.WarningCount).
		Msg("validation finished")
	return out, nil
}

func (s Service) validateFile(ctx context.Context, file string, schemaURI string) (types.DocumentDiagnostics, error) {
	doc, err := s.Documents.ReadDocument(file)
	if err != nil {
		return types.DocumentDiagnostics{}, err
	}
	assert.NotEmpty(ctx, doc.URI, "document uri must be set")
	doc.SchemaURI = schemaURI
	report, err := s.Validation.Validate(ctx, doc, s.Parser.Parse(doc.Content))
	if err != nil {
		return types.DocumentDiagnostics{}, err
	}
	return types.DocumentDiagnostics{
		URI:              doc.URI,
		Diagnostics:      report.Diagnostics,
		SchemaURI:        report.SchemaURI,
		ResolutionErrors: report.ResolutionErrors,
	}, nil
}

// registerAssociations loads the association files as layers and registers
// the merged table with the schema registry.  Entries with a path are
// fetched from that path.
func (s Service) registerAssociations(files []string) error {
	if len(files) == 0 {
		return nil
	}
	if s.Associations == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("association source is not configured")
	}
	for _, file := range files {
		if err := s.Associations.LoadAssociations(file); err != nil {
			return err
		}
	}
	s.Schemas.ClearExternalSchemas()
	for _, association := range s.Associations.Associations() {
		location := association.URI
		if association.Path != "" {
			location = shared.ToURI(association.Path)
		}
		if err := s.Schemas.RegisterExternalSchema(location, association.FilePatterns, nil); err != nil {
			return err
		}
	}
	log.Debug().
		Strs("layers", s.Associations.Layers()).
		Int("schemas", len(s.Associations.Associations())).
		Msg("schema associations registered")
	return nil
}

func (s Service) expandPaths(paths []string, patterns []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	add := func(file string) {
		if _, dup := seen[file]; dup {
			return
		}
		seen[file] = struct{}{}
		files = append(files, file)
	}
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("pipeline path not found: " + path).
				WithCause(err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := s.Documents.FindPipelineFiles(path, patterns)
		if err != nil {
			return nil, err
		}
		for _, file := range found {
			add(file)
		}
	}
	if len(files) == 0 {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("no pipeline files found")
	}
	return files, nil
}
