package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
)

func (s Service) ResolveSchema(ctx context.Context, req ResolveSchemaRequest) (ResolveSchemaResult, error) {
	uri, err := requireSchemaURI(req.URI)
	if err != nil {
		return ResolveSchemaResult{}, err
	}
	resolved, err := s.Schemas.GetResolvedSchema(ctx, uri)
	if err != nil {
		return ResolveSchemaResult{}, err
	}
	return ResolveSchemaResult{
		URI:    uri,
		Schema: resolved.Schema,
		Errors: resolved.Errors,
		State:  s.Schemas.State(uri),
	}, nil
}

// SchemaSection resolves the schema and walks path through it.
func (s Service) SchemaSection(ctx context.Context, req SchemaSectionRequest) (SchemaSectionResult, error) {
	uri, err := requireSchemaURI(req.URI)
	if err != nil {
		return SchemaSectionResult{}, err
	}
	resolved, err := s.Schemas.GetResolvedSchema(ctx, uri)
	if err != nil {
		return SchemaSectionResult{}, err
	}
	section := resolved.GetSection(req.Path)
	return SchemaSectionResult{
		URI:     uri,
		Section: section,
		Found:   section != nil,
		Errors:  resolved.Errors,
	}, nil
}

func (s Service) LoadSchema(ctx context.Context, req LoadSchemaRequest) (LoadSchemaResult, error) {
	uri, err := requireSchemaURI(req.URI)
	if err != nil {
		return LoadSchemaResult{}, err
	}
	raw, err := s.Schemas.LoadSchema(ctx, uri)
	if err != nil {
		return LoadSchemaResult{}, err
	}
	return LoadSchemaResult{URI: uri, Schema: raw.Schema, Errors: raw.Errors}, nil
}

func requireSchemaURI(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("schema uri is required")
	}
	return shared.ToURI(value), nil
}

// SplitSectionPath splits a dotted or slashed section path into segments.
func SplitSectionPath(path string) []string {
	fields := strings.FieldsFunc(path, func(r rune) bool {
		return r == '.' || r == '/'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
