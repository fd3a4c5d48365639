package adapters

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
)

// SchemaFetcherAdapter routes a schema URI to the fetcher for its scheme.
// URIs without a scheme are read as local paths.
type SchemaFetcherAdapter struct {
	File ports.SchemaFetchPort
	HTTP ports.SchemaFetchPort
}

func NewSchemaFetcherAdapter(file ports.SchemaFetchPort, http ports.SchemaFetchPort) SchemaFetcherAdapter {
	return SchemaFetcherAdapter{File: file, HTTP: http}
}

func (a SchemaFetcherAdapter) Fetch(ctx context.Context, uri string) (string, error) {
	scheme := shared.URIScheme(uri)
	switch scheme {
	case "", "file":
		if a.File != nil {
			return a.File.Fetch(ctx, uri)
		}
	case "http", "https":
		if a.HTTP != nil {
			return a.HTTP.Fetch(ctx, uri)
		}
	}
	return "", errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Unsupported schema location scheme '" + scheme + "'")
}

var _ ports.SchemaFetchPort = SchemaFetcherAdapter{}
