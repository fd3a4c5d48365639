package ports

import (
	"context"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// SchemaFetchPort retrieves the raw text of a schema document.
//
// Fetch is the only blocking operation of schema resolution.  Failures are
// reported as errors; the registry turns them into resolution error strings
// and never caches them, so a later request retries.
type SchemaFetchPort interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// PathResolverPort resolves a $ref document part against the URI of the
// document that contains it (RFC 3986 reference resolution).
type PathResolverPort interface {
	ResolveRelativePath(ref string, base string) string
}

// SchemaAssociationPort loads schema association files that map file
// patterns to schema URIs.
//
// Each call to LoadAssociations adds a layer.  When several layers name the
// same schema URI the last-loaded layer wins.
type SchemaAssociationPort interface {
	LoadAssociations(path string) error

	// Associations returns the merged table, sorted by schema URI.
	Associations() []types.SchemaAssociation

	// Layers returns the loaded association files in load order.
	Layers() []string
}
