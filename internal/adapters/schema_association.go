package adapters

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// SchemaAssociationAdapter implements SchemaAssociationPort using layered
// association YAML files.  Each call to LoadAssociations merges new entries
// into the internal table; later loads override earlier ones per schema URI.
type SchemaAssociationAdapter struct {
	merged map[string]types.SchemaAssociation

	// layers tracks load order for debugging.
	layers []string
}

func NewSchemaAssociationAdapter() *SchemaAssociationAdapter {
	return &SchemaAssociationAdapter{
		merged: make(map[string]types.SchemaAssociation),
	}
}

// LoadAssociations reads an association file and merges its entries.  An
// entry's path, when relative, is resolved against the file's directory
// and becomes the schema location.
func (a *SchemaAssociationAdapter) LoadAssociations(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read association file: " + path).
			WithCause(err)
	}

	var file types.SchemaAssociationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse association file: " + path).
			WithCause(err)
	}

	if file.SchemaVersion == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("association file missing schema_version: " + path)
	}

	dir := filepath.Dir(path)
	for key, entry := range file.Schemas {
		uri := strings.TrimSpace(key)
		if uri == "" {
			continue
		}
		if len(entry.FileMatch) == 0 {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("schema '" + uri + "' has no file_match in " + path)
		}

		association := types.SchemaAssociation{
			URI:          uri,
			FilePatterns: append([]string(nil), entry.FileMatch...),
		}
		if entry.Path != "" {
			location := entry.Path
			if shared.URIScheme(location) == "" && !filepath.IsAbs(location) {
				location = filepath.Join(dir, location)
			}
			association.Path = location
		}

		if _, exists := a.merged[uri]; exists {
			log.Debug().
				Str("schema", uri).
				Str("layer", path).
				Msg("schema association overridden by later layer")
		}
		a.merged[uri] = association
	}

	a.layers = append(a.layers, path)
	log.Debug().
		Str("path", path).
		Int("schemas", len(file.Schemas)).
		Int("total", len(a.merged)).
		Msg("association layer loaded")

	return nil
}

func (a *SchemaAssociationAdapter) Associations() []types.SchemaAssociation {
	out := make([]types.SchemaAssociation, 0, len(a.merged))
	for _, association := range a.merged {
		out = append(out, association)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].URI < out[j].URI
	})
	return out
}

// Layers returns the loaded files in load order.
func (a *SchemaAssociationAdapter) Layers() []string {
	return append([]string(nil), a.layers...)
}

var _ ports.SchemaAssociationPort = (*SchemaAssociationAdapter)(nil)
