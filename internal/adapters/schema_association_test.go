package adapters

import (
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

func TestSchemaAssociationAdapter_Layers(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base", "associations.yaml")
	writeFile(t, base, `schema_version: "v1"
schemas:
  https://example.test/pipeline.json:
    file_match: ["azure-pipelines.yml"]
    path: schemas/pipeline.json
  https://example.test/template.json:
    file_match: ["templates/*.yml"]
`)
	override := filepath.Join(dir, "override.yaml")
	writeFile(t, override, `schema_version: "v1"
schemas:
  https://example.test/pipeline.json:
    file_match: ["*.pipeline.yml", "azure-pipelines.yml"]
    path: https://mirror.test/pipeline.json
`)

	adapter := NewSchemaAssociationAdapter()
	require.NoError(t, adapter.LoadAssociations(base))

	want := []types.SchemaAssociation{
		{
			URI:          "https://example.test/pipeline.json",
			FilePatterns: []string{"azure-pipelines.yml"},
			Path:         filepath.Join(dir, "base", "schemas", "pipeline.json"),
		},
		{
			URI:          "https://example.test/template.json",
			FilePatterns: []string{"templates/*.yml"},
		},
	}
	if diff := cmp.Diff(want, adapter.Associations()); diff != "" {
		t.Fatalf("unexpected associations (-want +got):\n%s", diff)
	}

	require.NoError(t, adapter.LoadAssociations(override))
	want[0] = types.SchemaAssociation{
		URI:          "https://example.test/pipeline.json",
		FilePatterns: []string{"*.pipeline.yml", "azure-pipelines.yml"},
		Path:         "https://mirror.test/pipeline.json",
	}
	if diff := cmp.Diff(want, adapter.Associations()); diff != "" {
		t.Fatalf("unexpected associations after override (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{base, override}, adapter.Layers())
}

func TestSchemaAssociationAdapter_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		code    errbuilder.ErrCode
		msg     string
	}{
		{name: "invalid yaml", content: "schemas: [", code: errbuilder.CodeInvalidArgument, msg: "failed to parse"},
		{name: "missing version", content: "schemas: {}\n", code: errbuilder.CodeInvalidArgument, msg: "missing schema_version"},
		{
			name:    "missing file match",
			content: "schema_version: v1\nschemas:\n  https://example.test/a.json:\n    path: a.json\n",
			code:    errbuilder.CodeInvalidArgument,
			msg:     "has no file_match",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			writeFile(t, path, tt.content)
			err := NewSchemaAssociationAdapter().LoadAssociations(path)
			require.Error(t, err)
			assert.Equal(t, tt.code, errbuilder.CodeOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	err := NewSchemaAssociationAdapter().LoadAssociations(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}
