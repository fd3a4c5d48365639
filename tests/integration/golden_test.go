package integration

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/adapters"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/app"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/tests/testutil"
)

var fixturePipelines = []string{"azure-pipelines.yml", "invalid.yml", "multi-document.yml"}

func validateFixtures(t *testing.T, root string) app.ValidateResult {
	t.Helper()
	service, err := app.NewService(app.DefaultConfig())
	require.NoError(t, err)
	result, err := service.Validate(t.Context(), app.ValidateRequest{
		Paths:     []string{filepath.Join(root, "fixtures", "pipelines")},
		Patterns:  fixturePipelines,
		SchemaURI: filepath.Join(root, "fixtures", "schemas", "pipeline.json"),
	})
	require.NoError(t, err)
	require.Len(t, result.Documents, len(fixturePipelines))
	return result
}

// TestGoldenValidate validates the fixture pipelines and compares the
// rendered diagnostics against committed golden files.  If the golden files
// do not exist yet (first run), they are written so they can be committed.
//
// To update golden files after an intentional change, delete the
// testdata/golden/ directory and re-run the test.
func TestGoldenValidate(t *testing.T) {
	root := testutil.RepoRoot(t)
	goldenDir := filepath.Join(root, "tests", "integration", "testdata", "golden")
	result := validateFixtures(t, root)

	outputs := map[string]types.OutputFormat{
		"diagnostics.txt":  types.OutputFormatText,
		"diagnostics.json": types.OutputFormatJSON,
	}
	for name, format := range outputs {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			writer := adapters.NewDiagnosticsWriter(format, adapters.ColorNever)
			require.NoError(t, writer.Write(&buf, result.Documents))
			// Golden files must not depend on where the repository lives.
			actual := strings.ReplaceAll(buf.String(), shared.FileURI(root), "file:///repo")

			goldenPath := filepath.Join(goldenDir, name)
			if _, statErr := os.Stat(goldenPath); os.IsNotExist(statErr) {
				require.NoError(t, os.MkdirAll(goldenDir, 0o755))
				require.NoError(t, os.WriteFile(goldenPath, []byte(actual), 0o644))
				t.Logf("golden file written: %s (commit it)", goldenPath)
				return
			}

			expected, err := os.ReadFile(goldenPath)
			require.NoError(t, err)
			assert.Equal(t, string(expected), actual,
				"golden mismatch for %s -- delete testdata/golden/ and re-run to regenerate", name)
		})
	}
}

// TestGoldenValidateStructure checks properties of the fixture run that do
// not depend on exact positions or wording.
func TestGoldenValidateStructure(t *testing.T) {
	result := validateFixtures(t, testutil.RepoRoot(t))

	byName := map[string]types.DocumentDiagnostics{}
	for _, document := range result.Documents {
		byName[filepath.Base(document.URI)] = document
	}

	t.Run("valid pipeline is clean", func(t *testing.T) {
		assert.Empty(t, byName["azure-pipelines.yml"].Diagnostics)
	})

	t.Run("diagnostics are ordered by position", func(t *testing.T) {
		diagnostics := byName["invalid.yml"].Diagnostics
		require.NotEmpty(t, diagnostics)
		for i := 1; i < len(diagnostics); i++ {
			prev, cur := diagnostics[i-1].Range.Start, diagnostics[i].Range.Start
			assert.True(t, prev.Line < cur.Line || (prev.Line == cur.Line && prev.Character <= cur.Character),
				"diagnostic %d is out of order", i)
		}
	})

	t.Run("multi-document files report one problem", func(t *testing.T) {
		diagnostics := byName["multi-document.yml"].Diagnostics
		require.Len(t, diagnostics, 1)
		assert.Equal(t, types.CodeMultipleDocuments, diagnostics[0].Code)
	})

	t.Run("every diagnostic carries the source", func(t *testing.T) {
		for _, document := range result.Documents {
			for _, d := range document.Diagnostics {
				assert.Equal(t, types.DiagnosticSource, d.Source)
			}
		}
	})
}
