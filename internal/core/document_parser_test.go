package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

func rng(startLine, startChar, endLine, endChar uint32) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: startLine, Character: startChar},
		End:   protocol.Position{Line: endLine, Character: endChar},
	}
}

func parseSingle(t *testing.T, text string) *types.Document {
	t.Helper()
	docs := ParseDocuments(text)
	require.Len(t, docs, 1)
	return docs[0]
}

func TestParsePositions(t *testing.T) {
	doc := parseSingle(t, "trigger:\n  - main\npool:\n  vmImage: ubuntu-latest\n")
	require.Empty(t, doc.Errors)
	root := doc.Root
	require.Equal(t, types.NodeMapping, root.Kind)
	require.Len(t, root.Pairs, 2)

	trigger := root.Pairs[0]
	assert.Equal(t, "trigger", trigger.Name())
	assert.Equal(t, types.KeyLiteral, trigger.KeyKind)
	if diff := cmp.Diff(rng(0, 0, 0, 7), trigger.Key.Range); diff != "" {
		t.Fatalf("unexpected key range (-want +got):\n%s", diff)
	}
	require.Equal(t, types.NodeSequence, trigger.Value.Kind)
	require.Len(t, trigger.Value.Items, 1)
	if diff := cmp.Diff(rng(1, 4, 1, 8), trigger.Value.Items[0].Range); diff != "" {
		t.Fatalf("unexpected item range (-want +got):\n%s", diff)
	}

	pool := root.Pairs[1].Value
	require.Equal(t, types.NodeMapping, pool.Kind)
	vmImage := pool.Pairs[0]
	if diff := cmp.Diff(rng(3, 2, 3, 9), vmImage.Key.Range); diff != "" {
		t.Fatalf("unexpected key range (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rng(3, 11, 3, 24), vmImage.Value.Range); diff != "" {
		t.Fatalf("unexpected value range (-want +got):\n%s", diff)
	}
	assert.Equal(t, "ubuntu-latest", vmImage.Value.Value)
}

func TestParsePositionsCountUTF16(t *testing.T) {
	doc := parseSingle(t, "name: \"🚀 deploy\"\nemoji: {a: 🚀, b: c}\n")
	require.Empty(t, doc.Errors)

	name := doc.Root.Pairs[0].Value
	if diff := cmp.Diff(rng(0, 6, 0, 17), name.Range); diff != "" {
		t.Fatalf("unexpected quoted value range (-want +got):\n%s", diff)
	}
	assert.Equal(t, "🚀 deploy", name.Value)

	flow := doc.Root.Pairs[1].Value
	require.Len(t, flow.Pairs, 2)
	if diff := cmp.Diff(rng(1, 15, 1, 16), flow.Pairs[1].Key.Range); diff != "" {
		t.Fatalf("unexpected key range after emoji (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rng(1, 18, 1, 19), flow.Pairs[1].Value.Range); diff != "" {
		t.Fatalf("unexpected value range after emoji (-want +got):\n%s", diff)
	}
}

func TestParseCRLF(t *testing.T) {
	doc := parseSingle(t, "a: b\r\nc: d\r\n")
	require.Empty(t, doc.Errors)
	if diff := cmp.Diff(rng(0, 3, 0, 4), doc.Root.Pairs[0].Value.Range); diff != "" {
		t.Fatalf("unexpected value range (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rng(1, 0, 1, 1), doc.Root.Pairs[1].Key.Range); diff != "" {
		t.Fatalf("unexpected key range (-want +got):\n%s", diff)
	}
}

func TestParseScalarTags(t *testing.T) {
	doc := parseSingle(t, "s: text\ni: 42\nf: 1.5\nb: true\nn: ~\nq: \"42\"\ne:\n")
	require.Empty(t, doc.Errors)
	want := map[string]types.ScalarTag{
		"s": types.TagString,
		"i": types.TagInteger,
		"f": types.TagFloat,
		"b": types.TagBoolean,
		"n": types.TagNull,
		"q": types.TagString,
		"e": types.TagNull,
	}
	got := map[string]types.ScalarTag{}
	for _, pair := range doc.Root.Pairs {
		got[pair.Name()] = pair.Value.Tag
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected tags (-want +got):\n%s", diff)
	}
}

func TestParseDuplicateKey(t *testing.T) {
	doc := parseSingle(t, "a: 1\nb: 2\na: 3\n")
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, types.CodeDuplicateKey, doc.Errors[0].Code)
	assert.Equal(t, `Map keys must be unique; "a" is repeated.`, doc.Errors[0].Message)
	if diff := cmp.Diff(rng(2, 0, 2, 1), doc.Errors[0].Range); diff != "" {
		t.Fatalf("unexpected error range (-want +got):\n%s", diff)
	}
	require.NotNil(t, doc.Root)
	assert.Len(t, doc.Root.Pairs, 3)
}

func TestParseRepeatedExpressionKeysAreNotDuplicates(t *testing.T) {
	doc := parseSingle(t, "${{ if a }}:\n  x: 1\n${{ if a }}:\n  y: 2\n")
	assert.Empty(t, doc.Errors)
}

func TestParseDocumentMarkers(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantStarts []uint32
	}{
		{name: "empty text", text: "", wantStarts: []uint32{0}},
		{name: "comments only", text: "# nothing here\n\n", wantStarts: []uint32{0}},
		{name: "leading marker", text: "---\nkey: v\n", wantStarts: []uint32{0}},
		{name: "two documents", text: "a: 1\n---\nb: 2\n", wantStarts: []uint32{0, 1}},
		{name: "trailing comment document", text: "a: 1\n---\n# just a comment\n", wantStarts: []uint32{0}},
		{name: "end marker", text: "a: 1\n...\n", wantStarts: []uint32{0}},
		{name: "directive", text: "%YAML 1.2\n---\na: 1\n", wantStarts: []uint32{1}},
		{name: "marker lookalike", text: "a: ---x\n", wantStarts: []uint32{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := ParseDocuments(tt.text)
			starts := make([]uint32, 0, len(docs))
			for _, doc := range docs {
				starts = append(starts, doc.Range.Start.Line)
			}
			if diff := cmp.Diff(tt.wantStarts, starts); diff != "" {
				t.Fatalf("unexpected document starts (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseSyntaxErrorStaysInItsDocument(t *testing.T) {
	docs := ParseDocuments("a: 1\n---\nb: [1, 2\n---\nc: 3\n")
	require.Len(t, docs, 3)

	assert.Empty(t, docs[0].Errors)
	require.NotNil(t, docs[0].Root)

	require.Len(t, docs[1].Errors, 1)
	syntax := docs[1].Errors[0]
	assert.Equal(t, types.CodeSyntax, syntax.Code)
	assert.NotEmpty(t, syntax.Message)
	assert.GreaterOrEqual(t, syntax.Range.Start.Line, uint32(1))
	assert.LessOrEqual(t, syntax.Range.Start.Line, uint32(2))
	assert.Nil(t, docs[1].Root)

	assert.Empty(t, docs[2].Errors)
	require.NotNil(t, docs[2].Root)
	assert.Equal(t, "c", docs[2].Root.Pairs[0].Name())
	if diff := cmp.Diff(rng(4, 0, 4, 1), docs[2].Root.Pairs[0].Key.Range); diff != "" {
		t.Fatalf("unexpected key range (-want +got):\n%s", diff)
	}
}

func TestParseDepthLimit(t *testing.T) {
	docs := NewDocumentParser(3).Parse("a:\n b:\n  c:\n   d:\n    e: 1\n    f: 2\n")
	require.Len(t, docs, 1)
	doc := docs[0]
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, types.CodeMaxDepth, doc.Errors[0].Code)

	c := doc.Root.Pairs[0].Value.Pairs[0].Value.Pairs[0].Value
	require.Equal(t, types.NodeMapping, c.Kind)
	assert.Equal(t, types.NodeOpaque, c.Pairs[0].Value.Kind)
}

func TestParseExpressions(t *testing.T) {
	doc := parseSingle(t, "${{ if eq(a, b) }}:\n  x: 1\nname: ${{ parameters.name }}\nplain: value\n")
	require.Empty(t, doc.Errors)
	root := doc.Root
	assert.True(t, root.Dynamic)

	directive := root.Pairs[0]
	assert.Equal(t, types.KeyExpression, directive.KeyKind)
	assert.True(t, directive.IsDirective())
	assert.Nil(t, directive.Key.Expression)

	name := root.Pairs[1].Value
	require.NotNil(t, name.Expression)
	assert.Equal(t, types.ExpressionInterpolation, name.Expression.Kind)
	assert.True(t, name.Dynamic)

	assert.Nil(t, root.Pairs[2].Value.Expression)
	assert.False(t, root.Pairs[2].Value.Dynamic)
}
