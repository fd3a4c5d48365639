package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		key      string
		wantKind types.KeyKind
		want     *types.Expression
	}{
		{key: "steps", wantKind: types.KeyLiteral},
		{key: "$(Build.Reason)", wantKind: types.KeyLiteral},
		{
			key:      "${{ if eq(parameters.debug, true) }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionIf, Body: "eq(parameters.debug, true)"},
		},
		{
			key:      "${{ elseif ne(variables.x, 'a}}b') }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionElseIf, Body: "ne(variables.x, 'a}}b')"},
		},
		{
			key:      "${{ else }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionElse},
		},
		{
			key:      "${{ each step in parameters.steps }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionEach, Variable: "step", Body: "parameters.steps"},
		},
		{
			key:      "${{ insert }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionInsert},
		},
		{
			key:      "${{ parameters.name }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionInterpolation, Body: "parameters.name"},
		},
		{
			key:      "${{ iffy }}",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionInterpolation, Body: "iffy"},
		},
		{
			key:      "${{ parameters.environment }}Release",
			wantKind: types.KeyExpression,
			want:     &types.Expression{Kind: types.ExpressionEmbedded, Body: "${{ parameters.environment }}Release"},
		},
		{
			key:      "${{ if eq(parameters.x, 1) ",
			wantKind: types.KeyMalformed,
			want:     &types.Expression{Kind: types.ExpressionMalformed, Body: "${{ if eq(parameters.x, 1) "},
		},
		{
			key:      "${{ if }}",
			wantKind: types.KeyMalformed,
			want:     &types.Expression{Kind: types.ExpressionMalformed, Body: " if "},
		},
		{
			key:      "${{ else eq(a, b) }}",
			wantKind: types.KeyMalformed,
			want:     &types.Expression{Kind: types.ExpressionMalformed, Body: " else eq(a, b) "},
		},
		{
			key:      "${{ each in x }}",
			wantKind: types.KeyMalformed,
			want:     &types.Expression{Kind: types.ExpressionMalformed, Body: " each in x "},
		},
		{
			key:      "${{ eq(a, b }}",
			wantKind: types.KeyMalformed,
			want:     &types.Expression{Kind: types.ExpressionMalformed, Body: " eq(a, b "},
		},
		{
			key:      "prefix${{ }}",
			wantKind: types.KeyMalformed,
			want:     &types.Expression{Kind: types.ExpressionMalformed, Body: "prefix${{ }}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kind, expr := ClassifyKey(tt.key)
			assert.Equal(t, tt.wantKind, kind)
			if diff := cmp.Diff(tt.want, expr); diff != "" {
				t.Fatalf("unexpected expression (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyScalar(t *testing.T) {
	tests := []struct {
		value string
		want  *types.Expression
	}{
		{value: "ubuntu-latest"},
		{value: "$ dollars"},
		{value: "${{ parameters.vmImage }}", want: &types.Expression{Kind: types.ExpressionInterpolation, Body: "parameters.vmImage"}},
		{value: "  ${{ variables.x }} ", want: &types.Expression{Kind: types.ExpressionInterpolation, Body: "variables.x"}},
		{value: "echo ${{ parameters.message }}", want: &types.Expression{Kind: types.ExpressionEmbedded, Body: "echo ${{ parameters.message }}"}},
		{value: "${{ a }}-${{ b }}", want: &types.Expression{Kind: types.ExpressionEmbedded, Body: "${{ a }}-${{ b }}"}},
		{value: "echo ${{ broken", want: &types.Expression{Kind: types.ExpressionMalformed, Body: "echo ${{ broken"}},
		{value: "$(Build.SourcesDirectory)", want: &types.Expression{Kind: types.ExpressionMacro, Body: "Build.SourcesDirectory"}},
		{value: "$[ variables.isMain ]", want: &types.Expression{Kind: types.ExpressionRuntime, Body: "variables.isMain"}},
		{value: "cd $(Build.SourcesDirectory)"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ClassifyScalar(tt.value)); diff != "" {
				t.Fatalf("unexpected expression (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpressionIsDirective(t *testing.T) {
	_, each := ClassifyKey("${{ each x in y }}")
	assert.True(t, each.IsDirective())
	_, value := ClassifyKey("${{ x }}")
	assert.False(t, value.IsDirective())
}

func TestBalanced(t *testing.T) {
	assert.True(t, balanced("eq(variables['Build.Reason'], 'Manual')"))
	assert.True(t, balanced("format('it''s {0}', x)"))
	assert.False(t, balanced("eq(a, b"))
	assert.False(t, balanced("eq(a, b])"))
	assert.False(t, balanced("'open"))
}
