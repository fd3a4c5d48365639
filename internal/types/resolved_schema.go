package types

import (
	"maps"
	"regexp"
	"slices"
	"strconv"
)

type UnresolvedSchema struct {
	Schema *SchemaNode
	Errors []string
}

// ResolvedSchema is a schema with every reachable $ref replaced by its
// target.  Subtrees may be shared between several parents and must not be
// modified.
type ResolvedSchema struct {
	Schema *SchemaNode
	Errors []string
}

// GetSection walks path from the root and returns the sub-schema found
// there, or nil.  Each segment is looked up in properties, then in the
// first matching patternProperties in pattern order, then in a schema-valued
// additionalProperties; numeric segments also descend into items.
func (r *ResolvedSchema) GetSection(path []string) *SchemaNode {
	if r == nil {
		return nil
	}
	node := r.Schema
	for _, segment := range path {
		node = childSection(node, segment)
		if node == nil {
			return nil
		}
	}
	return node
}

func childSection(node *SchemaNode, segment string) *SchemaNode {
	if node == nil || node.Bool != nil {
		return nil
	}
	if child, ok := node.Properties[segment]; ok && child != nil {
		return child
	}
	for _, pattern := range slices.Sorted(maps.Keys(node.PatternProperties)) {
		re, err := regexp.Compile(pattern)
		if child := node.PatternProperties[pattern]; err == nil && re.MatchString(segment) && child != nil {
			return child
		}
	}
	if node.AdditionalProperties != nil && node.AdditionalProperties.Bool == nil {
		return node.AdditionalProperties
	}
	index, err := strconv.Atoi(segment)
	if err != nil || index < 0 {
		return nil
	}
	if node.Items != nil {
		if node.Items.Bool != nil {
			return nil
		}
		return node.Items
	}
	if index < len(node.TupleItems) {
		return node.TupleItems[index]
	}
	return nil
}
