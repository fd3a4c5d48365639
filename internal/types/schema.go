package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// SchemaNode is one JSON Schema object as read from a schema document.
//
// Only the keywords used by pipeline schemas are modelled as fields; every
// other keyword is preserved verbatim in Extra so that pointers into custom
// sections still resolve.  A boolean schema (`true` / `false`) is a node
// whose Bool field is set and every other field is empty.
type SchemaNode struct {
	Bool *bool

	ID          string
	Schema      string
	Ref         string
	Type        SchemaTypes
	Title       string
	Description string

	// DeprecationMessage, DoNotSuggest, FirstProperty and IgnoreCase are
	// pipeline-schema extensions.
	DeprecationMessage string
	DoNotSuggest       bool
	FirstProperty      []string
	IgnoreCase         string

	Properties           map[string]*SchemaNode
	PatternProperties    map[string]*SchemaNode
	AdditionalProperties *SchemaNode
	Required             []string

	Items      *SchemaNode
	TupleItems []*SchemaNode
	MinItems   *int
	MaxItems   *int

	Definitions map[string]*SchemaNode

	Enum    []any
	Const   any
	Default any

	AllOf []*SchemaNode
	AnyOf []*SchemaNode
	OneOf []*SchemaNode
	Not   *SchemaNode

	Pattern   string
	MinLength *int
	MaxLength *int
	Minimum   *float64
	Maximum   *float64

	Extra map[string]any
}

// SchemaTypes holds the `type` keyword, which may be a single name or a list.
type SchemaTypes []string

// IgnoreCase modes of the pipeline-schema `ignoreCase` keyword.
const (
	IgnoreCaseKey   = "key"
	IgnoreCaseValue = "value"
)

// BoolSchema returns the boolean schema `true` or `false`.
func BoolSchema(value bool) *SchemaNode {
	return &SchemaNode{Bool: &value}
}

// IsEmpty reports whether the node carries no keyword at all.
func (s *SchemaNode) IsEmpty() bool {
	return s == nil || reflect.ValueOf(*s).IsZero()
}

// Rejects reports whether the node is the boolean schema `false`.
func (s *SchemaNode) Rejects() bool {
	return s != nil && s.Bool != nil && !*s.Bool
}

// Clone returns a copy of the node.  Child schemas are shared; the maps and
// slices holding them are not.
func (s *SchemaNode) Clone() *SchemaNode {
	if s == nil {
		return nil
	}
	c := *s
	c.Type = slices.Clone(s.Type)
	c.FirstProperty = slices.Clone(s.FirstProperty)
	c.Properties = maps.Clone(s.Properties)
	c.PatternProperties = maps.Clone(s.PatternProperties)
	c.Required = slices.Clone(s.Required)
	c.TupleItems = slices.Clone(s.TupleItems)
	c.Definitions = maps.Clone(s.Definitions)
	c.Enum = slices.Clone(s.Enum)
	c.AllOf = slices.Clone(s.AllOf)
	c.AnyOf = slices.Clone(s.AnyOf)
	c.OneOf = slices.Clone(s.OneOf)
	c.Extra = maps.Clone(s.Extra)
	return &c
}

// MergeMissing returns a copy of s where every keyword s lacks is taken from
// other.  Keywords already present on s win.
func (s *SchemaNode) MergeMissing(other *SchemaNode) *SchemaNode {
	out := s.Clone()
	if other == nil {
		return out
	}
	dst := reflect.ValueOf(out).Elem()
	src := reflect.ValueOf(other).Elem()
	for i := 0; i < dst.NumField(); i++ {
		if dst.Field(i).IsZero() {
			dst.Field(i).Set(src.Field(i))
		}
	}
	if s.Extra != nil && other.Extra != nil {
		out.Extra = maps.Clone(s.Extra)
		for key, value := range other.Extra {
			if _, ok := out.Extra[key]; !ok {
				out.Extra[key] = value
			}
		}
	}
	return out
}

// Has reports whether name is one of the declared types.
func (t SchemaTypes) Has(name string) bool {
	return slices.Contains(t, name)
}

func (t *SchemaTypes) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = SchemaTypes{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("type must be a string or an array of strings")
	}
	*t = many
	return nil
}

func (t SchemaTypes) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (s *SchemaNode) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "true":
		*s = *BoolSchema(true)
		return nil
	case "false":
		*s = *BoolSchema(false)
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("schema must be an object or a boolean: %w", err)
	}

	node := SchemaNode{}
	for _, key := range sortedRawKeys(raw) {
		value := raw[key]
		before := node
		if err := node.decodeKeyword(key, value); err != nil {
			// Keywords with an unexpected shape are kept opaque rather
			// than failing the whole document.
			node = before
			var opaque any
			if json.Unmarshal(value, &opaque) == nil {
				node.setExtra(key, opaque)
			}
		}
	}
	*s = node
	return nil
}

func (s *SchemaNode) decodeKeyword(key string, value json.RawMessage) error {
	switch key {
	case "id", "$id":
		return json.Unmarshal(value, &s.ID)
	case "$schema":
		return json.Unmarshal(value, &s.Schema)
	case "$ref":
		return json.Unmarshal(value, &s.Ref)
	case "type":
		return json.Unmarshal(value, &s.Type)
	case "title":
		return json.Unmarshal(value, &s.Title)
	case "description":
		return json.Unmarshal(value, &s.Description)
	case "deprecationMessage":
		return json.Unmarshal(value, &s.DeprecationMessage)
	case "doNotSuggest":
		return json.Unmarshal(value, &s.DoNotSuggest)
	case "firstProperty":
		return json.Unmarshal(value, &s.FirstProperty)
	case "ignoreCase":
		return json.Unmarshal(value, &s.IgnoreCase)
	case "properties":
		return json.Unmarshal(value, &s.Properties)
	case "patternProperties":
		return json.Unmarshal(value, &s.PatternProperties)
	case "additionalProperties":
		return json.Unmarshal(value, &s.AdditionalProperties)
	case "required":
		return json.Unmarshal(value, &s.Required)
	case "items":
		if bytes.HasPrefix(bytes.TrimSpace(value), []byte("[")) {
			return json.Unmarshal(value, &s.TupleItems)
		}
		return json.Unmarshal(value, &s.Items)
	case "minItems":
		return json.Unmarshal(value, &s.MinItems)
	case "maxItems":
		return json.Unmarshal(value, &s.MaxItems)
	case "definitions", "$defs":
		var defs map[string]*SchemaNode
		if err := json.Unmarshal(value, &defs); err != nil {
			return err
		}
		if s.Definitions == nil {
			s.Definitions = defs
			return nil
		}
		for name, def := range defs {
			s.Definitions[name] = def
		}
		return nil
	case "enum":
		return json.Unmarshal(value, &s.Enum)
	case "const":
		return json.Unmarshal(value, &s.Const)
	case "default":
		return json.Unmarshal(value, &s.Default)
	case "allOf":
		return json.Unmarshal(value, &s.AllOf)
	case "anyOf":
		return json.Unmarshal(value, &s.AnyOf)
	case "oneOf":
		return json.Unmarshal(value, &s.OneOf)
	case "not":
		return json.Unmarshal(value, &s.Not)
	case "pattern":
		return json.Unmarshal(value, &s.Pattern)
	case "minLength":
		return json.Unmarshal(value, &s.MinLength)
	case "maxLength":
		return json.Unmarshal(value, &s.MaxLength)
	case "minimum":
		return json.Unmarshal(value, &s.Minimum)
	case "maximum":
		return json.Unmarshal(value, &s.Maximum)
	default:
		var opaque any
		if err := json.Unmarshal(value, &opaque); err != nil {
			return err
		}
		s.setExtra(key, opaque)
		return nil
	}
}

func (s *SchemaNode) setExtra(key string, value any) {
	if s.Extra == nil {
		s.Extra = map[string]any{}
	}
	s.Extra[key] = value
}

func (s *SchemaNode) MarshalJSON() ([]byte, error) {
	if s.Bool != nil {
		return json.Marshal(*s.Bool)
	}
	out := make(map[string]any, len(s.Extra)+8)
	for key, value := range s.Extra {
		out[key] = value
	}
	put := func(key string, value any, present bool) {
		if present {
			out[key] = value
		}
	}
	put("id", s.ID, s.ID != "")
	put("$schema", s.Schema, s.Schema != "")
	put("$ref", s.Ref, s.Ref != "")
	put("type", s.Type, len(s.Type) > 0)
	put("title", s.Title, s.Title != "")
	put("description", s.Description, s.Description != "")
	put("deprecationMessage", s.DeprecationMessage, s.DeprecationMessage != "")
	put("doNotSuggest", s.DoNotSuggest, s.DoNotSuggest)
	put("firstProperty", s.FirstProperty, len(s.FirstProperty) > 0)
	put("ignoreCase", s.IgnoreCase, s.IgnoreCase != "")
	put("properties", s.Properties, s.Properties != nil)
	put("patternProperties", s.PatternProperties, s.PatternProperties != nil)
	put("additionalProperties", s.AdditionalProperties, s.AdditionalProperties != nil)
	put("required", s.Required, len(s.Required) > 0)
	put("items", s.Items, s.Items != nil)
	put("items", s.TupleItems, s.Items == nil && s.TupleItems != nil)
	put("minItems", s.MinItems, s.MinItems != nil)
	put("maxItems", s.MaxItems, s.MaxItems != nil)
	put("definitions", s.Definitions, s.Definitions != nil)
	put("enum", s.Enum, s.Enum != nil)
	put("const", s.Const, s.Const != nil)
	put("default", s.Default, s.Default != nil)
	put("allOf", s.AllOf, s.AllOf != nil)
	put("anyOf", s.AnyOf, s.AnyOf != nil)
	put("oneOf", s.OneOf, s.OneOf != nil)
	put("not", s.Not, s.Not != nil)
	put("pattern", s.Pattern, s.Pattern != "")
	put("minLength", s.MinLength, s.MinLength != nil)
	put("maxLength", s.MaxLength, s.MaxLength != nil)
	put("minimum", s.Minimum, s.Minimum != nil)
	put("maximum", s.Maximum, s.Maximum != nil)
	return json.Marshal(out)
}

func sortedRawKeys(raw map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
