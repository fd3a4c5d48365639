package core

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

type refLocation struct {
	document string
	pointer  string
}

// refResolver expands every $ref reachable from one root schema.  It lives
// for a single resolution: documents are loaded at most once, expanded
// locations are memoised and shared, and the originals held by the registry
// are never modified.
type refResolver struct {
	ctx     context.Context
	service *SchemaService

	documents map[string]*types.SchemaNode
	active    map[refLocation]struct{}
	expanded  map[refLocation]*types.SchemaNode

	errors     []string
	seenErrors map[string]struct{}
}

func newRefResolver(ctx context.Context, service *SchemaService) *refResolver {
	return &refResolver{
		ctx:        ctx,
		service:    service,
		documents:  map[string]*types.SchemaNode{},
		active:     map[refLocation]struct{}{},
		expanded:   map[refLocation]*types.SchemaNode{},
		seenErrors: map[string]struct{}{},
	}
}

func (r *refResolver) resolve(uri string, root types.UnresolvedSchema) *types.ResolvedSchema {
	schema := root.Schema
	if schema == nil {
		schema = &types.SchemaNode{}
	}
	r.documents[uri] = schema
	for _, msg := range root.Errors {
		r.addError(msg)
	}
	resolved := r.expandAt(uri, "", schema)
	if resolved == nil {
		resolved = &types.SchemaNode{}
	}
	return &types.ResolvedSchema{Schema: resolved, Errors: r.errors}
}

// dependencies returns every document URI the resolution loaded.
func (r *refResolver) dependencies() []string {
	out := make([]string, 0, len(r.documents))
	for uri := range r.documents {
		out = append(out, uri)
	}
	return out
}

// expandAt expands the node found at (document, pointer).  It returns nil
// when the location is already being expanded further up the walk.
func (r *refResolver) expandAt(document string, pointer string, node *types.SchemaNode) *types.SchemaNode {
	loc := refLocation{document: document, pointer: pointer}
	if done, ok := r.expanded[loc]; ok {
		return done
	}
	if _, busy := r.active[loc]; busy {
		return nil
	}
	r.active[loc] = struct{}{}
	out := r.expand(document, pointer, node)
	delete(r.active, loc)
	r.expanded[loc] = out
	return out
}

func (r *refResolver) expand(document string, pointer string, node *types.SchemaNode) *types.SchemaNode {
	if node == nil || node.Bool != nil {
		return node
	}
	out := node.Clone()
	out.Ref = ""
	r.expandChildren(document, pointer, node, out)
	if node.Ref == "" {
		return out
	}

	target, ok := r.followRef(document, node.Ref)
	if !ok {
		return out
	}
	if out.IsEmpty() {
		return target
	}
	if target.Bool != nil {
		// Boolean targets carry no keywords to merge.  A rejecting target
		// still rejects next to the local keywords.
		if !*target.Bool {
			out.AllOf = append(out.AllOf, target)
		}
		return out
	}
	return out.MergeMissing(target)
}

// followRef locates and expands the target of ref, which appears in
// document.  Failures are recorded and reported as !ok.
func (r *refResolver) followRef(document string, ref string) (*types.SchemaNode, bool) {
	docPart, fragment, _ := strings.Cut(ref, "#")
	targetDoc := document
	if docPart != "" {
		resolvedRef := docPart
		if r.service.paths != nil {
			resolvedRef = r.service.paths.ResolveRelativePath(docPart, document)
		}
		normalized, err := normalizeSchemaURI(resolvedRef)
		if err != nil {
			r.addError(fmt.Sprintf("$ref '%s' in '%s' can not be resolved.", ref, document))
			return nil, false
		}
		targetDoc = normalized
	}

	root, ok := r.document(targetDoc)
	if !ok {
		return nil, false
	}
	pointer, err := normalizePointer(fragment)
	if err != nil {
		r.addError(fmt.Sprintf("$ref '%s' in '%s' can not be resolved.", ref, document))
		return nil, false
	}
	section, found := findSection(root, pointer)
	if !found {
		r.addError(fmt.Sprintf("$ref '%s' in '%s' can not be resolved.", ref, document))
		return nil, false
	}

	target := r.expandAt(targetDoc, pointer, section)
	if target == nil {
		r.addError(fmt.Sprintf("$ref '%s' in '%s' creates a reference cycle.", ref, document))
		log.Ctx(r.ctx).Debug().Str("ref", ref).Str("document", document).Msg("reference cycle cut")
		return nil, false
	}
	return target, true
}

func (r *refResolver) document(uri string) (*types.SchemaNode, bool) {
	if root, ok := r.documents[uri]; ok {
		return root, root != nil
	}
	loaded, err := r.service.LoadSchema(r.ctx, uri)
	if err != nil {
		r.documents[uri] = nil
		r.addError(fmt.Sprintf("Problems loading reference '%s': %s", uri, errorText(err)))
		return nil, false
	}
	if len(loaded.Errors) > 0 {
		r.addError(fmt.Sprintf("Problems loading reference '%s': %s", uri, loaded.Errors[0]))
		if loaded.Schema.IsEmpty() {
			r.documents[uri] = nil
			return nil, false
		}
	}
	r.documents[uri] = loaded.Schema
	return loaded.Schema, true
}

func (r *refResolver) expandChildren(document string, pointer string, src *types.SchemaNode, dst *types.SchemaNode) {
	at := func(parts ...string) string {
		out := pointer
		for _, part := range parts {
			out += "/" + escapePointerToken(part)
		}
		return out
	}
	// Sorted walks keep the place where a cycle is cut stable between runs.
	for _, name := range sortedKeys(src.Properties) {
		dst.Properties[name] = r.expandChild(document, at("properties", name), src.Properties[name])
	}
	for _, name := range sortedKeys(src.PatternProperties) {
		dst.PatternProperties[name] = r.expandChild(document, at("patternProperties", name), src.PatternProperties[name])
	}
	for _, name := range sortedKeys(src.Definitions) {
		dst.Definitions[name] = r.expandChild(document, at("definitions", name), src.Definitions[name])
	}
	dst.AdditionalProperties = r.expandChild(document, at("additionalProperties"), src.AdditionalProperties)
	dst.Items = r.expandChild(document, at("items"), src.Items)
	for i, child := range src.TupleItems {
		dst.TupleItems[i] = r.expandChild(document, at("items", strconv.Itoa(i)), child)
	}
	for i, child := range src.AllOf {
		dst.AllOf[i] = r.expandChild(document, at("allOf", strconv.Itoa(i)), child)
	}
	for i, child := range src.AnyOf {
		dst.AnyOf[i] = r.expandChild(document, at("anyOf", strconv.Itoa(i)), child)
	}
	for i, child := range src.OneOf {
		dst.OneOf[i] = r.expandChild(document, at("oneOf", strconv.Itoa(i)), child)
	}
	dst.Not = r.expandChild(document, at("not"), src.Not)
}

func (r *refResolver) expandChild(document string, pointer string, child *types.SchemaNode) *types.SchemaNode {
	if child == nil {
		return nil
	}
	out := r.expandAt(document, pointer, child)
	if out == nil {
		return &types.SchemaNode{}
	}
	return out
}

func (r *refResolver) addError(msg string) {
	if _, seen := r.seenErrors[msg]; seen {
		return
	}
	r.seenErrors[msg] = struct{}{}
	r.errors = append(r.errors, msg)
}

// normalizePointer turns a JSON pointer fragment into the "/a/b" form used
// for lookups.  Each segment is percent-decoded on its own, so an encoded
// "/" stays inside its segment.  The empty pointer denotes the document
// root.
func normalizePointer(fragment string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSuffix(fragment, "/"), "/")
	if trimmed == "" {
		return "", nil
	}
	segments := strings.Split(trimmed, "/")
	for i, segment := range segments {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return "", err
		}
		segments[i] = escapePointerToken(unescapePointerToken(decoded))
	}
	return "/" + strings.Join(segments, "/"), nil
}

func escapePointerToken(token string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(token)
}

func unescapePointerToken(token string) string {
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(token)
}

// findSection follows pointer from root through the schema keywords that
// hold sub-schemas.  Unknown keywords are looked up in Extra.
func findSection(root *types.SchemaNode, pointer string) (*types.SchemaNode, bool) {
	if pointer == "" {
		return root, root != nil
	}
	segments := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i := range segments {
		segments[i] = unescapePointerToken(segments[i])
	}

	node := root
	for i := 0; i < len(segments); i++ {
		if node == nil || node.Bool != nil {
			return nil, false
		}
		next := func() (string, bool) {
			if i+1 >= len(segments) {
				return "", false
			}
			i++
			return segments[i], true
		}
		switch keyword := segments[i]; keyword {
		case "properties", "patternProperties", "definitions", "$defs":
			name, ok := next()
			if !ok {
				return nil, false
			}
			switch keyword {
			case "properties":
				node = node.Properties[name]
			case "patternProperties":
				node = node.PatternProperties[name]
			default:
				node = node.Definitions[name]
			}
		case "items":
			if node.Items != nil || i+1 >= len(segments) {
				node = node.Items
				continue
			}
			index, err := strconv.Atoi(segments[i+1])
			if err != nil || index < 0 || index >= len(node.TupleItems) {
				return nil, false
			}
			i++
			node = node.TupleItems[index]
		case "allOf", "anyOf", "oneOf":
			raw, ok := next()
			if !ok {
				return nil, false
			}
			list := map[string][]*types.SchemaNode{"allOf": node.AllOf, "anyOf": node.AnyOf, "oneOf": node.OneOf}[keyword]
			index, err := strconv.Atoi(raw)
			if err != nil || index < 0 || index >= len(list) {
				return nil, false
			}
			node = list[index]
		case "additionalProperties":
			node = node.AdditionalProperties
		case "not":
			node = node.Not
		default:
			value, ok := node.Extra[keyword]
			if !ok {
				return nil, false
			}
			return extraSection(value, segments[i+1:])
		}
	}
	return node, node != nil
}

// extraSection walks a keyword kept opaque in Extra and parses what it
// finds as a schema.
func extraSection(value any, segments []string) (*types.SchemaNode, bool) {
	for _, segment := range segments {
		switch typed := value.(type) {
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			value = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}
			value = typed[index]
		default:
			return nil, false
		}
	}
	switch value.(type) {
	case map[string]any, bool:
	default:
		return nil, false
	}
	node, errs := ParseSchema(value)
	return node, len(errs) == 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
