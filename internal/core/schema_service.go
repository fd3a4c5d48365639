package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

const combinedSchemaPrefix = "schemaservice://combinedSchema/"

type schemaEntry struct {
	uri          string
	raw          *types.UnresolvedSchema
	resolved     *types.ResolvedSchema
	state        types.ResolutionState
	contributed  bool
	external     bool
	inline       bool
	dependencies map[string]struct{}
}

type fileAssociation struct {
	pattern string
	matcher *regexp.Regexp
	uris    []string
}

// SchemaService is the registry of schema documents for one session.  It
// loads documents through the fetch port on demand, resolves their
// references, and caches both raw and resolved forms.  All methods are safe
// for concurrent use; concurrent requests for the same URI share a single
// fetch and a single resolution.
type SchemaService struct {
	fetch ports.SchemaFetchPort
	paths ports.PathResolverPort

	mu                       sync.Mutex
	entries                  map[string]*schemaEntry
	contributionAssociations []fileAssociation
	externalAssociations     []fileAssociation

	loads       singleflight.Group
	resolutions singleflight.Group
}

func NewSchemaService(fetch ports.SchemaFetchPort, paths ports.PathResolverPort) *SchemaService {
	return &SchemaService{
		fetch:   fetch,
		paths:   paths,
		entries: map[string]*schemaEntry{},
	}
}

// SetSchemaContributions registers inline schemas keyed by id together with
// their file associations.  Earlier contributions are replaced and every
// cached resolution is dropped.
func (s *SchemaService) SetSchemaContributions(contributions types.SchemaContributions) error {
	associations := make([]fileAssociation, 0, len(contributions.SchemaAssociations))
	for _, pattern := range sortedKeys(contributions.SchemaAssociations) {
		association, err := newFileAssociation(pattern, contributions.SchemaAssociations[pattern])
		if err != nil {
			return err
		}
		associations = append(associations, association)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, entry := range s.entries {
		if entry.contributed {
			entry.contributed = false
			if !entry.external {
				delete(s.entries, uri)
			}
		}
	}
	for _, id := range sortedKeys(contributions.Schemas) {
		uri, err := normalizeSchemaURI(id)
		if err != nil {
			return err
		}
		node, errs := ParseSchema(contributions.Schemas[id])
		entry := s.entryLocked(uri)
		entry.raw = &types.UnresolvedSchema{Schema: node, Errors: errs}
		entry.contributed = true
		entry.inline = true
	}
	s.contributionAssociations = associations
	s.dropResolutionsLocked()
	log.Debug().
		Int("schemas", len(contributions.Schemas)).
		Int("associations", len(associations)).
		Msg("schema contributions registered")
	return nil
}

// RegisterExternalSchema registers uri for the given file patterns.  A nil
// schema is fetched lazily on first use; otherwise schema may be JSON text,
// a decoded JSON object or a *types.SchemaNode.
func (s *SchemaService) RegisterExternalSchema(uri string, filePatterns []string, schema any) error {
	normalized, err := normalizeSchemaURI(uri)
	if err != nil {
		return err
	}
	associations := make([]fileAssociation, 0, len(filePatterns))
	for _, pattern := range filePatterns {
		association, err := newFileAssociation(pattern, []string{normalized})
		if err != nil {
			return err
		}
		associations = append(associations, association)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(normalized)
	entry.external = true
	if schema != nil {
		node, errs := ParseSchema(schema)
		entry.raw = &types.UnresolvedSchema{Schema: node, Errors: errs}
		entry.inline = true
	}
	s.externalAssociations = append(s.externalAssociations, associations...)
	s.invalidateLocked(normalized)
	log.Debug().Str("uri", normalized).Strs("patterns", filePatterns).Msg("external schema registered")
	return nil
}

// ClearExternalSchemas forgets every schema registered through
// RegisterExternalSchema and all cached resolutions.
func (s *SchemaService) ClearExternalSchemas() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, entry := range s.entries {
		if entry.external && !entry.contributed {
			delete(s.entries, uri)
			continue
		}
		entry.external = false
	}
	s.externalAssociations = nil
	s.dropResolutionsLocked()
}

// InvalidateSchema forgets the fetched content of uri and the resolution of
// every schema that depended on it.  It reports whether anything was
// dropped.
func (s *SchemaService) InvalidateSchema(uri string) bool {
	normalized, err := normalizeSchemaURI(uri)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	if entry, ok := s.entries[normalized]; ok && entry.raw != nil && !entry.inline {
		entry.raw = nil
		changed = true
	}
	if s.invalidateLocked(normalized) {
		changed = true
	}
	return changed
}

// State reports the resolution state of uri.  Unknown URIs are unresolved.
func (s *SchemaService) State(uri string) types.ResolutionState {
	normalized, err := normalizeSchemaURI(uri)
	if err != nil {
		return types.ResolutionUnresolved
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[normalized]
	if !ok || entry.state == "" {
		return types.ResolutionUnresolved
	}
	return entry.state
}

// LoadSchema returns the raw schema registered or fetched for uri.  A fetch
// failure is reported inside the result, not as an error, and is not
// cached.
func (s *SchemaService) LoadSchema(ctx context.Context, uri string) (types.UnresolvedSchema, error) {
	normalized, err := normalizeSchemaURI(uri)
	if err != nil {
		return types.UnresolvedSchema{}, err
	}
	if raw, ok := s.cachedRaw(normalized); ok {
		return raw, nil
	}
	value, _, _ := s.loads.Do(normalized, func() (any, error) {
		return s.fetchSchema(context.WithoutCancel(ctx), normalized), nil
	})
	return value.(types.UnresolvedSchema), nil
}

// GetResolvedSchema returns the resolved form of uri, resolving it on first
// use.  Resolution problems are reported in the result's Errors.
func (s *SchemaService) GetResolvedSchema(ctx context.Context, uri string) (*types.ResolvedSchema, error) {
	normalized, err := normalizeSchemaURI(uri)
	if err != nil {
		return nil, err
	}
	if resolved, ok := s.cachedResolution(normalized); ok {
		return resolved, nil
	}
	value, _, _ := s.resolutions.Do(normalized, func() (any, error) {
		return s.resolveSchema(context.WithoutCancel(ctx), normalized), nil
	})
	return value.(*types.ResolvedSchema), nil
}

// GetSchemaForResource returns the resolved schema associated with the
// resource path or URI, or nil when no association matches.  When several
// schemas match, the result is their allOf combination.
func (s *SchemaService) GetSchemaForResource(ctx context.Context, resource string) (*types.ResolvedSchema, error) {
	if strings.TrimSpace(resource) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("resource is required")
	}

	s.mu.Lock()
	var matched []string
	seen := map[string]struct{}{}
	for _, association := range s.associationsLocked() {
		if !association.matcher.MatchString(resource) {
			continue
		}
		for _, uri := range association.uris {
			if _, dup := seen[uri]; dup {
				continue
			}
			seen[uri] = struct{}{}
			matched = append(matched, uri)
		}
	}
	s.mu.Unlock()

	switch len(matched) {
	case 0:
		log.Ctx(ctx).Debug().Str("resource", resource).Msg("no schema associated")
		return nil, nil
	case 1:
		return s.GetResolvedSchema(ctx, matched[0])
	}

	combined, err := s.registerCombined(matched)
	if err != nil {
		return nil, err
	}
	return s.GetResolvedSchema(ctx, combined)
}

func (s *SchemaService) registerCombined(uris []string) (string, error) {
	id, err := normalizeSchemaURI(combinedSchemaPrefix + url.QueryEscape(strings.Join(uris, "&")))
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(id)
	if entry.raw == nil {
		all := make([]*types.SchemaNode, 0, len(uris))
		for _, uri := range uris {
			all = append(all, &types.SchemaNode{Ref: uri})
		}
		entry.raw = &types.UnresolvedSchema{Schema: &types.SchemaNode{AllOf: all}}
		entry.inline = true
	}
	return id, nil
}

func (s *SchemaService) fetchSchema(ctx context.Context, uri string) types.UnresolvedSchema {
	if raw, ok := s.cachedRaw(uri); ok {
		return raw
	}
	if s.fetch == nil {
		return types.UnresolvedSchema{
			Schema: &types.SchemaNode{},
			Errors: []string{fmt.Sprintf("Unable to load schema from '%s': no schema fetcher configured.", uri)},
		}
	}

	content, err := s.fetch.Fetch(ctx, uri)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("uri", uri).Msg("schema fetch failed")
		return types.UnresolvedSchema{
			Schema: &types.SchemaNode{},
			Errors: []string{fmt.Sprintf("Unable to load schema from '%s': %s.", uri, fetchFailureText(err))},
		}
	}

	node, errs := ParseSchema(content)
	if len(errs) > 0 {
		errs = []string{fmt.Sprintf("Unable to parse content from '%s': %s", uri, strings.Join(errs, ", "))}
	}
	result := types.UnresolvedSchema{Schema: node, Errors: errs}

	s.mu.Lock()
	entry := s.entryLocked(uri)
	if entry.raw == nil {
		entry.raw = &result
	} else {
		result = *entry.raw
	}
	s.mu.Unlock()
	log.Ctx(ctx).Debug().Str("uri", uri).Int("bytes", len(content)).Msg("schema fetched")
	return result
}

func (s *SchemaService) resolveSchema(ctx context.Context, uri string) *types.ResolvedSchema {
	if resolved, ok := s.cachedResolution(uri); ok {
		return resolved
	}
	s.setState(uri, types.ResolutionResolving)

	root, err := s.LoadSchema(ctx, uri)
	if err != nil {
		root = types.UnresolvedSchema{Schema: &types.SchemaNode{}, Errors: []string{errorText(err)}}
	}
	resolver := newRefResolver(ctx, s)
	resolved := resolver.resolve(uri, root)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(uri)
	if entry.raw == nil {
		// The root itself could not be loaded; keep nothing so the next
		// request fetches again.
		entry.state = types.ResolutionError
		return resolved
	}
	entry.resolved = resolved
	entry.dependencies = map[string]struct{}{}
	for _, dep := range resolver.dependencies() {
		entry.dependencies[dep] = struct{}{}
	}
	entry.state = types.ResolutionResolved
	log.Ctx(ctx).Debug().Str("uri", uri).Int("errors", len(resolved.Errors)).Msg("schema resolved")
	return resolved
}

func (s *SchemaService) cachedRaw(uri string) (types.UnresolvedSchema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[uri]
	if !ok || entry.raw == nil {
		return types.UnresolvedSchema{}, false
	}
	return *entry.raw, true
}

func (s *SchemaService) cachedResolution(uri string) (*types.ResolvedSchema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[uri]
	if !ok || entry.resolved == nil {
		return nil, false
	}
	return entry.resolved, true
}

func (s *SchemaService) setState(uri string, state types.ResolutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(uri).state = state
}

func (s *SchemaService) entryLocked(uri string) *schemaEntry {
	entry, ok := s.entries[uri]
	if !ok {
		entry = &schemaEntry{uri: uri, state: types.ResolutionUnresolved}
		s.entries[uri] = entry
	}
	return entry
}

// invalidateLocked drops the resolution of uri and of every entry whose
// resolution loaded uri.
func (s *SchemaService) invalidateLocked(uri string) bool {
	changed := false
	for key, entry := range s.entries {
		if entry.resolved == nil {
			continue
		}
		_, depends := entry.dependencies[uri]
		if key == uri || depends {
			entry.resolved = nil
			entry.dependencies = nil
			entry.state = types.ResolutionUnresolved
			changed = true
		}
	}
	return changed
}

func (s *SchemaService) dropResolutionsLocked() {
	for _, entry := range s.entries {
		entry.resolved = nil
		entry.dependencies = nil
		entry.state = types.ResolutionUnresolved
	}
}

func (s *SchemaService) associationsLocked() []fileAssociation {
	out := make([]fileAssociation, 0, len(s.contributionAssociations)+len(s.externalAssociations))
	out = append(out, s.contributionAssociations...)
	return append(out, s.externalAssociations...)
}

func newFileAssociation(pattern string, uris []string) (fileAssociation, error) {
	matcher, err := globMatcher(pattern)
	if err != nil {
		return fileAssociation{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid file pattern " + pattern).
			WithCause(err)
	}
	normalized := make([]string, 0, len(uris))
	for _, uri := range uris {
		n, err := normalizeSchemaURI(uri)
		if err != nil {
			return fileAssociation{}, err
		}
		normalized = append(normalized, n)
	}
	return fileAssociation{pattern: pattern, matcher: matcher, uris: normalized}, nil
}

// fetchFailureText returns the message of a fetch error without the
// trailing period the registry adds itself.
func fetchFailureText(err error) string {
	msg := err.Error()
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		msg = builder.Msg
	}
	return strings.TrimSuffix(msg, ".")
}
