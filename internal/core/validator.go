package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.lsp.dev/protocol"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// Validator checks a parsed document against a resolved schema.  Template
// expressions are treated as shape that cannot be known statically:
// expression values match anything, directive keys splice their bodies into
// the surrounding mapping or sequence, and interpolated keys are never
// reported as unknown properties.
type Validator struct {
	MaxDepth int

	// ScalarsAsStrings lets every non-null scalar satisfy "type": "string",
	// matching how the pipeline runtime reads values.
	ScalarsAsStrings bool
}

func NewValidator(maxDepth int, scalarsAsStrings bool) Validator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return Validator{MaxDepth: maxDepth, ScalarsAsStrings: scalarsAsStrings}
}

// Validate returns the diagnostics for root, in traversal order.  A nil
// schema accepts everything.
func (v Validator) Validate(root *types.Node, schema *types.SchemaNode) []protocol.Diagnostic {
	if root == nil || schema == nil {
		return nil
	}
	if v.MaxDepth <= 0 {
		v.MaxDepth = DefaultMaxDepth
	}
	run := &validation{Validator: v}
	result := &matchResult{}
	run.node(root, schema, 0, result)
	return result.problems
}

type validation struct {
	Validator
	depthReported bool
}

// matchResult collects the outcome of checking one node against one schema.
// The counters rank alternatives of anyOf/oneOf.
type matchResult struct {
	problems          []protocol.Diagnostic
	typeMismatch      bool
	propertiesMatched int
	valueMatched      bool
}

func (r *matchResult) add(d protocol.Diagnostic) {
	r.problems = append(r.problems, d)
}

func (r *matchResult) errorCount() int {
	n := 0
	for _, p := range r.problems {
		if p.Severity == protocol.DiagnosticSeverityError {
			n++
		}
	}
	return n
}

func (r *matchResult) merge(other *matchResult) {
	r.problems = append(r.problems, other.problems...)
	r.propertiesMatched += other.propertiesMatched
	r.typeMismatch = r.typeMismatch || other.typeMismatch
	r.valueMatched = r.valueMatched || other.valueMatched
}

// better reports whether r ranks above other as the explanation for a node that
// matches none of the alternatives.
func (r *matchResult) better(other *matchResult) bool {
	if r.typeMismatch != other.typeMismatch {
		return !r.typeMismatch
	}
	if r.valueMatched != other.valueMatched {
		return r.valueMatched
	}
	if r.propertiesMatched != other.propertiesMatched {
		return r.propertiesMatched > other.propertiesMatched
	}
	return r.errorCount() < other.errorCount()
}

func (s *validation) node(n *types.Node, schema *types.SchemaNode, depth int, res *matchResult) {
	if n == nil || schema == nil {
		return
	}
	if depth > s.MaxDepth {
		if !s.depthReported {
			s.depthReported = true
			res.add(diagnostic(n.Range, protocol.DiagnosticSeverityWarning, types.CodeMaxDepth,
				fmt.Sprintf("Maximum nesting depth of %d exceeded; deeper content is not validated.", s.MaxDepth)))
		}
		return
	}
	if schema.Bool != nil {
		if !*schema.Bool {
			res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeNotAllowed, "Matches a schema that is not allowed."))
		}
		return
	}
	if n.Kind == types.NodeOpaque || (n.Kind == types.NodeScalar && n.Expression != nil) {
		return
	}
	if isDirectiveBlock(n) {
		bodies := collectionBodies(n)
		if len(bodies) == 0 {
			return
		}
		if !mappingBodiesOnly(bodies) {
			// The block stands for whatever its bodies produce.
			for _, body := range bodies {
				s.node(body, schema, depth+1, res)
			}
			return
		}
	}

	for _, sub := range schema.AllOf {
		s.node(n, sub, depth+1, res)
	}
	if len(schema.AnyOf) > 0 {
		s.alternatives(n, schema.AnyOf, false, depth, res)
	}
	if len(schema.OneOf) > 0 {
		s.alternatives(n, schema.OneOf, true, depth, res)
	}
	if schema.Not != nil {
		trial := &matchResult{}
		s.node(n, schema.Not, depth+1, trial)
		if trial.errorCount() == 0 {
			res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeNotAllowed, "Matches a schema that is not allowed."))
		}
	}

	if len(schema.Type) > 0 && !s.typeAccepts(schema.Type, n) {
		res.typeMismatch = true
		res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeTypeMismatch,
			fmt.Sprintf("Incorrect type. Expected %q.", strings.Join(schema.Type, " | "))))
		return
	}

	switch n.Kind {
	case types.NodeMapping:
		s.object(n, schema, depth, res)
	case types.NodeSequence:
		s.array(n, schema, depth, res)
	case types.NodeScalar:
		s.scalar(n, schema, res)
	}
}

func (s *validation) alternatives(n *types.Node, alternatives []*types.SchemaNode, exclusive bool, depth int, res *matchResult) {
	var clean, best *matchResult
	matches := 0
	for _, alternative := range alternatives {
		trial := &matchResult{}
		s.node(n, alternative, depth+1, trial)
		if trial.errorCount() == 0 {
			matches++
			if clean == nil {
				clean = trial
			}
			continue
		}
		if best == nil || trial.better(best) {
			best = trial
		}
	}
	if clean != nil {
		res.merge(clean)
		if exclusive && matches > 1 && !n.Dynamic {
			res.add(diagnostic(startRange(n.Range), protocol.DiagnosticSeverityError, types.CodeOneOf,
				"Matches multiple schemas when only one must validate."))
		}
		return
	}
	if best != nil {
		res.merge(best)
	}
}

type pairFrame struct {
	pairs []*types.KeyValue
	next  int
}

func (s *validation) object(n *types.Node, schema *types.SchemaNode, depth int, res *matchResult) {
	seen := map[string]bool{}
	// Set when a key's name is only known at expansion time; such a key
	// could be any required property.
	openKey := false
	firstChecked := false

	// Bodies of directive keys are walked in place, as if their pairs were
	// written in the enclosing mapping.
	stack := []pairFrame{{pairs: n.Pairs}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.pairs) {
			stack = stack[:len(stack)-1]
			continue
		}
		pair := top.pairs[top.next]
		top.next++

		first := !firstChecked
		firstChecked = true

		switch pair.KeyKind {
		case types.KeyMalformed:
			openKey = true
			continue
		case types.KeyExpression:
			if pair.Expression.IsDirective() {
				if pair.Value.Kind == types.NodeMapping && len(stack) <= s.MaxDepth {
					stack = append(stack, pairFrame{pairs: pair.Value.Pairs})
				}
				continue
			}
			openKey = true
			s.node(pair.Value, dynamicPropertySchema(schema), depth+1, res)
			continue
		}

		name := pair.Name()
		if name == "<<" {
			openKey = true
			continue
		}
		if first && len(schema.FirstProperty) > 0 && !containsName(schema.FirstProperty, name, schema.IgnoreCase == types.IgnoreCaseKey) {
			res.add(diagnostic(pair.Key.Range, protocol.DiagnosticSeverityError, types.CodeFirstProperty,
				fmt.Sprintf("The first property must be %s.", quoteList(schema.FirstProperty, "or"))))
		}

		propSchema, canonical, known := lookupProperty(schema, name)
		patterns := matchingPatterns(schema, name)
		if known || len(patterns) > 0 {
			if known {
				seen[canonical] = true
			} else {
				seen[name] = true
			}
			res.propertiesMatched++
			if propSchema != nil && propSchema.DeprecationMessage != "" {
				res.add(diagnostic(pair.Key.Range, protocol.DiagnosticSeverityWarning, types.CodeDeprecated, propSchema.DeprecationMessage))
			}
			if known {
				s.node(pair.Value, propSchema, depth+1, res)
			}
			for _, patternSchema := range patterns {
				s.node(pair.Value, patternSchema, depth+1, res)
			}
			continue
		}
		seen[name] = true
		switch additional := schema.AdditionalProperties; {
		case additional == nil:
		case additional.Rejects():
			res.add(diagnostic(pair.Key.Range, protocol.DiagnosticSeverityError, types.CodeUnknownProperty,
				fmt.Sprintf("Property %s is not allowed.", name)))
		default:
			s.node(pair.Value, additional, depth+1, res)
		}
	}

	if openKey {
		return
	}
	for _, required := range schema.Required {
		if seen[required] || (schema.IgnoreCase == types.IgnoreCaseKey && seenFold(seen, required)) {
			continue
		}
		res.add(diagnostic(keyRange(n), protocol.DiagnosticSeverityError, types.CodeMissingProperty,
			fmt.Sprintf("Missing property %q.", required)))
	}
}

func (s *validation) array(n *types.Node, schema *types.SchemaNode, depth int, res *matchResult) {
	items, dynamic := s.flattenItems(n)
	for i, item := range items {
		var itemSchema *types.SchemaNode
		switch {
		case schema.Items != nil:
			itemSchema = schema.Items
		case i < len(schema.TupleItems) && !dynamic:
			itemSchema = schema.TupleItems[i]
		}
		s.node(item, itemSchema, depth+1, res)
	}
	if dynamic {
		return
	}
	if schema.MinItems != nil && len(items) < *schema.MinItems {
		res.add(diagnostic(startRange(n.Range), protocol.DiagnosticSeverityError, types.CodeItemCount,
			fmt.Sprintf("Array has too few items. Expected %d or more.", *schema.MinItems)))
	}
	if schema.MaxItems != nil && len(items) > *schema.MaxItems {
		res.add(diagnostic(startRange(n.Range), protocol.DiagnosticSeverityError, types.CodeItemCount,
			fmt.Sprintf("Array has too many items. Expected %d or fewer.", *schema.MaxItems)))
	}
}

// flattenItems returns the effective items of a sequence.  Directive blocks
// in item position are replaced by what they produce: the items of
// sequence bodies and mapping bodies as single items.  It also reports
// whether the item count is unknowable.
func (s *validation) flattenItems(n *types.Node) ([]*types.Node, bool) {
	var out []*types.Node
	dynamic := false
	type itemFrame struct {
		items []*types.Node
		next  int
		// asIs frames hold mapping bodies, which are items themselves.
		asIs bool
	}
	stack := []itemFrame{{items: n.Items}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.items) {
			stack = stack[:len(stack)-1]
			continue
		}
		item := top.items[top.next]
		top.next++

		if item.Kind == types.NodeScalar && item.Expression != nil {
			dynamic = true
		}
		if top.asIs || !isDirectiveBlock(item) {
			out = append(out, item)
			continue
		}
		dynamic = true
		// Pushed in reverse so bodies come out in document order.
		for i := len(item.Pairs) - 1; i >= 0; i-- {
			body := item.Pairs[i].Value
			switch body.Kind {
			case types.NodeSequence:
				if len(stack) <= s.MaxDepth {
					stack = append(stack, itemFrame{items: body.Items})
				}
			case types.NodeMapping:
				stack = append(stack, itemFrame{items: []*types.Node{body}, asIs: true})
			}
		}
	}
	return out, dynamic
}

func (s *validation) scalar(n *types.Node, schema *types.SchemaNode, res *matchResult) {
	if len(schema.Enum) > 0 {
		if enumContains(schema.Enum, n, schema.IgnoreCase == types.IgnoreCaseValue) {
			res.valueMatched = true
		} else {
			res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeEnumMismatch,
				fmt.Sprintf("Value is not accepted. Valid values: %s.", enumList(schema.Enum))))
		}
	}
	if schema.Const != nil {
		if valueEquals(schema.Const, n, schema.IgnoreCase == types.IgnoreCaseValue) {
			res.valueMatched = true
		} else {
			res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeEnumMismatch,
				fmt.Sprintf("Value must be %s.", formatValue(schema.Const))))
		}
	}
	if n.Tag == types.TagNull {
		return
	}

	text := n.Value
	if schema.Pattern != "" {
		if re := compilePattern(schema.Pattern); re != nil {
			if re.MatchString(text) {
				res.valueMatched = true
			} else {
				res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodePatternMismatch,
					fmt.Sprintf("String does not match the pattern of %q.", schema.Pattern)))
			}
		}
	}
	length := utf8.RuneCountInString(text)
	if schema.MinLength != nil && length < *schema.MinLength {
		res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeLength,
			fmt.Sprintf("String is shorter than the minimum length of %d.", *schema.MinLength)))
	}
	if schema.MaxLength != nil && length > *schema.MaxLength {
		res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeLength,
			fmt.Sprintf("String is longer than the maximum length of %d.", *schema.MaxLength)))
	}

	if n.Tag != types.TagInteger && n.Tag != types.TagFloat {
		return
	}
	number, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return
	}
	if schema.Minimum != nil && number < *schema.Minimum {
		res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeRange,
			fmt.Sprintf("Value is below the minimum of %s.", formatNumber(*schema.Minimum))))
	}
	if schema.Maximum != nil && number > *schema.Maximum {
		res.add(diagnostic(n.Range, protocol.DiagnosticSeverityError, types.CodeRange,
			fmt.Sprintf("Value is above the maximum of %s.", formatNumber(*schema.Maximum))))
	}
}

func (s *validation) typeAccepts(declared types.SchemaTypes, n *types.Node) bool {
	switch n.Kind {
	case types.NodeMapping:
		return declared.Has("object")
	case types.NodeSequence:
		return declared.Has("array")
	}
	switch n.Tag {
	case types.TagNull:
		return declared.Has("null")
	case types.TagString:
		return declared.Has("string")
	}
	if s.ScalarsAsStrings && declared.Has("string") {
		return true
	}
	switch n.Tag {
	case types.TagBoolean:
		return declared.Has("boolean")
	case types.TagInteger:
		return declared.Has("integer") || declared.Has("number")
	case types.TagFloat:
		if declared.Has("number") {
			return true
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		return err == nil && declared.Has("integer") && f == math.Trunc(f)
	}
	return false
}

// isDirectiveBlock reports whether every key of the mapping is a
// conditional, loop or insert directive.
func isDirectiveBlock(n *types.Node) bool {
	if n.Kind != types.NodeMapping || len(n.Pairs) == 0 {
		return false
	}
	for _, pair := range n.Pairs {
		if !pair.IsDirective() {
			return false
		}
	}
	return true
}

func collectionBodies(n *types.Node) []*types.Node {
	var bodies []*types.Node
	for _, pair := range n.Pairs {
		if pair.Value.Kind == types.NodeMapping || pair.Value.Kind == types.NodeSequence {
			bodies = append(bodies, pair.Value)
		}
	}
	return bodies
}

// mappingBodiesOnly reports whether a directive block behaves as a mapping:
// none of its bodies is a sequence.
func mappingBodiesOnly(bodies []*types.Node) bool {
	for _, body := range bodies {
		if body.Kind == types.NodeSequence {
			return false
		}
	}
	return true
}

func dynamicPropertySchema(schema *types.SchemaNode) *types.SchemaNode {
	if schema.AdditionalProperties != nil && schema.AdditionalProperties.Bool == nil {
		return schema.AdditionalProperties
	}
	return nil
}

func lookupProperty(schema *types.SchemaNode, name string) (*types.SchemaNode, string, bool) {
	if prop, ok := schema.Properties[name]; ok {
		return prop, name, true
	}
	if schema.IgnoreCase == types.IgnoreCaseKey {
		for _, key := range sortedKeys(schema.Properties) {
			if strings.EqualFold(key, name) {
				return schema.Properties[key], key, true
			}
		}
	}
	return nil, "", false
}

// matchingPatterns returns the schemas of every patternProperties entry
// whose pattern matches name, in pattern order.
func matchingPatterns(schema *types.SchemaNode, name string) []*types.SchemaNode {
	var out []*types.SchemaNode
	for _, pattern := range sortedKeys(schema.PatternProperties) {
		if re := compilePattern(pattern); re != nil && re.MatchString(name) {
			out = append(out, schema.PatternProperties[pattern])
		}
	}
	return out
}

var patternCache sync.Map

// compilePattern compiles a schema pattern once.  Patterns the RE2 engine
// cannot express are ignored.
func compilePattern(pattern string) *regexp.Regexp {
	if cached, ok := patternCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}

func enumContains(values []any, n *types.Node, ignoreCase bool) bool {
	for _, value := range values {
		if valueEquals(value, n, ignoreCase) {
			return true
		}
	}
	return false
}

func valueEquals(value any, n *types.Node, ignoreCase bool) bool {
	switch typed := value.(type) {
	case nil:
		return n.Tag == types.TagNull
	case string:
		if n.Tag == types.TagNull {
			return false
		}
		if ignoreCase {
			return strings.EqualFold(typed, n.Value)
		}
		return typed == n.Value
	case bool:
		b, err := strconv.ParseBool(strings.ToLower(n.Value))
		return n.Tag == types.TagBoolean && err == nil && b == typed
	case float64:
		if n.Tag != types.TagInteger && n.Tag != types.TagFloat {
			return false
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		return err == nil && f == typed
	}
	return false
}

func enumList(values []any) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, formatValue(value))
	}
	return strings.Join(parts, ", ")
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case string:
		return strconv.Quote(typed)
	case float64:
		return formatNumber(typed)
	case nil:
		return "null"
	default:
		return fmt.Sprint(typed)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quoteList(names []string, conjunction string) string {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, strconv.Quote(name))
	}
	if len(quoted) <= 1 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " " + conjunction + " " + quoted[len(quoted)-1]
}

func containsName(names []string, name string, fold bool) bool {
	for _, candidate := range names {
		if candidate == name || (fold && strings.EqualFold(candidate, name)) {
			return true
		}
	}
	return false
}

func seenFold(seen map[string]bool, name string) bool {
	for key := range seen {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

// keyRange is where a missing-property diagnostic for a mapping is placed:
// its first key, or its start.
func keyRange(n *types.Node) protocol.Range {
	if len(n.Pairs) > 0 && n.Pairs[0].Key != nil {
		return n.Pairs[0].Key.Range
	}
	return startRange(n.Range)
}

func startRange(r protocol.Range) protocol.Range {
	end := r.End
	if end.Line != r.Start.Line {
		end = protocol.Position{Line: r.Start.Line, Character: r.Start.Character + 1}
	}
	return protocol.Range{Start: r.Start, End: end}
}

func diagnostic(r protocol.Range, severity protocol.DiagnosticSeverity, code string, message string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    r,
		Severity: severity,
		Code:     code,
		Source:   types.DiagnosticSource,
		Message:  message,
	}
}
