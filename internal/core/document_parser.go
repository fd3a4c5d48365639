package core

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.lsp.dev/protocol"
	"gopkg.in/yaml.v3"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

const DefaultMaxDepth = 256

var yamlErrorLine = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

type DocumentParser struct {
	MaxDepth int
}

func NewDocumentParser(maxDepth int) DocumentParser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return DocumentParser{MaxDepth: maxDepth}
}

// ParseDocuments splits text into YAML documents and parses each one with
// the default depth limit.
func ParseDocuments(text string) []*types.Document {
	return NewDocumentParser(DefaultMaxDepth).Parse(text)
}

type documentChunk struct {
	firstLine int
	lines     []string
}

// Parse splits text at document markers and parses every chunk on its own,
// so a syntax error in one document never affects another.  Chunks holding
// only blank lines, comments or directives are not documents.  At least one
// document is always returned.
func (p DocumentParser) Parse(text string) []*types.Document {
	lines := splitLines(text)
	var chunks []documentChunk
	current := documentChunk{}
	flush := func(next int) {
		if chunkHasContent(current.lines) {
			chunks = append(chunks, current)
		}
		current = documentChunk{firstLine: next}
	}
	for i, line := range lines {
		switch {
		case isDocumentMarker(line, "---"):
			flush(i)
			current.lines = append(current.lines, line)
		case isDocumentMarker(line, "..."):
			flush(i + 1)
		default:
			current.lines = append(current.lines, line)
		}
	}
	flush(len(lines))

	if len(chunks) == 0 {
		return []*types.Document{{}}
	}
	index := newLineIndex(lines)
	docs := make([]*types.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, p.parseChunk(chunk, index))
	}
	return docs
}

func (p DocumentParser) parseChunk(chunk documentChunk, index lineIndex) *types.Document {
	lastLine := chunk.firstLine + len(chunk.lines) - 1
	doc := &types.Document{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(chunk.firstLine)},
			End:   index.lineEnd(lastLine),
		},
	}

	var root yaml.Node
	decoder := yaml.NewDecoder(strings.NewReader(strings.Join(chunk.lines, "")))
	if err := decoder.Decode(&root); err != nil {
		if !errors.Is(err, io.EOF) {
			doc.Errors = append(doc.Errors, syntaxError(err, chunk, index))
		}
		return doc
	}

	builder := &nodeBuilder{
		index:      index,
		lineOffset: chunk.firstLine,
		maxDepth:   p.MaxDepth,
	}
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		doc.Root = builder.build(root.Content[0], 0)
	}
	doc.Errors = append(doc.Errors, builder.errors...)
	return doc
}

func syntaxError(err error, chunk documentChunk, index lineIndex) types.ParseError {
	line := chunk.firstLine
	message := strings.TrimPrefix(err.Error(), "yaml: ")
	if match := yamlErrorLine.FindStringSubmatch(err.Error()); match != nil {
		if n, convErr := strconv.Atoi(match[1]); convErr == nil && n >= 1 {
			line = min(chunk.firstLine+n-1, chunk.firstLine+len(chunk.lines)-1)
		}
		message = match[2]
	}
	return types.ParseError{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line)},
			End:   index.lineEnd(line),
		},
		Code:    types.CodeSyntax,
		Message: message,
	}
}

type nodeBuilder struct {
	index         lineIndex
	lineOffset    int
	maxDepth      int
	depthReported bool
	errors        []types.ParseError
}

func (b *nodeBuilder) build(n *yaml.Node, depth int) *types.Node {
	start := b.position(n.Line, n.Column)
	if depth > b.maxDepth {
		if !b.depthReported {
			b.depthReported = true
			b.errors = append(b.errors, types.ParseError{
				Range:   protocol.Range{Start: start, End: start},
				Code:    types.CodeMaxDepth,
				Message: fmt.Sprintf("Maximum nesting depth of %d exceeded; deeper content is not validated.", b.maxDepth),
			})
		}
		return &types.Node{Kind: types.NodeOpaque, Range: protocol.Range{Start: start, End: start}}
	}

	switch n.Kind {
	case yaml.MappingNode:
		return b.mapping(n, start, depth)
	case yaml.SequenceNode:
		node := &types.Node{Kind: types.NodeSequence}
		end := b.position(n.Line, n.Column+1)
		for _, child := range n.Content {
			item := b.build(child, depth+1)
			node.Items = append(node.Items, item)
			node.Dynamic = node.Dynamic || item.Dynamic
			end = item.Range.End
		}
		node.Range = protocol.Range{Start: start, End: end}
		return node
	case yaml.ScalarNode:
		return b.scalar(n, start)
	case yaml.DocumentNode:
		if len(n.Content) > 0 {
			return b.build(n.Content[0], depth)
		}
	}
	// Aliases and anything unexpected stay opaque.
	return &types.Node{Kind: types.NodeOpaque, Range: protocol.Range{Start: start, End: b.position(n.Line, n.Column+1+utf8.RuneCountInString(n.Value))}}
}

func (b *nodeBuilder) mapping(n *yaml.Node, start protocol.Position, depth int) *types.Node {
	node := &types.Node{Kind: types.NodeMapping}
	end := b.position(n.Line, n.Column+1)
	seen := map[string]struct{}{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		pair := &types.KeyValue{}
		if keyNode.Kind == yaml.ScalarNode {
			pair.Key = b.scalar(keyNode, b.position(keyNode.Line, keyNode.Column))
			pair.Key.Expression = nil
			pair.KeyKind, pair.Expression = ClassifyKey(keyNode.Value)
		} else {
			pair.Key = b.build(keyNode, depth+1)
			pair.KeyKind = types.KeyMalformed
		}
		pair.Value = b.build(valueNode, depth+1)
		if valueNode.Line == 0 {
			pair.Value.Range = protocol.Range{Start: pair.Key.Range.End, End: pair.Key.Range.End}
		}

		if pair.KeyKind == types.KeyLiteral && keyNode.Value != "<<" {
			if _, dup := seen[keyNode.Value]; dup {
				b.errors = append(b.errors, types.ParseError{
					Range:   pair.Key.Range,
					Code:    types.CodeDuplicateKey,
					Message: fmt.Sprintf("Map keys must be unique; %q is repeated.", keyNode.Value),
				})
			}
			seen[keyNode.Value] = struct{}{}
		}

		node.Pairs = append(node.Pairs, pair)
		node.Dynamic = node.Dynamic || pair.KeyKind != types.KeyLiteral || pair.Value.Dynamic
		end = maxPosition(pair.Key.Range.End, pair.Value.Range.End)
	}
	node.Range = protocol.Range{Start: start, End: end}
	return node
}

func (b *nodeBuilder) scalar(n *yaml.Node, start protocol.Position) *types.Node {
	node := &types.Node{
		Kind:  types.NodeScalar,
		Tag:   scalarTag(n),
		Value: n.Value,
	}
	if node.Tag == types.TagString {
		node.Expression = ClassifyScalar(n.Value)
		node.Dynamic = node.Expression != nil
	}
	node.Range = protocol.Range{Start: start, End: b.scalarEnd(n, start)}
	return node
}

// scalarEnd finds where the scalar's text ends on its first line.
// Multi-line scalars end at the end of that line.
func (b *nodeBuilder) scalarEnd(n *yaml.Node, start protocol.Position) protocol.Position {
	line := int(start.Line)
	text := b.index.line(line)
	runes := []rune(strings.TrimRight(text, "\r\n"))
	from := max(n.Column-1, 0)
	if from >= len(runes) {
		return b.index.lineEnd(line)
	}
	var stop int
	switch n.Style {
	case yaml.DoubleQuotedStyle, yaml.SingleQuotedStyle:
		quote := runes[from]
		stop = len(runes)
		for i := from + 1; i < len(runes); i++ {
			if runes[i] != quote {
				continue
			}
			if quote == '\'' && i+1 < len(runes) && runes[i+1] == '\'' {
				i++
				continue
			}
			if quote == '"' && runes[i-1] == '\\' {
				continue
			}
			stop = i + 1
			break
		}
	case yaml.LiteralStyle, yaml.FoldedStyle:
		stop = len(runes)
	default:
		if n.Tag == "!!null" && n.Value == "" {
			stop = from
			break
		}
		value := []rune(n.Value)
		if strings.ContainsRune(n.Value, '\n') {
			stop = len(runes)
		} else {
			stop = min(from+len(value), len(runes))
		}
	}
	return protocol.Position{Line: uint32(line), Character: uint32(utf16Len(runes[:stop]))}
}

func (b *nodeBuilder) position(line, column int) protocol.Position {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	abs := b.lineOffset + line - 1
	runes := []rune(strings.TrimRight(b.index.line(abs), "\r\n"))
	col := min(column-1, len(runes))
	return protocol.Position{Line: uint32(abs), Character: uint32(utf16Len(runes[:col]))}
}

func scalarTag(n *yaml.Node) types.ScalarTag {
	switch n.ShortTag() {
	case "!!int":
		return types.TagInteger
	case "!!float":
		return types.TagFloat
	case "!!bool":
		return types.TagBoolean
	case "!!null":
		return types.TagNull
	default:
		return types.TagString
	}
}

type lineIndex struct {
	lines []string
}

func newLineIndex(lines []string) lineIndex {
	return lineIndex{lines: lines}
}

func (l lineIndex) line(n int) string {
	if n < 0 || n >= len(l.lines) {
		return ""
	}
	return l.lines[n]
}

func (l lineIndex) lineEnd(n int) protocol.Position {
	text := strings.TrimRight(l.line(n), "\r\n")
	return protocol.Position{Line: uint32(max(n, 0)), Character: uint32(utf16Len([]rune(text)))}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, "\n")
}

func isDocumentMarker(line string, marker string) bool {
	if !strings.HasPrefix(line, marker) {
		return false
	}
	rest := line[len(marker):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\r' || rest[0] == '\n'
}

func chunkHasContent(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isDocumentMarker(line, "---") {
			trimmed = strings.TrimSpace(line[3:])
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(line, "%") {
			continue
		}
		return true
	}
	return false
}

func utf16Len(runes []rune) int {
	n := 0
	for _, r := range runes {
		if width := utf16.RuneLen(r); width > 0 {
			n += width
		} else {
			n++
		}
	}
	return n
}

func maxPosition(a, b protocol.Position) protocol.Position {
	if a.Line > b.Line || (a.Line == b.Line && a.Character > b.Character) {
		return a
	}
	return b
}
