package core

import (
	"regexp"
	"strings"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

const (
	expressionOpen  = "${{"
	expressionClose = "}}"
)

var (
	eachDirective   = regexp.MustCompile(`^each\s+([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(\S.*)$`)
	macroExpression = regexp.MustCompile(`^\$\([^()\s]+\)$`)
)

type expressionSpan struct {
	start int
	end   int
	body  string
}

// ClassifyKey decides how a mapping key takes part in validation.  Keys
// without template syntax are literal; a key that is a single well-formed
// `${{ }}` is a directive or an interpolation; text mixed with expressions
// is embedded; anything unterminated or unbalanced is malformed.
func ClassifyKey(text string) (types.KeyKind, *types.Expression) {
	if !strings.Contains(text, expressionOpen) {
		return types.KeyLiteral, nil
	}
	spans, ok := scanExpressions(text)
	if !ok {
		return types.KeyMalformed, &types.Expression{Kind: types.ExpressionMalformed, Body: text}
	}
	trimmed := strings.TrimSpace(text)
	if len(spans) == 1 && spans[0].start == strings.Index(text, trimmed) && spans[0].end == strings.Index(text, trimmed)+len(trimmed) {
		expr, ok := classifyBody(spans[0].body)
		if !ok {
			return types.KeyMalformed, &types.Expression{Kind: types.ExpressionMalformed, Body: spans[0].body}
		}
		return types.KeyExpression, expr
	}
	for _, span := range spans {
		if strings.TrimSpace(span.body) == "" || !balanced(span.body) {
			return types.KeyMalformed, &types.Expression{Kind: types.ExpressionMalformed, Body: text}
		}
	}
	return types.KeyExpression, &types.Expression{Kind: types.ExpressionEmbedded, Body: text}
}

// ClassifyScalar returns the expression carried by a scalar value, or nil.
// Any value with template syntax, even malformed, is reported so the
// validator can treat it as unknowable.
func ClassifyScalar(text string) *types.Expression {
	trimmed := strings.TrimSpace(text)
	if strings.Contains(text, expressionOpen) {
		spans, ok := scanExpressions(text)
		if !ok {
			return &types.Expression{Kind: types.ExpressionMalformed, Body: text}
		}
		if len(spans) == 1 && strings.HasPrefix(trimmed, expressionOpen) && strings.HasSuffix(trimmed, expressionClose) {
			return &types.Expression{Kind: types.ExpressionInterpolation, Body: strings.TrimSpace(spans[0].body)}
		}
		return &types.Expression{Kind: types.ExpressionEmbedded, Body: text}
	}
	if macroExpression.MatchString(trimmed) {
		return &types.Expression{Kind: types.ExpressionMacro, Body: trimmed[2 : len(trimmed)-1]}
	}
	if strings.HasPrefix(trimmed, "$[") && strings.HasSuffix(trimmed, "]") && len(trimmed) > 3 {
		body := trimmed[2 : len(trimmed)-1]
		if balanced(body) {
			return &types.Expression{Kind: types.ExpressionRuntime, Body: strings.TrimSpace(body)}
		}
	}
	return nil
}

func classifyBody(raw string) (*types.Expression, bool) {
	body := strings.TrimSpace(raw)
	if body == "" || !balanced(body) {
		return nil, false
	}
	word, rest := splitDirectiveWord(body)
	switch word {
	case "if", "elseif":
		if rest == "" {
			return nil, false
		}
		kind := types.ExpressionIf
		if word == "elseif" {
			kind = types.ExpressionElseIf
		}
		return &types.Expression{Kind: kind, Body: rest}, true
	case "else":
		if rest != "" {
			return nil, false
		}
		return &types.Expression{Kind: types.ExpressionElse}, true
	case "each":
		match := eachDirective.FindStringSubmatch(body)
		if match == nil {
			return nil, false
		}
		return &types.Expression{Kind: types.ExpressionEach, Variable: match[1], Body: strings.TrimSpace(match[2])}, true
	case "insert":
		if rest != "" {
			return nil, false
		}
		return &types.Expression{Kind: types.ExpressionInsert}, true
	}
	return &types.Expression{Kind: types.ExpressionInterpolation, Body: body}, true
}

// splitDirectiveWord separates a leading directive word from the rest.  A
// word only counts when followed by whitespace, '(' or the end of the body,
// so identifiers such as "iffy" or "elseValue" stay interpolations.
func splitDirectiveWord(body string) (string, string) {
	for _, word := range []string{"elseif", "else", "each", "if", "insert"} {
		if !strings.HasPrefix(body, word) {
			continue
		}
		rest := body[len(word):]
		if rest == "" {
			return word, ""
		}
		if rest[0] == ' ' || rest[0] == '\t' || rest[0] == '(' {
			return word, strings.TrimSpace(rest)
		}
	}
	return "", body
}

// scanExpressions finds every `${{ ... }}` span in text.  Quoted strings
// inside an expression may contain "}}".  It reports false when an
// expression is left open.
func scanExpressions(text string) ([]expressionSpan, bool) {
	var spans []expressionSpan
	pos := 0
	for {
		open := strings.Index(text[pos:], expressionOpen)
		if open < 0 {
			return spans, true
		}
		start := pos + open
		i := start + len(expressionOpen)
		inQuote := false
		closed := false
		for i < len(text) {
			switch {
			case text[i] == '\'':
				// '' is an escaped quote inside a string literal.
				if inQuote && i+1 < len(text) && text[i+1] == '\'' {
					i += 2
					continue
				}
				inQuote = !inQuote
			case !inQuote && strings.HasPrefix(text[i:], expressionClose):
				closed = true
			}
			if closed {
				break
			}
			i++
		}
		if !closed {
			return spans, false
		}
		spans = append(spans, expressionSpan{
			start: start,
			end:   i + len(expressionClose),
			body:  text[start+len(expressionOpen) : i],
		})
		pos = i + len(expressionClose)
	}
}

// balanced reports whether brackets and string literals in an expression
// body are closed.
func balanced(body string) bool {
	var stack []byte
	inQuote := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if inQuote {
			if c == '\'' {
				if i+1 < len(body) && body[i+1] == '\'' {
					i++
					continue
				}
				inQuote = false
			}
			continue
		}
		switch c {
		case '\'':
			inQuote = true
		case '(', '[':
			stack = append(stack, c)
		case ')', ']':
			if len(stack) == 0 {
				return false
			}
			top := stack[len(stack)-1]
			if (c == ')' && top != '(') || (c == ']' && top != '[') {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return !inQuote && len(stack) == 0
}
