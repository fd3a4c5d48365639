package policies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"go.lsp.dev/protocol"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// SeverityPolicy overrides the severity of diagnostics by code.  The code
// "*" applies to every diagnostic without an exact entry; the severity
// "off" drops the diagnostic.
type SeverityPolicy struct {
	exact    map[string]types.Severity
	fallback types.Severity
}

func NewSeverityPolicy(overrides map[string]string) (SeverityPolicy, error) {
	policy := SeverityPolicy{exact: map[string]types.Severity{}}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		code := strings.TrimSpace(key)
		severity, err := ParseSeverity(overrides[key])
		if err != nil {
			return SeverityPolicy{}, err
		}
		if code == "*" {
			policy.fallback = severity
			continue
		}
		policy.exact[code] = severity
	}
	return policy, nil
}

func ParseSeverity(value string) (types.Severity, error) {
	switch severity := types.Severity(strings.ToLower(strings.TrimSpace(value))); severity {
	case types.SeverityError, types.SeverityWarning, types.SeverityInformation, types.SeverityHint, types.SeverityOff:
		return severity, nil
	case "info":
		return types.SeverityInformation, nil
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unknown severity %q", value))
	}
}

// Apply returns diagnostics with overrides applied, preserving order.
func (p SeverityPolicy) Apply(diagnostics []protocol.Diagnostic) []protocol.Diagnostic {
	if len(p.exact) == 0 && p.fallback == "" {
		return diagnostics
	}
	out := make([]protocol.Diagnostic, 0, len(diagnostics))
	for _, diagnostic := range diagnostics {
		severity, ok := p.exact[codeOf(diagnostic)]
		if !ok {
			severity = p.fallback
		}
		switch severity {
		case "":
		case types.SeverityOff:
			continue
		default:
			diagnostic.Severity = ProtocolSeverity(severity)
		}
		out = append(out, diagnostic)
	}
	return out
}

func ProtocolSeverity(severity types.Severity) protocol.DiagnosticSeverity {
	switch severity {
	case types.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case types.SeverityInformation:
		return protocol.DiagnosticSeverityInformation
	case types.SeverityHint:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

func SeverityName(severity protocol.DiagnosticSeverity) types.Severity {
	switch severity {
	case protocol.DiagnosticSeverityWarning:
		return types.SeverityWarning
	case protocol.DiagnosticSeverityInformation:
		return types.SeverityInformation
	case protocol.DiagnosticSeverityHint:
		return types.SeverityHint
	default:
		return types.SeverityError
	}
}

func codeOf(diagnostic protocol.Diagnostic) string {
	if code, ok := diagnostic.Code.(string); ok {
		return code
	}
	return fmt.Sprint(diagnostic.Code)
}
