package policies

import (
	"go.lsp.dev/protocol"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

const multipleDocumentsMessage = "Multiple documents found. Pipeline files must be single-document YAML; remove the extra '---' separated documents."

// SingleDocumentPolicy rejects inputs made of more than one YAML document.
type SingleDocumentPolicy struct{}

func NewSingleDocumentPolicy() SingleDocumentPolicy {
	return SingleDocumentPolicy{}
}

// Check returns the diagnostic for a multi-document input, placed on the
// start of the second document, and reports whether the policy was
// violated.
func (SingleDocumentPolicy) Check(docs []*types.Document) (protocol.Diagnostic, bool) {
	if len(docs) <= 1 {
		return protocol.Diagnostic{}, false
	}
	start := docs[1].Range.Start
	end := docs[1].Range.End
	if end.Line > start.Line {
		end = protocol.Position{Line: start.Line, Character: 3}
	}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: protocol.DiagnosticSeverityError,
		Code:     types.CodeMultipleDocuments,
		Source:   types.DiagnosticSource,
		Message:  multipleDocumentsMessage,
	}, true
}
