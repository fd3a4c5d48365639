package ports

import (
	"io"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

type DiagnosticsWriterPort interface {
	Write(w io.Writer, results []types.DocumentDiagnostics) error
}
