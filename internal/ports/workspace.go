package ports

import "github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"

// DocumentSourcePort reads pipeline documents and discovers them under a
// workspace root.
type DocumentSourcePort interface {
	ReadDocument(path string) (types.TextDocument, error)

	// FindPipelineFiles walks root and returns the files whose path matches
	// one of the glob patterns, in lexical order.
	FindPipelineFiles(root string, patterns []string) ([]string, error)
}
