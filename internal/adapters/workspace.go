package adapters

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

var DefaultPipelinePatterns = []string{"azure-pipelines.yml", "azure-pipelines.yaml", "*.pipeline.yml", ".azure-pipelines/*.yml"}

// WorkspaceAdapter reads pipeline documents from disk, discovers them under a
// workspace root and resolves schema references the way a URI base does.
type WorkspaceAdapter struct{}

func NewWorkspaceAdapter() WorkspaceAdapter {
	return WorkspaceAdapter{}
}

func (a WorkspaceAdapter) ReadDocument(file string) (types.TextDocument, error) {
	if strings.TrimSpace(file) == "" {
		return types.TextDocument{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("document path is empty")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		code := errbuilder.CodeInternal
		if errors.Is(err, fs.ErrNotExist) {
			code = errbuilder.CodeNotFound
		}
		return types.TextDocument{}, errbuilder.New().
			WithCode(code).
			WithMsg("failed to read document: " + file).
			WithCause(err)
	}
	uri := file
	if abs, err := filepath.Abs(file); err == nil {
		uri = shared.FileURI(abs)
	}
	return types.TextDocument{URI: uri, Content: string(data)}, nil
}

func (a WorkspaceAdapter) FindPipelineFiles(root string, patterns []string) ([]string, error) {
	var paths []string
	if root == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("workspace root is empty")
	}
	if len(patterns) == 0 {
		patterns = DefaultPipelinePatterns
	}
	for _, pattern := range patterns {
		if _, err := path.Match(filepath.ToSlash(pattern), ""); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("invalid file pattern '" + pattern + "'").
				WithCause(err)
		}
	}
	err := filepath.WalkDir(root, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if current != root && shouldSkipWorkspaceDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		if matchesAnyPattern(filepath.ToSlash(rel), patterns) {
			paths = append(paths, current)
		}
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to scan workspace").
			WithCause(err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ResolveRelativePath resolves ref against base.  Bases without a scheme are
// treated as file paths.
func (a WorkspaceAdapter) ResolveRelativePath(ref string, base string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURI := base
	if shared.URIScheme(base) == "" {
		if abs, err := filepath.Abs(base); err == nil {
			baseURI = shared.FileURI(abs)
		}
	}
	baseURL, err := url.Parse(baseURI)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// matchesAnyPattern matches rel against each pattern.  Patterns without a
// slash match the base name at any depth.
func matchesAnyPattern(rel string, patterns []string) bool {
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		target := rel
		if !strings.Contains(pattern, "/") {
			target = base
		}
		if ok, _ := path.Match(pattern, target); ok {
			return true
		}
	}
	return false
}

func shouldSkipWorkspaceDir(name string) bool {
	switch name {
	case ".git", ".vs", ".vscode-test", "node_modules", "bin", "obj":
		return true
	default:
		return false
	}
}

var _ ports.DocumentSourcePort = WorkspaceAdapter{}
var _ ports.PathResolverPort = WorkspaceAdapter{}
