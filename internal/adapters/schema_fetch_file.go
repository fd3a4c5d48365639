package adapters

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
)

// FileSchemaFetcher reads schema documents from the local file system.  It
// accepts file:// URIs and plain paths.
type FileSchemaFetcher struct{}

func NewFileSchemaFetcher() FileSchemaFetcher {
	return FileSchemaFetcher{}
}

func (f FileSchemaFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("request canceled").
			WithCause(err)
	}
	path, err := filePathFromURI(uri)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		code := errbuilder.CodeInternal
		msg := "Unable to read " + path
		if errors.Is(err, fs.ErrNotExist) {
			code = errbuilder.CodeNotFound
			msg = "Resource not found"
		}
		return "", errbuilder.New().
			WithCode(code).
			WithMsg(msg).
			WithCause(err)
	}
	return string(data), nil
}

// filePathFromURI turns a file:// URI or a plain path into an OS path.
func filePathFromURI(uri string) (string, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("schema path is empty")
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		return filepath.FromSlash(trimmed), nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid file uri " + trimmed).
			WithCause(err)
	}
	path := parsed.Path
	if parsed.Opaque != "" {
		path = parsed.Opaque
	}
	// file:///C:/x parses with a leading slash before the drive letter.
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

var _ ports.SchemaFetchPort = FileSchemaFetcher{}
