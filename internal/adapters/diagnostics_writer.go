package adapters

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"go.lsp.dev/protocol"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/policies"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

func ParseColorMode(value string) (ColorMode, error) {
	switch mode := ColorMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return mode, nil
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unknown color mode '" + value + "'")
	}
}

// DiagnosticsWriter renders validation results as text or JSON.  Text
// output is colored when the mode says so or when writing to a terminal.
type DiagnosticsWriter struct {
	Format types.OutputFormat
	Color  ColorMode
}

func NewDiagnosticsWriter(format types.OutputFormat, mode ColorMode) DiagnosticsWriter {
	return DiagnosticsWriter{Format: format, Color: mode}
}

type jsonDocumentReport struct {
	URI              string                `json:"uri"`
	SchemaURI        string                `json:"schemaUri,omitempty"`
	Diagnostics      []protocol.Diagnostic `json:"diagnostics"`
	ResolutionErrors []string              `json:"resolutionErrors,omitempty"`
}

func (a DiagnosticsWriter) Write(w io.Writer, results []types.DocumentDiagnostics) error {
	ordered := append([]types.DocumentDiagnostics(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].URI < ordered[j].URI
	})
	switch a.Format {
	case types.OutputFormatJSON:
		return a.writeJSON(w, ordered)
	case types.OutputFormatText, "":
		return a.writeText(w, ordered)
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unknown output format '" + string(a.Format) + "'")
	}
}

// WriteFile writes the rendered results to path, creating its directory.
func (a DiagnosticsWriter) WriteFile(path string, results []types.DocumentDiagnostics) error {
	if err := a.ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create output file").
			WithCause(err)
	}
	if err := a.Write(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a DiagnosticsWriter) writeJSON(w io.Writer, results []types.DocumentDiagnostics) error {
	reports := make([]jsonDocumentReport, 0, len(results))
	for _, result := range results {
		diagnostics := result.Diagnostics
		if diagnostics == nil {
			diagnostics = []protocol.Diagnostic{}
		}
		reports = append(reports, jsonDocumentReport{
			URI:              result.URI,
			SchemaURI:        result.SchemaURI,
			Diagnostics:      diagnostics,
			ResolutionErrors: result.ResolutionErrors,
		})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reports); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode diagnostics").
			WithCause(err)
	}
	return nil
}

func (a DiagnosticsWriter) writeText(w io.Writer, results []types.DocumentDiagnostics) error {
	palette := newTextPalette(a.colorize(w))
	var lines []string
	for _, result := range results {
		for _, problem := range result.ResolutionErrors {
			lines = append(lines, fmt.Sprintf("%s: %s %s",
				palette.location(result.URI), palette.schema("schema"), problem))
		}
		for _, d := range result.Diagnostics {
			location := fmt.Sprintf("%s:%d:%d", result.URI, d.Range.Start.Line+1, d.Range.Start.Character+1)
			lines = append(lines, fmt.Sprintf("%s: %s %s %s",
				palette.location(location),
				palette.severity(d.Severity),
				palette.code("["+fmt.Sprint(d.Code)+"]"),
				d.Message))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, strings.Join(lines, "\n")+"\n"); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write diagnostics").
			WithCause(err)
	}
	return nil
}

func (a DiagnosticsWriter) colorize(w io.Writer) bool {
	switch a.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (a DiagnosticsWriter) ensureDir(path string) error {
	if path == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create output directory").
			WithCause(err)
	}
	return nil
}

type textPalette struct {
	location func(a ...interface{}) string
	code     func(a ...interface{}) string
	schema   func(a ...interface{}) string
	levels   map[protocol.DiagnosticSeverity]func(a ...interface{}) string
}

func newTextPalette(enabled bool) textPalette {
	paint := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return textPalette{
		location: paint(color.Bold),
		code:     paint(color.FgHiBlack),
		schema:   paint(color.FgMagenta, color.Bold),
		levels: map[protocol.DiagnosticSeverity]func(a ...interface{}) string{
			protocol.DiagnosticSeverityError:       paint(color.FgRed, color.Bold),
			protocol.DiagnosticSeverityWarning:     paint(color.FgYellow, color.Bold),
			protocol.DiagnosticSeverityInformation: paint(color.FgCyan),
			protocol.DiagnosticSeverityHint:        paint(color.FgBlue),
		},
	}
}

func (p textPalette) severity(severity protocol.DiagnosticSeverity) string {
	name := string(policies.SeverityName(severity))
	if paint, ok := p.levels[severity]; ok {
		return paint(name)
	}
	return name
}

var _ ports.DiagnosticsWriterPort = DiagnosticsWriter{}
