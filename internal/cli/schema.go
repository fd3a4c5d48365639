package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/app"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schemas as the validator sees them",
	}
	cmd.AddCommand(newSchemaResolveCommand())
	cmd.AddCommand(newSchemaSectionCommand())
	cmd.AddCommand(newSchemaLoadCommand())
	return cmd
}

func newSchemaResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <uri>",
		Short: "Print a schema with every reference resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaResolve(cmd.Context(), cmd, args[0])
		},
	}
}

func newSchemaSectionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "section <uri> <path>",
		Short: "Print the resolved sub-schema at a dotted property path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaSection(cmd.Context(), cmd, args[0], args[1])
		},
	}
}

func newSchemaLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <uri>",
		Short: "Print a schema as fetched, without resolving references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaLoad(cmd.Context(), cmd, args[0])
		},
	}
}

func runSchemaResolve(ctx context.Context, cmd *cobra.Command, uri string) error {
	service, err := app.NewService(serviceConfig(cmd))
	if err != nil {
		return err
	}
	result, err := service.ResolveSchema(ctx, app.ResolveSchemaRequest{URI: uri})
	if err != nil {
		return err
	}
	log.Debug().Str("uri", result.URI).Str("state", string(result.State)).Msg("schema resolution finished")
	if err := writeSchema(cmd.OutOrStdout(), result.Schema); err != nil {
		return err
	}
	return schemaProblems(cmd.ErrOrStderr(), result.URI, result.Errors)
}

func runSchemaSection(ctx context.Context, cmd *cobra.Command, uri string, path string) error {
	service, err := app.NewService(serviceConfig(cmd))
	if err != nil {
		return err
	}
	result, err := service.SchemaSection(ctx, app.SchemaSectionRequest{URI: uri, Path: app.SplitSectionPath(path)})
	if err != nil {
		return err
	}
	if !result.Found {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("no schema section at '" + path + "' in " + result.URI)
	}
	if err := writeSchema(cmd.OutOrStdout(), result.Section); err != nil {
		return err
	}
	return schemaProblems(cmd.ErrOrStderr(), result.URI, result.Errors)
}

func runSchemaLoad(ctx context.Context, cmd *cobra.Command, uri string) error {
	service, err := app.NewService(serviceConfig(cmd))
	if err != nil {
		return err
	}
	result, err := service.LoadSchema(ctx, app.LoadSchemaRequest{URI: uri})
	if err != nil {
		return err
	}
	if err := writeSchema(cmd.OutOrStdout(), result.Schema); err != nil {
		return err
	}
	return schemaProblems(cmd.ErrOrStderr(), result.URI, result.Errors)
}

func writeSchema(w io.Writer, schema *types.SchemaNode) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode schema").
			WithCause(err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// schemaProblems prints resolution problems and turns them into a failed
// precondition so the exit status reflects them.
func schemaProblems(w io.Writer, uri string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	for _, problem := range problems {
		fmt.Fprintf(w, "%s: %s\n", uri, problem)
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("schema has %d problem(s): %s", len(problems), strings.Join(problems, "; ")))
}
