package cli

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/app"
)

type validateOptions struct {
	Schema           string
	Associations     []string
	Patterns         []string
	Severities       []string
	Output           string
	MaxDepth         int
	ScalarsAsStrings bool
	Workers          int
}

func newValidateCommand() *cobra.Command {
	opts := validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate pipeline files against a schema",
		Long: "Validate pipeline files against a schema.  Directories are scanned for files\n" +
			"matching --pattern.  The schema comes from --schema or from association files.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Schema path or URI applied to every file")
	cmd.Flags().StringSliceVar(&opts.Associations, "associations", nil, "Schema association files (later files override earlier ones)")
	cmd.Flags().StringSliceVar(&opts.Patterns, "pattern", nil, "File patterns used when scanning directories")
	cmd.Flags().StringSliceVar(&opts.Severities, "severity", nil, "Severity override code=error|warning|information|hint|off")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Write diagnostics to this file instead of stdout")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "Maximum nesting depth validated (0 = default)")
	cmd.Flags().BoolVar(&opts.ScalarsAsStrings, "scalars-as-strings", true, "Accept any scalar where a string is expected")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "Files validated concurrently (0 = default)")
	_ = viper.BindPFlag("schema", cmd.Flags().Lookup("schema"))
	_ = viper.BindPFlag("associations", cmd.Flags().Lookup("associations"))
	_ = viper.BindPFlag("patterns", cmd.Flags().Lookup("pattern"))
	_ = viper.BindPFlag("validation.max_depth", cmd.Flags().Lookup("max-depth"))
	_ = viper.BindPFlag("validation.scalars_as_strings", cmd.Flags().Lookup("scalars-as-strings"))
	_ = viper.BindPFlag("validation.workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func runValidate(ctx context.Context, cmd *cobra.Command, paths []string, opts validateOptions) error {
	cfg := serviceConfig(cmd)
	cfg.MaxDepth = resolveInt(cmd, opts.MaxDepth, "validation.max_depth", "max-depth")
	cfg.ScalarsAsStrings = resolveBool(cmd, opts.ScalarsAsStrings, "validation.scalars_as_strings", "scalars-as-strings")
	cfg.Workers = resolveInt(cmd, opts.Workers, "validation.workers", "workers")
	severities, err := parseSeverityFlags(viper.GetStringMapString("severities"), opts.Severities)
	if err != nil {
		return err
	}
	cfg.Severities = severities

	writer, err := newDiagnosticsWriter()
	if err != nil {
		return err
	}
	service, err := app.NewService(cfg)
	if err != nil {
		return err
	}
	result, err := service.Validate(ctx, app.ValidateRequest{
		Paths:            paths,
		Patterns:         resolveStrings(cmd, opts.Patterns, "patterns", "pattern"),
		SchemaURI:        resolveString(cmd, opts.Schema, "schema", "schema"),
		AssociationFiles: resolveStrings(cmd, opts.Associations, "associations", "associations"),
	})
	if err != nil {
		return err
	}

	if opts.Output != "" {
		if err := writer.WriteFile(opts.Output, result.Documents); err != nil {
			return err
		}
	} else if err := writer.Write(cmd.OutOrStdout(), result.Documents); err != nil {
		return err
	}

	log.Info().
		Int("files", len(result.Documents)).
		Int("errors", result.ErrorCount).
		Int("warnings", result.WarningCount).
		Msg("validation complete")
	if result.ErrorCount > 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("validation found %d error(s)", result.ErrorCount))
	}
	return nil
}
