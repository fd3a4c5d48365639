package cli

import (
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/adapters"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/app"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetString(key)
}

func resolveStrings(cmd *cobra.Command, values []string, key string, flagName string) []string {
	if cmd == nil {
		if len(values) > 0 {
			return values
		}
		return viper.GetStringSlice(key)
	}
	if flagChanged(cmd, flagName) {
		return values
	}
	return viper.GetStringSlice(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func resolveInt(cmd *cobra.Command, value int, key string, flagName string) int {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetInt(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}

// parseSeverityFlags turns "code=severity" pairs into an override table.
// Pairs override entries of base with the same code.
func parseSeverityFlags(base map[string]string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(base)+len(pairs))
	for code, severity := range base {
		out[code] = severity
	}
	for _, pair := range pairs {
		code, severity, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(code) == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("severity override must look like code=severity: " + pair)
		}
		out[strings.TrimSpace(code)] = strings.TrimSpace(severity)
	}
	return out, nil
}

func parseOutputFormat(value string) (types.OutputFormat, error) {
	switch format := types.OutputFormat(strings.ToLower(strings.TrimSpace(value))); format {
	case "", types.OutputFormatText:
		return types.OutputFormatText, nil
	case types.OutputFormatJSON:
		return format, nil
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unknown output format '" + value + "'")
	}
}

// serviceConfig reads the settings shared by every command.
func serviceConfig(cmd *cobra.Command) app.Config {
	cfg := app.DefaultConfig()
	cfg.HTTPTimeoutSec = resolveInt(cmd, viper.GetInt("http.timeout_sec"), "http.timeout_sec", "http-timeout")
	cfg.HTTPRetries = resolveInt(cmd, viper.GetInt("http.retries"), "http.retries", "http-retries")
	cfg.HTTPRetryDelayMs = resolveInt(cmd, viper.GetInt("http.retry_delay_ms"), "http.retry_delay_ms", "http-retry-delay-ms")
	return cfg
}

func newDiagnosticsWriter() (adapters.DiagnosticsWriter, error) {
	format, err := parseOutputFormat(viper.GetString("format"))
	if err != nil {
		return adapters.DiagnosticsWriter{}, err
	}
	mode, err := adapters.ParseColorMode(viper.GetString("color"))
	if err != nil {
		return adapters.DiagnosticsWriter{}, err
	}
	return adapters.NewDiagnosticsWriter(format, mode), nil
}
