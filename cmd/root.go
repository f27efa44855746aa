// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	cfgFile string
	apiURL  string
	format  string
	output  string
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDependencies())
}

func newRootCommand(deps *dependencies) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sentinai",
		Short: "SentinAI analyzes code, APIs, SQL and configuration for security vulnerabilities.",
		Long: `sentinai submits artifacts to the SentinAI analysis service, classifies the
returned findings into OWASP categories and builds dashboard metrics from your
analysis history, either on the service or locally.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, opts); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting SentinAI CLI",
				zap.String("version", Version),
				zap.String("api", cfg.API().BaseURL))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.StringVar(&opts.apiURL, "api-url", "", "base URL of the analysis service (overrides api.base_url)")
	flags.StringVarP(&opts.format, "format", "f", "", "output format: text, json, yaml, sarif, junit (overrides output.format)")
	flags.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")

	rootCmd.SetVersionTemplate(`{{printf "sentinai version %s\n" .Version}}`)

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(deps),
		newLogoutCmd(deps),
		newWhoamiCmd(deps),
		newAnalyzeCmd(deps, opts),
		newHistoryCmd(deps, opts),
		newDashboardCmd(deps, opts),
		newEthicsCmd(deps),
		newCacheCmd(deps, opts),
		newServeMetricsCmd(deps),
	)
	return rootCmd
}

// Execute runs the command tree with ctx, which should be cancelled on SIGINT.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, then environment variables, then
// explicitly set flags, in increasing precedence.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, opts *rootOptions) error {
	if opts.cfgFile != "" {
		v.SetConfigFile(opts.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SENTINAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config.yaml is fine; an explicit --config is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		v.Set("api.base_url", opts.apiURL)
	}
	if flags.Changed("format") {
		v.Set("output.format", opts.format)
	}
	return nil
}

// getConfigFromContext retrieves the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}
