// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/internal/config"
	"github.com/owizdom/swarm-mindv2/internal/observability"
)

var (
	cfgFile string
	// loadedConfig is built once in PersistentPreRunE and shared by every
	// subcommand.
	loadedConfig *config.Config
)

// NewRootCommand constructs a fresh command tree. A new instance per
// invocation keeps flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "swarmmind",
		Short:   "SwarmMind is a leaderless multi-agent coordination substrate.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initializeConfig()
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "swarmmind"})
				return err
			}
			loadedConfig = cfg
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting SwarmMind", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newAgentCommand())
	rootCmd.AddCommand(newAggregatorCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the command tree against the given context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig reads the config file (if any) and the environment,
// and builds the process-wide Config exactly once.
func initializeConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env carry it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return config.NewConfigFromViper(v)
}
