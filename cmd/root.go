// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/observability"
)

var (
	appCfg   *config.Config
	appCfgMu sync.RWMutex
)

// NewRootCommand builds a fresh root command tree. A new instance per
// invocation keeps flag state from leaking between runs in tests.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "sirius",
		Short:   "Sirius drives a real browser through natural-language tasks.",
		Version: Version,
		// Errors are logged by Execute; cobra should not duplicate them.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before any subcommand, setting up config and logging.
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				// Initialize a fallback logger so the failure is still reported
				// through the normal channel.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sirius"})
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			setConfig(cfg)
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting sirius", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}

// Execute runs the root command with the signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// loadConfig resolves the config file path and layers it over defaults and
// SIRIUS_* environment variables. A missing default file is not an error.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setConfig(cfg *config.Config) {
	appCfgMu.Lock()
	defer appCfgMu.Unlock()
	appCfg = cfg
}

// currentConfig returns the configuration established by PersistentPreRunE,
// falling back to defaults when a command is run without the root wiring.
func currentConfig() *config.Config {
	appCfgMu.RLock()
	defer appCfgMu.RUnlock()
	if appCfg != nil {
		return appCfg
	}
	return config.NewDefaultConfig()
}
