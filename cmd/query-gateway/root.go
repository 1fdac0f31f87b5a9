package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/profitpulse/query-gateway/internal/config"
)

var (
	cfg        *config.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "query-gateway",
	Short: "Tenant-isolated natural-language query gateway",
	Long:  "Translates business questions into read-only SQL, scopes every statement to the asking tenant and runs it against the fact store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.NewDefaultLoader(configFile).Load(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// validated checks the full configuration; commands that answer questions need it
func validated() error {
	return eris.Wrap(cfg.ValidateWithContext(), "invalid configuration")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
