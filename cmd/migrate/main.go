package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/profitpulse/query-gateway/internal/config"
	"github.com/profitpulse/query-gateway/internal/database"
	"github.com/profitpulse/query-gateway/internal/examples"
)

var (
	configFile    string
	rollbackSteps int
	migration     database.MigrationConfig
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the gateway database (audit log and translator examples)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewDefaultLoader(configFile).Load(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if !cfg.AppDatabase.Enabled() {
			return eris.New("APP_DATABASE_URL is required")
		}
		migration = database.MigrationConfig{
			DatabaseURL:    cfg.AppDatabase.URL,
			MigrationsPath: cfg.AppDatabase.MigrationsPath,
		}
		return nil
	},
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DefaultSection.Println("Running database migrations")
		if err := database.RunMigrations(migration); err != nil {
			return err
		}
		pterm.Success.Println("Database migrations completed")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.RollbackMigrations(migration, rollbackSteps); err != nil {
			return err
		}
		pterm.Success.Printfln("Rolled back %d migration(s)", rollbackSteps)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		version, dirty, err := database.MigrationVersion(migration)
		if err != nil {
			return err
		}
		if dirty {
			pterm.Warning.Printfln("version %d (dirty)", version)
			return nil
		}
		fmt.Printf("version %d\n", version)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the built-in translator examples",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := examples.NewPostgresStore(migration.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.SeedDefaults(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Stored %d translator examples", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	downCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
