package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/profitpulse/query-gateway/internal/audit"
)

var pruneRetention time.Duration

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Manage the query audit log",
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit entries older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.AppDatabase.Enabled() {
			return eris.New("audit prune: APP_DATABASE_URL is not configured")
		}
		if pruneRetention <= 0 {
			return eris.New("audit prune: retention must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := pgxpool.New(ctx, cfg.AppDatabase.URL)
		if err != nil {
			return eris.Wrap(err, "audit prune: connect")
		}
		defer pool.Close()

		removed, err := audit.NewRecorder(pool).Prune(ctx, pruneRetention)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Pruned %d audit entries older than %s", removed, pruneRetention)
		return nil
	},
}

func init() {
	auditPruneCmd.Flags().DurationVar(&pruneRetention, "retention", 90*24*time.Hour, "keep entries newer than this")
	auditCmd.AddCommand(auditPruneCmd)
	rootCmd.AddCommand(auditCmd)
}
