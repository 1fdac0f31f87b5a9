package main

import (
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/profitpulse/query-gateway/internal/cache"
)

var flushTenant string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the outcome cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove every cached answer of a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled() {
			return eris.New("cache flush: REDIS_URL is not configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := newRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		removed, err := cache.New(nil, client, cfg.Redis.CacheTTL).Invalidate(ctx, flushTenant)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Removed %d cached answers for %s", removed, flushTenant)
		return nil
	},
}

func init() {
	cacheFlushCmd.Flags().StringVar(&flushTenant, "tenant", "", "tenant (user) id whose answers are removed")
	_ = cacheFlushCmd.MarkFlagRequired("tenant")
	cacheCmd.AddCommand(cacheFlushCmd)
	rootCmd.AddCommand(cacheCmd)
}
