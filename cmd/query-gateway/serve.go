package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/profitpulse/query-gateway/internal/auth"
	"github.com/profitpulse/query-gateway/internal/gateway"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleAfter       = time.Hour
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validated(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnvironment(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		verifier, err := auth.NewVerifier(cfg.Auth)
		if err != nil {
			return err
		}
		limiter := auth.NewRateLimiter(cfg.Auth.RateLimitPerMinute, cfg.Auth.RateLimitBurst)

		gin.SetMode(cfg.Server.GinMode)
		server := gateway.NewServer(env.Asker)
		server.SetHealthChecker(env.Health)
		if env.Recorder != nil {
			server.SetHistoryReader(env.Recorder)
		}

		port := servePort
		if port == "" {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           server.SetupRoutes(auth.NewMiddleware(verifier, limiter).Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.String("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			ticker := time.NewTicker(limiterCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if removed := limiter.Cleanup(limiterIdleAfter); removed > 0 {
						zap.L().Debug("evicted idle rate limiters", zap.Int("removed", removed))
					}
				}
			}
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
