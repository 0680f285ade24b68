package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/memchain/pkg/log"
	"github.com/sandevgo/memchain/pkg/srv"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Watch memory pointers and record every update",
	Long:  `Subscribes to pointer updates of the configured agents, stores each observed head and notifies Telegram when enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stdout)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting memchain")

		rt, err := bootstrap(ctx, needLedger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to bootstrap")
		}

		services := NewServices(ctx, rt)
		srv.StartServices(ctx, services, stop)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("memchain has been shut down gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
