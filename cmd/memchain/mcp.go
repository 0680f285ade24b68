package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/memchain/internal/transport/mcp"
	"github.com/sandevgo/memchain/pkg/log"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory chain to MCP clients over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// stdout carries the protocol
		ctx, flushLog := setupLogger(ctx, os.Stderr)
		defer flushLog()

		rt, err := bootstrap(ctx, needLedger)
		if err != nil {
			return err
		}
		defer rt.Close()

		deps := mcp.Deps{
			Pointers:     rt.anchor,
			Verifier:     rt.replayer(),
			Store:        rt.store,
			DefaultAgent: rt.agent,
		}
		if rt.signer != nil {
			deps.Appender = rt.builder()
		} else {
			log.FromCtx(ctx).Info().Msg("no PRIVATE_KEY, serving read-only tools")
		}

		return mcp.New(deps).Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
