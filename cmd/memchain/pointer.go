package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sandevgo/memchain/internal/core"
	"github.com/spf13/cobra"
)

var pointerCmd = &cobra.Command{
	Use:   "pointer [agent]",
	Short: "Print the CID of an agent's latest anchored record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context(), os.Stderr)
		defer flushLog()

		rt, err := bootstrap(ctx, needLedger)
		if err != nil {
			return err
		}
		defer rt.Close()

		agent, err := rt.agentArg(args)
		if err != nil {
			return err
		}

		cid, err := rt.anchor.GetPointer(ctx, agent)
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("agent %s has no memory yet", agent)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pointerCmd)
}
