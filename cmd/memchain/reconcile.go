package main

import (
	"fmt"
	"os"

	"github.com/sandevgo/memchain/internal/chain"
	"github.com/sandevgo/memchain/internal/service/ui"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-anchor records that were stored but never anchored",
	Long: `Walks the local journal for orphaned records, oldest first. An orphan that
extends the current head is anchored; one that no longer does is marked
abandoned.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context(), os.Stderr)
		defer flushLog()

		rt, err := bootstrap(ctx, needLedger|needKey)
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := chain.NewReconciler(rt.anchor, rt.journal).Sweep(ctx, rt.agent)
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderSweep(report))
		return err
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
