package main

import (
	"fmt"
	"os"

	"github.com/sandevgo/memchain/internal/chain"
	"github.com/sandevgo/memchain/internal/service/ui"
	"github.com/spf13/cobra"
)

var verifyHead string

var verifyCmd = &cobra.Command{
	Use:   "verify [agent]",
	Short: "Walk an agent's memory chain back to genesis and check every link",
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

		out := cmd.OutOrStdout()
		if rt.blobs != nil {
			corrupted, err := rt.blobs.Corrupted(ctx)
			if err != nil {
				return err
			}
			for _, cid := range corrupted {
				fmt.Fprintln(out, ui.RenderError(fmt.Errorf("local blob %s does not match its digest", cid)))
			}
		}

		var links []chain.Link
		if verifyHead != "" {
			links, err = rt.replayer().Replay(ctx, verifyHead, agent)
		} else {
			links, err = rt.replayer().ReplayFromHead(ctx, agent)
		}
		if err != nil {
			fmt.Fprintln(out, ui.RenderError(err))
			return err
		}

		fmt.Fprint(out, ui.RenderChain(agent, links))
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyHead, "head", "", "start from this CID instead of the anchored pointer")
	rootCmd.AddCommand(verifyCmd)
}
