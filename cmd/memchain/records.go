package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/service/ui"
	"github.com/spf13/cobra"
)

var (
	recordsStatus string
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List records from the local append journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context(), os.Stderr)
		defer flushLog()

		rt, err := bootstrap(ctx, 0)
		if err != nil {
			return err
		}
		defer rt.Close()

		entries, err := rt.journal.ListRecords(ctx, core.RecordStatus(recordsStatus), recordsLimit)
		if err != nil {
			return err
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(ui.DescStyle).
			Headers("CREATED", "STATUS", "CID", "TX")
		for _, e := range entries {
			t.Row(e.CreatedAt.UTC().Format(time.DateTime), string(e.Status), e.CID, e.TxHash)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "stored, anchored, orphaned or abandoned")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum rows, 0 for all")
	rootCmd.AddCommand(recordsCmd)
}
