package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sandevgo/memchain/internal/chain"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
	"github.com/sandevgo/memchain/pkg/retry"
	"github.com/spf13/cobra"
)

var (
	appendFile     string
	appendPrevious string
	appendRetries  int
)

var appendCmd = &cobra.Command{
	Use:   "append [json]",
	Short: "Sign, store and anchor a new memory record",
	Long: `Appends a JSON object to the agent's memory chain. The payload is read from
the argument, from --file, or from stdin when the argument is "-".
Storage failures are retried; nothing is anchored until the record is stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		payload, err := readPayload(cmd.InOrStdin(), args, appendFile)
		if err != nil {
			return err
		}

		rt, err := bootstrap(ctx, needLedger|needKey)
		if err != nil {
			return err
		}
		defer rt.Close()

		b := rt.builder()
		retrier := retry.NewRetrier(storageRetryPolicy(appendRetries))

		var res chain.AppendResult
		err = retrier.Do(ctx, func() error {
			var appendErr error
			if cmd.Flags().Changed("previous") {
				res, appendErr = b.Append(ctx, payload, appendPrevious)
			} else {
				res, appendErr = b.AppendNext(ctx, payload)
			}
			if errors.Is(appendErr, core.ErrStorage) {
				log.FromCtx(ctx).Warn().Err(appendErr).Msg("storage failed, retrying")
			}
			return appendErr
		})

		out := cmd.OutOrStdout()
		if errors.Is(err, core.ErrAnchor) && res.CID != "" {
			fmt.Fprintf(out, "cid %s\n", res.CID)
			fmt.Fprintln(out, "record stored but not anchored; run `memchain reconcile` to retry")
			return err
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "cid %s\ntx  %s\n", res.CID, res.Receipt.TxHash)
		return nil
	},
}

// storageRetryPolicy retries only failures to store the record. Anchor
// failures leave an orphan for reconcile instead.
func storageRetryPolicy(retries int) *retry.Config {
	policy := retry.NewDefaultConfig()
	policy.MaxRetries = retries
	policy.RetryIf = func(err error) bool { return errors.Is(err, core.ErrStorage) }
	return policy
}

// readPayload returns the raw JSON to append. Validation happens in the
// chain package.
func readPayload(stdin io.Reader, args []string, file string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("pass the payload either as an argument or with --file")
	case file != "":
		data, err = os.ReadFile(file)
	case len(args) == 1 && args[0] == "-":
		data, err = io.ReadAll(stdin)
	case len(args) == 1:
		data = []byte(args[0])
	default:
		return nil, errors.New("payload is required")
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("payload is empty")
	}
	return data, nil
}

func init() {
	appendCmd.Flags().StringVarP(&appendFile, "file", "f", "", "read the payload from a file")
	appendCmd.Flags().StringVar(&appendPrevious, "previous", "", "link to this CID instead of the anchored head (empty starts a new chain)")
	appendCmd.Flags().IntVar(&appendRetries, "retries", 3, "storage retries before giving up")
	rootCmd.AddCommand(appendCmd)
}
