package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/memchain/internal/config"
	"github.com/sandevgo/memchain/pkg/env"
	"github.com/sandevgo/memchain/pkg/log"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initVals  envTemplate
)

// envTemplate collects every setting so MarshalEnv can render one file.
type envTemplate struct {
	App       config.AppConfig
	Chain     config.ChainConfig
	AutoDrive config.AutoDriveConfig
	Watcher   config.WatcherConfig
	Telegram  config.TelegramConfig
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the runtime directory and a .env template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context(), os.Stderr)
		defer flushLog()
		logger := log.FromCtx(ctx)

		path := config.GetRuntimePath()
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		envPath := filepath.Join(path, ".env")
		if _, err := os.Stat(envPath); err == nil && !initForce {
			return fmt.Errorf(".env file already exists at %s (use --force to overwrite)", envPath)
		}

		content, err := renderEnv(&initVals)
		if err != nil {
			return err
		}
		if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
			return err
		}

		logger.Info().Str("path", envPath).Msg("wrote .env template")
		fmt.Fprintf(cmd.OutOrStdout(), "Edit %s, then run 'memchain start'.\n", envPath)
		return nil
	},
}

func renderEnv(t *envTemplate) (string, error) {
	body, err := env.MarshalEnv(t, true)
	if err != nil {
		return "", err
	}
	return "# memchain configuration\n" + body, nil
}

func init() {
	f := initCmd.Flags()
	f.BoolVar(&initForce, "force", false, "overwrite an existing .env")
	f.StringVar(&initVals.Chain.RPCURL, "rpc-url", "", "JSON-RPC endpoint (ws:// or wss:// for start)")
	f.StringVar(&initVals.Chain.ContractAddress, "contract", "", "memory contract address")
	f.StringVar(&initVals.App.Store, "store", "", "content store: autodrive or local")
	rootCmd.AddCommand(initCmd)
}
