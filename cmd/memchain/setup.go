package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/sandevgo/memchain/internal/anchor"
	"github.com/sandevgo/memchain/internal/chain"
	"github.com/sandevgo/memchain/internal/config"
	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/internal/providers/autodrive"
	"github.com/sandevgo/memchain/internal/providers/evm"
	"github.com/sandevgo/memchain/internal/service/watch"
	"github.com/sandevgo/memchain/internal/signer"
	"github.com/sandevgo/memchain/internal/storage/sqlite"
	"github.com/sandevgo/memchain/internal/transport/telegram"
	"github.com/sandevgo/memchain/internal/watcher"
	"github.com/sandevgo/memchain/pkg/log"
	"github.com/sandevgo/memchain/pkg/srv"
)

var errNoKey = errors.New("PRIVATE_KEY is required for this command")

// wiring is the object graph shared by every command.
type wiring struct {
	app     *config.AppConfig
	chain   *config.ChainConfig
	db      *sql.DB
	store   core.ContentStore
	blobs   *sqlite.BlobStore
	backend *ethclient.Client
	events  *evm.Events
	anchor  *anchor.Client
	journal *sqlite.RecordsRepo
	// signer is nil without PRIVATE_KEY.
	signer *signer.KeySigner
	// agent is AGENT_ADDRESS or the signer's address.
	agent string
}

type need int

const (
	// needLedger dials RPC_URL and wires the anchor contract.
	needLedger need = 1 << iota
	// needKey refuses to continue without a signing key.
	needKey
)

// bootstrap loads configuration and opens storage, plus whatever n asks for.
func bootstrap(ctx context.Context, n need) (*wiring, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, fmt.Errorf("failed to init env: %w", err)
	}

	appCfg, err := config.LoadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("app config: %w", err)
	}
	rt := &wiring{app: appCfg}
	if err := rt.initDB(ctx); err != nil {
		return nil, err
	}
	if n&(needLedger|needKey) == 0 {
		return rt, nil
	}
	if err := rt.initStore(); err != nil {
		rt.Close()
		return nil, err
	}

	chainCfg, err := config.LoadChainConfig()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("chain config: %w", err)
	}
	rt.chain = chainCfg
	rt.agent = chainCfg.AgentAddress

	if chainCfg.HasKey() {
		rt.signer, err = signer.New(chainCfg.PrivateKey)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if rt.agent == "" {
			rt.agent = rt.signer.Address()
		}
	} else if n&needKey != 0 {
		rt.Close()
		return nil, errNoKey
	}

	if err := rt.initLedger(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *wiring) initDB(ctx context.Context) error {
	db, err := sqlite.NewDB(ctx, rt.app.GetDatabasePath())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	rt.db = db
	rt.journal = sqlite.NewRecordsRepo(db)
	return nil
}

func (rt *wiring) initStore() error {
	if rt.app.UsesLocalStore() {
		rt.blobs = sqlite.NewBlobStore(rt.db)
		rt.store = rt.blobs
		return nil
	}

	adCfg, err := config.LoadAutoDriveConfig()
	if err != nil {
		return fmt.Errorf("auto drive config: %w", err)
	}
	rt.store = autodrive.NewClient(autodrive.Config{
		BaseURL:     adCfg.BaseURL,
		APIKey:      adCfg.APIKey,
		Compression: adCfg.Compression,
		Timeout:     rt.app.OperationTimeout,
	})
	return nil
}

func (rt *wiring) initLedger(ctx context.Context) error {
	backend, err := evm.Dial(ctx, rt.chain.RPCURL)
	if err != nil {
		return err
	}
	rt.backend = backend

	cfg := evm.ContractConfig{Address: common.HexToAddress(rt.chain.ContractAddress)}
	if rt.agent != "" {
		cfg.Agent = common.HexToAddress(rt.agent)
	}
	if rt.signer != nil {
		cfg.Key = rt.signer.PrivateKey()
	}
	if rt.chain.ChainID > 0 {
		cfg.ChainID = new(big.Int).SetInt64(rt.chain.ChainID)
	}

	contract := evm.NewContract(backend, cfg)
	rt.anchor = anchor.NewClient(contract)
	rt.events = evm.NewEvents(backend, contract.Address())
	return nil
}

func (rt *wiring) builder() *chain.Builder {
	return chain.NewBuilder(rt.signer, rt.store, rt.anchor,
		chain.WithJournal(rt.journal),
		chain.WithTimeout(rt.app.OperationTimeout),
	)
}

func (rt *wiring) replayer() *chain.Replayer {
	return chain.NewReplayer(rt.store, rt.anchor)
}

// agentArg returns the first argument or the configured agent.
func (rt *wiring) agentArg(args []string) (string, error) {
	if len(args) > 0 {
		if !common.IsHexAddress(args[0]) {
			return "", fmt.Errorf("not an address: %q", args[0])
		}
		return args[0], nil
	}
	if rt.agent == "" {
		return "", errors.New("no agent given; pass an address or set AGENT_ADDRESS or PRIVATE_KEY")
	}
	return rt.agent, nil
}

func (rt *wiring) Close() {
	if rt.backend != nil {
		rt.backend.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// NewServices wires the long-running services of `memchain start`.
func NewServices(ctx context.Context, rt *wiring) []srv.Service {
	logger := log.FromCtx(ctx)
	services := []srv.Service{
		srv.NewCleanup(rt.db.Close),
		srv.NewCleanupFunc(rt.backend.Close),
	}

	watchCfg := config.NewWatcherConfig(ctx)
	agents := watchCfg.AgentList(rt.agent)
	if !rt.chain.IsWebsocket() {
		logger.Warn().Str("rpc", rt.chain.RPCURL).Msg("event subscriptions need a ws:// or wss:// RPC_URL")
	}

	opts := []watch.Option{
		watch.WithWatcherOptions(
			watcher.WithRefreshInterval(watchCfg.RefreshInterval),
			watcher.WithReconnectPolicy(watchCfg.Policy()),
			watcher.WithQueueSize(watchCfg.QueueSize),
		),
		watch.WithHealthMonitor(rt.events, watchCfg.HealthInterval),
	}

	if rt.app.IsTelegramSelected() {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, rt.anchor, agents)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize telegram bot")
		}
		services = append(services, bot)
		opts = append(opts, watch.WithNotifier(bot))
	}

	services = append(services, watch.NewService(rt.events, agents, sqlite.NewObservationsRepo(rt.db), opts...))
	return services
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
